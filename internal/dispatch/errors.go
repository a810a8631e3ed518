package dispatch

import "fmt"

// DispatchError is a transport-level failure: the request may not have
// reached the controller. It is never retried automatically.
type DispatchError struct {
	DeviceIP string
	Timeout  bool
	Err      error
}

func (e *DispatchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("dispatch to %s timed out: %v", e.DeviceIP, e.Err)
	}
	return fmt.Sprintf("dispatch to %s failed: %v", e.DeviceIP, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// ControllerRejected carries a non-success acknowledgement verbatim.
type ControllerRejected struct {
	StatusCode int
	Detail     string
}

func (e *ControllerRejected) Error() string {
	return fmt.Sprintf("controller rejected sequence with status %d: %s", e.StatusCode, e.Detail)
}
