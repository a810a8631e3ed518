package sequence

import (
	"errors"
	"fmt"
)

// ErrEmptySequence is returned when dispatching a sequence without actions.
// Nothing is sent in that case.
var ErrEmptySequence = errors.New("sequence has no actions")

// ConflictError reports an operation that is not allowed in the session's
// current state.
type ConflictError struct {
	Op     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
}

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}
