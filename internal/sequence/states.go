package sequence

import (
	"time"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/google/uuid"
)

type State string

const (
	StateEmpty       State = "empty"
	StateBuilding    State = "building"
	StateDispatching State = "dispatching"
)

// Logging controls telemetry recording to the device's SD card.
type Logging struct {
	Enabled          bool   `json:"enabled"`
	Filename         string `json:"filename"`
	PollingIntervalS int    `json:"polling_interval_s"`
}

// ExecutionHandle is the controller's acknowledgement of an accepted dispatch.
type ExecutionHandle struct {
	ID            uuid.UUID `json:"id"`
	DeviceIP      string    `json:"device_ip"`
	ActionCount   int       `json:"action_count"`
	StatusCode    int       `json:"status_code"`
	Detail        string    `json:"detail,omitempty"`
	ControllerRef string    `json:"controller_ref,omitempty"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

// Snapshot is a copy of a session's state at one point in time.
type Snapshot struct {
	ID           uuid.UUID                `json:"id"`
	State        State                    `json:"state"`
	Device       *directory.DeviceSummary `json:"device,omitempty"`
	Actions      []action.Entry           `json:"actions"`
	Logging      Logging                  `json:"logging"`
	LastDispatch *ExecutionHandle         `json:"last_dispatch,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// Sequence returns the queued actions in order.
func (s Snapshot) Sequence() []action.Action {
	out := make([]action.Action, 0, len(s.Actions))
	for _, e := range s.Actions {
		out = append(out, e.Params)
	}
	return out
}
