package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeRejected       Outcome = "rejected"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeContractError  Outcome = "contract_error"
)

// DispatchRecord is one attempt to hand a sequence to the device controller.
type DispatchRecord struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	DeviceName    string          `json:"device_name"`
	DeviceIP      string          `json:"device_ip"`
	ActionCount   int             `json:"action_count"`
	Request       json.RawMessage `json:"request,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	StatusCode    int             `json:"status_code,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	ControllerRef string          `json:"controller_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
