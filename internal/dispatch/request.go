package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/dispatch-request-v1.json
var requestSchemaJSON string

// ErrContract means a built request does not match the controller's wire
// schema. It indicates a bug on this side; nothing is sent.
var ErrContract = errors.New("dispatch request violates wire contract")

// Request is the single object POSTed to the device controller.
type Request struct {
	DeviceName  string          `json:"device_name"`
	DeviceIP    string          `json:"device_ip"`
	SDFile      bool            `json:"sd_file"`
	Filename    string          `json:"filename,omitempty"`
	PollingRate int             `json:"polling_rate"`
	Actions     []RequestAction `json:"actions"`
}

type RequestAction struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// BuildRequest converts a session snapshot into the wire request.
func BuildRequest(snap sequence.Snapshot) (Request, error) {
	if snap.Device == nil {
		return Request{}, fmt.Errorf("%w: no device bound", ErrContract)
	}

	req := Request{
		DeviceName:  snap.Device.Name,
		DeviceIP:    snap.Device.IPAddress,
		SDFile:      snap.Logging.Enabled,
		PollingRate: snap.Logging.PollingIntervalS,
		Actions:     make([]RequestAction, 0, len(snap.Actions)),
	}
	if snap.Logging.Enabled {
		req.Filename = snap.Logging.Filename
	}

	for _, e := range snap.Actions {
		req.Actions = append(req.Actions, RequestAction{
			Type:   string(e.Type),
			Params: e.Params.WireParams(),
		})
	}
	return req, nil
}

// ContractValidator checks requests against the embedded JSON schema.
type ContractValidator struct {
	schema *jsonschema.Schema
}

func NewContractValidator() (*ContractValidator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("dispatch-request-v1.json",
		strings.NewReader(requestSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("dispatch-request-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &ContractValidator{schema: schema}, nil
}

// Validate checks the encoded request body and returns it.
func (v *ContractValidator) Validate(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContract, err)
	}

	return body, nil
}
