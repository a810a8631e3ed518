package action

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindWait      Kind = "Wait"
	KindCharge    Kind = "Charge"
	KindDischarge Kind = "Discharge"
)

// Kinds lists every action kind in the order the operator form offers them.
var Kinds = []Kind{KindCharge, KindDischarge, KindWait}

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindWait, KindCharge, KindDischarge:
		return Kind(s), true
	default:
		return "", false
	}
}

// Action is one validated test step. Implementations are plain values; an
// Action is never modified after Validate returns it.
type Action interface {
	Kind() Kind
	// WireParams returns the firmware parameter set for this step.
	WireParams() map[string]any
}

type Wait struct {
	DurationS int `json:"duration_s"`
}

type Charge struct {
	ConstVoltageMV  int  `json:"const_voltage_mV"`
	ConstCurrentMA  int  `json:"const_current_mA"`
	CutoffCurrentMA int  `json:"cutoff_current_mA"`
	TempLimitC      int  `json:"temp_limit_C"`
	TimeoutEnabled  bool `json:"timeout_enabled"`
	DurationS       int  `json:"duration_s,omitempty"`
}

type Discharge struct {
	DischargeCurrentMA int  `json:"discharge_current_mA"`
	StartDutyPct       int  `json:"start_duty_pct"`
	CutoffVoltageMV    int  `json:"cutoff_voltage_mV"`
	TempLimitC         int  `json:"temp_limit_C"`
	TimeoutEnabled     bool `json:"timeout_enabled"`
	DurationS          int  `json:"duration_s,omitempty"`
}

func (Wait) Kind() Kind      { return KindWait }
func (Charge) Kind() Kind    { return KindCharge }
func (Discharge) Kind() Kind { return KindDischarge }

// Timeout reports the step timeout, if one is set.
func (c Charge) Timeout() (int, bool) {
	return c.DurationS, c.TimeoutEnabled
}

func (d Discharge) Timeout() (int, bool) {
	return d.DurationS, d.TimeoutEnabled
}

// Draft is raw operator input for a single action. Every parameter is
// optional so that missing fields can be reported instead of defaulted.
type Draft struct {
	Type   string      `json:"type" yaml:"type"`
	Params DraftParams `json:"params" yaml:"params"`
}

type DraftParams struct {
	DurationS *int `json:"duration_s,omitempty" yaml:"duration_s,omitempty"`

	ConstVoltageMV  *int `json:"const_voltage_mV,omitempty" yaml:"const_voltage_mV,omitempty"`
	ConstCurrentMA  *int `json:"const_current_mA,omitempty" yaml:"const_current_mA,omitempty"`
	CutoffCurrentMA *int `json:"cutoff_current_mA,omitempty" yaml:"cutoff_current_mA,omitempty"`

	DischargeCurrentMA *int `json:"discharge_current_mA,omitempty" yaml:"discharge_current_mA,omitempty"`
	StartDutyPct       *int `json:"start_duty_pct,omitempty" yaml:"start_duty_pct,omitempty"`
	CutoffVoltageMV    *int `json:"cutoff_voltage_mV,omitempty" yaml:"cutoff_voltage_mV,omitempty"`

	TempLimitC     *int  `json:"temp_limit_C,omitempty" yaml:"temp_limit_C,omitempty"`
	TimeoutEnabled *bool `json:"timeout_enabled,omitempty" yaml:"timeout_enabled,omitempty"`
}

// Entry is the JSON view of a queued action.
type Entry struct {
	Position int    `json:"position"`
	Type     Kind   `json:"type"`
	Params   Action `json:"params"`
}

// Describe renders an action for log lines.
func Describe(a Action) string {
	data, err := json.Marshal(a)
	if err != nil {
		return string(a.Kind())
	}
	return fmt.Sprintf("%s%s", a.Kind(), data)
}

func IntPtr(v int) *int    { return &v }
func BoolPtr(v bool) *bool { return &v }
