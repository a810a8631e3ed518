package action

// Bound is the allowed range of one numeric field. Step is relative to Min;
// zero means any integer in range.
type Bound struct {
	Field   string `json:"field"`
	Unit    string `json:"unit,omitempty"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
	Step    int    `json:"step,omitempty"`
	Default int    `json:"default"`
	// MaxField names the field whose value caps this one at runtime.
	MaxField string `json:"max_field,omitempty"`

	linked bool
}

const (
	FieldDurationS          = "duration_s"
	FieldConstVoltageMV     = "const_voltage_mV"
	FieldConstCurrentMA     = "const_current_mA"
	FieldCutoffCurrentMA    = "cutoff_current_mA"
	FieldDischargeCurrentMA = "discharge_current_mA"
	FieldStartDutyPct       = "start_duty_pct"
	FieldCutoffVoltageMV    = "cutoff_voltage_mV"
	FieldTempLimitC         = "temp_limit_C"
	FieldTimeoutEnabled     = "timeout_enabled"
)

var (
	durationBound = Bound{Field: FieldDurationS, Unit: "s", Min: 1, Max: 100000, Default: 30}

	constVoltageBound  = Bound{Field: FieldConstVoltageMV, Unit: "mV", Min: 3840, Max: 4608, Step: 16, Default: 4208}
	constCurrentBound  = Bound{Field: FieldConstCurrentMA, Unit: "mA", Min: 64, Max: 5056, Step: 64, Default: 128}
	cutoffCurrentBound = Bound{Field: FieldCutoffCurrentMA, Unit: "mA", Min: 2, Max: 5056, Default: 64, MaxField: FieldConstCurrentMA}
	chargeTempBound    = Bound{Field: FieldTempLimitC, Unit: "C", Min: 20, Max: 100, Default: 45}

	dischargeCurrentBound = Bound{Field: FieldDischargeCurrentMA, Unit: "mA", Min: 5, Max: 1500, Default: 300}
	startDutyBound        = Bound{Field: FieldStartDutyPct, Unit: "%", Min: 0, Max: 100, Default: 20}
	cutoffVoltageBound    = Bound{Field: FieldCutoffVoltageMV, Unit: "mV", Min: 0, Max: 5000, Default: 2750}
	dischargeTempBound    = Bound{Field: FieldTempLimitC, Unit: "C", Min: 0, Max: 100, Default: 45}
)

// Limits returns the static bounds of every numeric field of kind, in
// evaluation order.
func Limits(kind Kind) []Bound {
	switch kind {
	case KindWait:
		return []Bound{durationBound}
	case KindCharge:
		return []Bound{constVoltageBound, constCurrentBound, cutoffCurrentBound, chargeTempBound, durationBound}
	case KindDischarge:
		return []Bound{dischargeCurrentBound, startDutyBound, cutoffVoltageBound, dischargeTempBound, durationBound}
	default:
		return nil
	}
}

// Defaults returns the values the operator form starts with.
func Defaults(kind Kind) Action {
	switch kind {
	case KindWait:
		return Wait{DurationS: durationBound.Default}
	case KindCharge:
		return Charge{
			ConstVoltageMV:  constVoltageBound.Default,
			ConstCurrentMA:  constCurrentBound.Default,
			CutoffCurrentMA: constCurrentBound.Default / 2,
			TempLimitC:      chargeTempBound.Default,
			TimeoutEnabled:  true,
			DurationS:       durationBound.Default,
		}
	case KindDischarge:
		return Discharge{
			DischargeCurrentMA: dischargeCurrentBound.Default,
			StartDutyPct:       startDutyBound.Default,
			CutoffVoltageMV:    cutoffVoltageBound.Default,
			TempLimitC:         dischargeTempBound.Default,
			TimeoutEnabled:     true,
			DurationS:          durationBound.Default,
		}
	default:
		return nil
	}
}
