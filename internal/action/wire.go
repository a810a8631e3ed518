package action

import "strconv"

// Firmware parameter keys. The spelling is the controller's, including
// "dicharge_voltage_limit".
const (
	wireDuration         = "duration"
	wireConstVoltage     = "const_volt_mV"
	wireConstCurrent     = "const_current_mA"
	wireCutoffCurrent    = "cut_off_current_mA"
	wireTempLimit        = "temp_bat_limit"
	wireTimeout          = "timeout"
	wireDischargeCurrent = "discharge_current"
	wireStartDuty        = "start_duty"
	wireVoltageLimit     = "dicharge_voltage_limit"
)

func text(v int) string { return strconv.Itoa(v) }

func (w Wait) WireParams() map[string]any {
	return map[string]any{
		wireDuration: text(w.DurationS),
	}
}

func (c Charge) WireParams() map[string]any {
	params := map[string]any{
		wireConstVoltage:  text(c.ConstVoltageMV),
		wireConstCurrent:  text(c.ConstCurrentMA),
		wireCutoffCurrent: text(c.CutoffCurrentMA),
		wireTempLimit:     text(c.TempLimitC),
		wireTimeout:       c.TimeoutEnabled,
	}
	if c.TimeoutEnabled {
		params[wireDuration] = text(c.DurationS)
	}
	return params
}

func (d Discharge) WireParams() map[string]any {
	params := map[string]any{
		wireDischargeCurrent: text(d.DischargeCurrentMA),
		wireStartDuty:        text(d.StartDutyPct),
		wireVoltageLimit:     text(d.CutoffVoltageMV),
		wireTempLimit:        text(d.TempLimitC),
		wireTimeout:          d.TimeoutEnabled,
	}
	if d.TimeoutEnabled {
		params[wireDuration] = text(d.DurationS)
	}
	return params
}
