package action

import (
	"fmt"
	"strings"
)

type Rule string

const (
	RuleRequired    Rule = "required"
	RuleRange       Rule = "range"
	RuleStep        Rule = "step"
	RuleRelation    Rule = "relation"
	RuleUnknownType Rule = "unknown_type"
)

// Violation describes one field that failed validation.
type Violation struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Rule    Rule   `json:"rule"`
	Min     *int   `json:"min,omitempty"`
	Max     *int   `json:"max,omitempty"`
	Step    int    `json:"step,omitempty"`
	Message string `json:"message"`
}

type ValidationError struct {
	Kind       Kind        `json:"type,omitempty"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	if e.Kind == "" {
		return "validation failed: " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("invalid %s action: %s", e.Kind, strings.Join(parts, "; "))
}

// Validate turns a draft into an Action or returns a *ValidationError listing
// every violation. Fields are checked in declaration order.
func Validate(d Draft) (Action, error) {
	kind, ok := ParseKind(d.Type)
	if !ok {
		return nil, &ValidationError{Violations: []Violation{{
			Field:   "type",
			Value:   d.Type,
			Rule:    RuleUnknownType,
			Message: fmt.Sprintf("unsupported action type %q (want Wait, Charge or Discharge)", d.Type),
		}}}
	}

	c := &checker{}
	p := d.Params
	var out Action

	switch kind {
	case KindWait:
		out = Wait{DurationS: c.check(durationBound, p.DurationS)}

	case KindCharge:
		a := Charge{
			ConstVoltageMV: c.check(constVoltageBound, p.ConstVoltageMV),
			ConstCurrentMA: c.check(constCurrentBound, p.ConstCurrentMA),
		}
		a.CutoffCurrentMA = c.check(cutoffCurrentBound.capped(p.ConstCurrentMA, constCurrentBound.Max), p.CutoffCurrentMA)
		a.TempLimitC = c.check(chargeTempBound, p.TempLimitC)
		a.TimeoutEnabled, a.DurationS = c.timeout(p.TimeoutEnabled, p.DurationS)
		out = a

	case KindDischarge:
		a := Discharge{
			DischargeCurrentMA: c.check(dischargeCurrentBound, p.DischargeCurrentMA),
			StartDutyPct:       c.check(startDutyBound, p.StartDutyPct),
			CutoffVoltageMV:    c.check(cutoffVoltageBound, p.CutoffVoltageMV),
			TempLimitC:         c.check(dischargeTempBound, p.TempLimitC),
		}
		a.TimeoutEnabled, a.DurationS = c.timeout(p.TimeoutEnabled, p.DurationS)
		out = a
	}

	if len(c.violations) > 0 {
		return nil, &ValidationError{Kind: kind, Violations: c.violations}
	}
	return out, nil
}

// Check re-validates an already typed action. Used for actions that did not
// come through a Draft, such as presets decoded from files.
func Check(a Action) error {
	_, err := Validate(ToDraft(a))
	return err
}

// ToDraft converts a typed action back into a draft.
func ToDraft(a Action) Draft {
	d := Draft{Type: string(a.Kind())}
	switch v := a.(type) {
	case Wait:
		d.Params.DurationS = IntPtr(v.DurationS)
	case Charge:
		d.Params.ConstVoltageMV = IntPtr(v.ConstVoltageMV)
		d.Params.ConstCurrentMA = IntPtr(v.ConstCurrentMA)
		d.Params.CutoffCurrentMA = IntPtr(v.CutoffCurrentMA)
		d.Params.TempLimitC = IntPtr(v.TempLimitC)
		d.Params.TimeoutEnabled = BoolPtr(v.TimeoutEnabled)
		if v.TimeoutEnabled {
			d.Params.DurationS = IntPtr(v.DurationS)
		}
	case Discharge:
		d.Params.DischargeCurrentMA = IntPtr(v.DischargeCurrentMA)
		d.Params.StartDutyPct = IntPtr(v.StartDutyPct)
		d.Params.CutoffVoltageMV = IntPtr(v.CutoffVoltageMV)
		d.Params.TempLimitC = IntPtr(v.TempLimitC)
		d.Params.TimeoutEnabled = BoolPtr(v.TimeoutEnabled)
		if v.TimeoutEnabled {
			d.Params.DurationS = IntPtr(v.DurationS)
		}
	}
	return d
}

// capped derives the runtime bound of a field limited by another field's
// value. An absent limiting field leaves the static maximum in place.
func (b Bound) capped(limit *int, ceiling int) Bound {
	if limit == nil {
		return b
	}
	b.Max = *limit
	if b.Max > ceiling {
		b.Max = ceiling
	}
	b.linked = true
	return b
}

type checker struct {
	violations []Violation
}

func (c *checker) check(b Bound, v *int) int {
	if v == nil {
		c.violations = append(c.violations, Violation{
			Field:   b.Field,
			Rule:    RuleRequired,
			Min:     IntPtr(b.Min),
			Max:     IntPtr(b.Max),
			Message: fmt.Sprintf("%s is required", b.Field),
		})
		return 0
	}

	val := *v
	if val < b.Min || val > b.Max {
		rule := RuleRange
		msg := fmt.Sprintf("%s must be between %d and %d, got %d", b.Field, b.Min, b.Max, val)
		if b.linked && val > b.Max {
			rule = RuleRelation
			msg = fmt.Sprintf("%s must not exceed %s (%d), got %d", b.Field, b.MaxField, b.Max, val)
		}
		c.violations = append(c.violations, Violation{
			Field:   b.Field,
			Value:   val,
			Rule:    rule,
			Min:     IntPtr(b.Min),
			Max:     IntPtr(b.Max),
			Message: msg,
		})
		return 0
	}

	if b.Step > 0 && (val-b.Min)%b.Step != 0 {
		c.violations = append(c.violations, Violation{
			Field:   b.Field,
			Value:   val,
			Rule:    RuleStep,
			Min:     IntPtr(b.Min),
			Max:     IntPtr(b.Max),
			Step:    b.Step,
			Message: fmt.Sprintf("%s must be %d plus a multiple of %d, got %d", b.Field, b.Min, b.Step, val),
		})
		return 0
	}

	return val
}

// timeout enforces that duration_s is present exactly when the timeout is on.
// A duration sent with the timeout off is dropped.
func (c *checker) timeout(enabled *bool, duration *int) (bool, int) {
	if enabled == nil {
		c.violations = append(c.violations, Violation{
			Field:   FieldTimeoutEnabled,
			Rule:    RuleRequired,
			Message: fmt.Sprintf("%s is required", FieldTimeoutEnabled),
		})
		return false, 0
	}
	if !*enabled {
		return false, 0
	}
	return true, c.check(durationBound, duration)
}
