package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chargeDraft() Draft {
	return Draft{
		Type: "Charge",
		Params: DraftParams{
			ConstVoltageMV:  IntPtr(4208),
			ConstCurrentMA:  IntPtr(128),
			CutoffCurrentMA: IntPtr(64),
			TempLimitC:      IntPtr(45),
			TimeoutEnabled:  BoolPtr(true),
			DurationS:       IntPtr(30),
		},
	}
}

func dischargeDraft() Draft {
	return Draft{
		Type: "Discharge",
		Params: DraftParams{
			DischargeCurrentMA: IntPtr(300),
			StartDutyPct:       IntPtr(20),
			CutoffVoltageMV:    IntPtr(2750),
			TempLimitC:         IntPtr(45),
			TimeoutEnabled:     BoolPtr(false),
		},
	}
}

func violations(t *testing.T, err error) []Violation {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.Violations
}

func TestValidateWait(t *testing.T) {
	t.Run("accepts bounds", func(t *testing.T) {
		for _, d := range []int{1, 30, 100000} {
			a, err := Validate(Draft{Type: "Wait", Params: DraftParams{DurationS: IntPtr(d)}})
			require.NoError(t, err)
			assert.Equal(t, Wait{DurationS: d}, a)
		}
	})

	t.Run("rejects out of range", func(t *testing.T) {
		for _, d := range []int{0, -5, 100001} {
			_, err := Validate(Draft{Type: "Wait", Params: DraftParams{DurationS: IntPtr(d)}})
			v := violations(t, err)
			require.Len(t, v, 1)
			assert.Equal(t, FieldDurationS, v[0].Field)
			assert.Equal(t, RuleRange, v[0].Rule)
		}
	})

	t.Run("requires duration", func(t *testing.T) {
		_, err := Validate(Draft{Type: "Wait"})
		v := violations(t, err)
		require.Len(t, v, 1)
		assert.Equal(t, RuleRequired, v[0].Rule)
	})
}

func TestValidateUnknownType(t *testing.T) {
	_, err := Validate(Draft{Type: "Pulse"})
	v := violations(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, RuleUnknownType, v[0].Rule)
	assert.Equal(t, "type", v[0].Field)
}

func TestValidateCharge(t *testing.T) {
	t.Run("accepts form defaults", func(t *testing.T) {
		a, err := Validate(chargeDraft())
		require.NoError(t, err)
		assert.Equal(t, Charge{
			ConstVoltageMV:  4208,
			ConstCurrentMA:  128,
			CutoffCurrentMA: 64,
			TempLimitC:      45,
			TimeoutEnabled:  true,
			DurationS:       30,
		}, a)
	})

	t.Run("cutoff equal to constant current is allowed", func(t *testing.T) {
		for _, cc := range []int{64, 128, 1024, 5056} {
			d := chargeDraft()
			d.Params.ConstCurrentMA = IntPtr(cc)
			d.Params.CutoffCurrentMA = IntPtr(cc)
			_, err := Validate(d)
			assert.NoError(t, err, "const_current_mA=%d", cc)
		}
	})

	t.Run("cutoff above constant current is rejected", func(t *testing.T) {
		for _, cc := range []int{64, 128, 1024, 4992} {
			d := chargeDraft()
			d.Params.ConstCurrentMA = IntPtr(cc)
			d.Params.CutoffCurrentMA = IntPtr(cc + 1)
			_, err := Validate(d)
			v := violations(t, err)
			require.Len(t, v, 1, "const_current_mA=%d", cc)
			assert.Equal(t, FieldCutoffCurrentMA, v[0].Field)
		}
	})

	t.Run("dynamic cutoff bound is cited", func(t *testing.T) {
		d := chargeDraft()
		d.Params.ConstCurrentMA = IntPtr(64)
		d.Params.CutoffCurrentMA = IntPtr(100)

		_, err := Validate(d)
		v := violations(t, err)
		require.Len(t, v, 1)
		assert.Equal(t, FieldCutoffCurrentMA, v[0].Field)
		assert.Equal(t, RuleRelation, v[0].Rule)
		assert.Contains(t, v[0].Message, FieldConstCurrentMA)
		require.NotNil(t, v[0].Max)
		assert.Equal(t, 64, *v[0].Max)
		assert.Equal(t, 100, v[0].Value)
	})

	t.Run("cutoff uses static max when constant current missing", func(t *testing.T) {
		d := chargeDraft()
		d.Params.ConstCurrentMA = nil
		d.Params.CutoffCurrentMA = IntPtr(5057)

		_, err := Validate(d)
		v := violations(t, err)
		require.Len(t, v, 2)
		assert.Equal(t, FieldConstCurrentMA, v[0].Field)
		assert.Equal(t, RuleRequired, v[0].Rule)
		assert.Equal(t, FieldCutoffCurrentMA, v[1].Field)
		assert.Equal(t, RuleRange, v[1].Rule)
		assert.Equal(t, 5056, *v[1].Max)
	})

	t.Run("enforces steps", func(t *testing.T) {
		d := chargeDraft()
		d.Params.ConstVoltageMV = IntPtr(4200)
		d.Params.ConstCurrentMA = IntPtr(130)
		d.Params.CutoffCurrentMA = IntPtr(2)

		_, err := Validate(d)
		v := violations(t, err)
		require.Len(t, v, 2)
		assert.Equal(t, FieldConstVoltageMV, v[0].Field)
		assert.Equal(t, RuleStep, v[0].Rule)
		assert.Equal(t, 16, v[0].Step)
		assert.Equal(t, FieldConstCurrentMA, v[1].Field)
		assert.Equal(t, RuleStep, v[1].Rule)
	})

	t.Run("reports violations in field order", func(t *testing.T) {
		d := Draft{Type: "Charge", Params: DraftParams{TimeoutEnabled: BoolPtr(true)}}
		_, err := Validate(d)
		v := violations(t, err)

		fields := make([]string, 0, len(v))
		for _, x := range v {
			fields = append(fields, x.Field)
		}
		assert.Equal(t, []string{
			FieldConstVoltageMV,
			FieldConstCurrentMA,
			FieldCutoffCurrentMA,
			FieldTempLimitC,
			FieldDurationS,
		}, fields)
	})

	t.Run("temperature limit range", func(t *testing.T) {
		d := chargeDraft()
		d.Params.TempLimitC = IntPtr(19)
		_, err := Validate(d)
		v := violations(t, err)
		require.Len(t, v, 1)
		assert.Equal(t, FieldTempLimitC, v[0].Field)
	})
}

func TestValidateTimeout(t *testing.T) {
	t.Run("duration dropped when timeout disabled", func(t *testing.T) {
		d := chargeDraft()
		d.Params.TimeoutEnabled = BoolPtr(false)
		d.Params.DurationS = IntPtr(999999)

		a, err := Validate(d)
		require.NoError(t, err)
		c := a.(Charge)
		assert.False(t, c.TimeoutEnabled)
		assert.Zero(t, c.DurationS)
		_, ok := c.WireParams()["duration"]
		assert.False(t, ok)
	})

	t.Run("absent flag is required", func(t *testing.T) {
		for _, d := range []Draft{chargeDraft(), dischargeDraft()} {
			d.Params.TimeoutEnabled = nil
			d.Params.DurationS = IntPtr(30)

			a, err := Validate(d)
			assert.Nil(t, a)
			v := violations(t, err)
			require.Len(t, v, 1, d.Type)
			assert.Equal(t, FieldTimeoutEnabled, v[0].Field)
			assert.Equal(t, RuleRequired, v[0].Rule)
		}
	})

	t.Run("duration required when timeout enabled", func(t *testing.T) {
		d := dischargeDraft()
		d.Params.TimeoutEnabled = BoolPtr(true)
		_, err := Validate(d)
		v := violations(t, err)
		require.Len(t, v, 1)
		assert.Equal(t, FieldDurationS, v[0].Field)
		assert.Equal(t, RuleRequired, v[0].Rule)
	})

	t.Run("duration range checked when timeout enabled", func(t *testing.T) {
		d := dischargeDraft()
		d.Params.TimeoutEnabled = BoolPtr(true)
		d.Params.DurationS = IntPtr(0)
		_, err := Validate(d)
		v := violations(t, err)
		require.Len(t, v, 1)
		assert.Equal(t, RuleRange, v[0].Rule)
	})
}

func TestValidateDischarge(t *testing.T) {
	a, err := Validate(dischargeDraft())
	require.NoError(t, err)
	assert.Equal(t, Discharge{
		DischargeCurrentMA: 300,
		StartDutyPct:       20,
		CutoffVoltageMV:    2750,
		TempLimitC:         45,
	}, a)

	d := dischargeDraft()
	d.Params.DischargeCurrentMA = IntPtr(4)
	d.Params.StartDutyPct = IntPtr(101)
	d.Params.CutoffVoltageMV = IntPtr(5001)
	d.Params.TempLimitC = IntPtr(-1)
	_, err = Validate(d)
	assert.Len(t, violations(t, err), 4)
}

func TestDefaultsAreValid(t *testing.T) {
	for _, k := range Kinds {
		assert.NoError(t, Check(Defaults(k)), "defaults for %s", k)
	}
}

func TestWireParams(t *testing.T) {
	t.Run("charge uses firmware keys and decimal text", func(t *testing.T) {
		a, err := Validate(chargeDraft())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"const_volt_mV":      "4208",
			"const_current_mA":   "128",
			"cut_off_current_mA": "64",
			"temp_bat_limit":     "45",
			"timeout":            true,
			"duration":           "30",
		}, a.WireParams())
	})

	t.Run("discharge keeps millivolts unscaled", func(t *testing.T) {
		a, err := Validate(dischargeDraft())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"discharge_current":      "300",
			"start_duty":             "20",
			"dicharge_voltage_limit": "2750",
			"temp_bat_limit":         "45",
			"timeout":                false,
		}, a.WireParams())
	})

	t.Run("wait", func(t *testing.T) {
		assert.Equal(t, map[string]any{"duration": "30"}, Wait{DurationS: 30}.WireParams())
	})
}
