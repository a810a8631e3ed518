package dispatch

import (
	"errors"
	"testing"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestOmitsFilenameWhenLoggingDisabled(t *testing.T) {
	snap := testSnapshot()
	snap.Logging = sequence.Logging{Enabled: false, Filename: "ignored", PollingIntervalS: 10}

	req, err := BuildRequest(snap)
	require.NoError(t, err)
	assert.False(t, req.SDFile)
	assert.Empty(t, req.Filename)
	assert.Equal(t, 10, req.PollingRate)

	v, err := NewContractValidator()
	require.NoError(t, err)
	body, err := v.Validate(req)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "filename")
}

func TestBuildRequestNeedsDevice(t *testing.T) {
	snap := testSnapshot()
	snap.Device = nil

	_, err := BuildRequest(snap)
	assert.True(t, errors.Is(err, ErrContract))
}

func TestBuildRequestDischargeWithTimeout(t *testing.T) {
	snap := testSnapshot()
	d := action.Discharge{
		DischargeCurrentMA: 300,
		StartDutyPct:       20,
		CutoffVoltageMV:    2750,
		TempLimitC:         45,
		TimeoutEnabled:     true,
		DurationS:          3600,
	}
	snap.Actions = []action.Entry{{Position: 1, Type: d.Kind(), Params: d}}

	req, err := BuildRequest(snap)
	require.NoError(t, err)
	require.Len(t, req.Actions, 1)
	assert.Equal(t, "Discharge", req.Actions[0].Type)
	assert.Equal(t, map[string]any{
		"discharge_current":      "300",
		"start_duty":             "20",
		"dicharge_voltage_limit": "2750",
		"temp_bat_limit":         "45",
		"timeout":                true,
		"duration":               "3600",
	}, req.Actions[0].Params)
}

func TestContractRejectsMalformedRequests(t *testing.T) {
	v, err := NewContractValidator()
	require.NoError(t, err)

	base := func() Request {
		req, err := BuildRequest(testSnapshot())
		require.NoError(t, err)
		return req
	}

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no actions", func(r *Request) { r.Actions = nil }},
		{"polling too fast", func(r *Request) { r.PollingRate = 0 }},
		{"polling too slow", func(r *Request) { r.PollingRate = 61 }},
		{"sd file without filename", func(r *Request) { r.Filename = "" }},
		{"unknown action type", func(r *Request) { r.Actions[0].Type = "Rest" }},
		{"non numeric param", func(r *Request) { r.Actions[0].Params = map[string]any{"duration": "ten"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			_, err := v.Validate(req)
			assert.True(t, errors.Is(err, ErrContract), "got %v", err)
		})
	}
}
