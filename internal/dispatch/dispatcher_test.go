package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/KevinKickass/OpenCellBench/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []*storage.DispatchRecord
}

func (m *memoryRecorder) RecordDispatch(_ context.Context, rec *storage.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *memoryRecorder) last(t *testing.T) *storage.DispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.records)
	return m.records[len(m.records)-1]
}

func testSnapshot() sequence.Snapshot {
	wait := action.Wait{DurationS: 30}
	charge := action.Charge{
		ConstVoltageMV:  4208,
		ConstCurrentMA:  128,
		CutoffCurrentMA: 64,
		TempLimitC:      45,
	}
	return sequence.Snapshot{
		ID:    uuid.New(),
		State: sequence.StateBuilding,
		Device: &directory.DeviceSummary{
			Status:    "online",
			Name:      "cycler-01",
			IPAddress: "10.0.0.5",
		},
		Actions: []action.Entry{
			{Position: 1, Type: wait.Kind(), Params: wait},
			{Position: 2, Type: charge.Kind(), Params: charge},
		},
		Logging: sequence.Logging{Enabled: true, Filename: "discharge_log", PollingIntervalS: 5},
	}
}

func newTestDispatcher(t *testing.T, url string, timeout time.Duration, rec Recorder) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(url, timeout, rec, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestSubmitAccepted(t *testing.T) {
	var hits int32
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/start_device_actions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"execution_id":"exec-42"}`))
	}))
	defer srv.Close()

	rec := &memoryRecorder{}
	d := newTestDispatcher(t, srv.URL, time.Second, rec)

	snap := testSnapshot()
	handle, err := d.Submit(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, http.StatusOK, handle.StatusCode)
	assert.Equal(t, "exec-42", handle.ControllerRef)
	assert.Equal(t, 2, handle.ActionCount)
	assert.Equal(t, "10.0.0.5", handle.DeviceIP)

	assert.Equal(t, "cycler-01", got["device_name"])
	assert.Equal(t, "10.0.0.5", got["device_ip"])
	assert.Equal(t, true, got["sd_file"])
	assert.Equal(t, "discharge_log", got["filename"])
	assert.Equal(t, float64(5), got["polling_rate"])

	actions, ok := got["actions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 2)
	first := actions[0].(map[string]any)
	assert.Equal(t, "Wait", first["type"])
	assert.Equal(t, map[string]any{"duration": "30"}, first["params"])
	second := actions[1].(map[string]any)
	assert.Equal(t, "Charge", second["type"])
	assert.Equal(t, map[string]any{
		"const_volt_mV":      "4208",
		"const_current_mA":   "128",
		"cut_off_current_mA": "64",
		"temp_bat_limit":     "45",
		"timeout":            false,
	}, second["params"])

	last := rec.last(t)
	assert.Equal(t, storage.OutcomeAccepted, last.Outcome)
	assert.Equal(t, handle.ID, last.ID)
	assert.Equal(t, snap.ID, last.SessionID)
	assert.Equal(t, "exec-42", last.ControllerRef)
	assert.NotEmpty(t, last.Request)
}

func TestSubmitRejectedCarriesBodyVerbatim(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("device busy: sequence running"))
	}))
	defer srv.Close()

	rec := &memoryRecorder{}
	d := newTestDispatcher(t, srv.URL, time.Second, rec)

	_, err := d.Submit(context.Background(), testSnapshot())
	require.Error(t, err)

	var rejected *ControllerRejected
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusConflict, rejected.StatusCode)
	assert.Equal(t, "device busy: sequence running", rejected.Detail)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	last := rec.last(t)
	assert.Equal(t, storage.OutcomeRejected, last.Outcome)
	assert.Equal(t, http.StatusConflict, last.StatusCode)
}

func TestSubmitDoesNotFollowRedirects(t *testing.T) {
	for _, code := range []int{
		http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect,
	} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var posts, moved int32
			mux := http.NewServeMux()
			mux.HandleFunc("/start_device_actions", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&posts, 1)
				w.Header().Set("Location", "/v2/start_device_actions")
				w.WriteHeader(code)
				_, _ = w.Write([]byte("moved"))
			})
			mux.HandleFunc("/v2/start_device_actions", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&moved, 1)
				_, _ = w.Write([]byte(`{"id":"run-2"}`))
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			rec := &memoryRecorder{}
			d := newTestDispatcher(t, srv.URL, time.Second, rec)

			_, err := d.Submit(context.Background(), testSnapshot())
			var rejected *ControllerRejected
			require.True(t, errors.As(err, &rejected))
			assert.Equal(t, code, rejected.StatusCode)
			assert.Equal(t, "moved", rejected.Detail)

			assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
			assert.Zero(t, atomic.LoadInt32(&moved))
			assert.Equal(t, storage.OutcomeRejected, rec.last(t).Outcome)
		})
	}
}

func TestSubmitTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	rec := &memoryRecorder{}
	d := newTestDispatcher(t, url, time.Second, rec)

	_, err := d.Submit(context.Background(), testSnapshot())
	require.Error(t, err)

	var derr *DispatchError
	require.True(t, errors.As(err, &derr))
	assert.False(t, derr.Timeout)
	assert.Equal(t, "10.0.0.5", derr.DeviceIP)
	assert.Equal(t, storage.OutcomeTransportError, rec.last(t).Outcome)
}

func TestSubmitTimeoutIsNotRetried(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDispatcher(t, srv.URL, 50*time.Millisecond, nil)

	_, err := d.Submit(context.Background(), testSnapshot())
	require.Error(t, err)

	var derr *DispatchError
	require.True(t, errors.As(err, &derr))
	assert.True(t, derr.Timeout)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSubmitThroughSessionPreservesSequenceOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad sequence", http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL, time.Second, nil)

	reg := sequence.NewRegistry(sequence.Options{
		DefaultLogging: sequence.Logging{Enabled: true, Filename: "discharge_log", PollingIntervalS: 5},
	}, nil, zap.NewNop())
	s := reg.Create()
	_, err := s.SelectDevice(directory.DeviceSummary{Status: "online", Name: "cycler-01", IPAddress: "10.0.0.5"})
	require.NoError(t, err)
	_, _, err = s.Append(action.Wait{DurationS: 10})
	require.NoError(t, err)

	_, err = s.Dispatch(context.Background(), d)
	var rejected *ControllerRejected
	require.True(t, errors.As(err, &rejected))

	snap := s.Snapshot()
	assert.Equal(t, sequence.StateBuilding, snap.State)
	assert.Len(t, snap.Actions, 1)
}

func TestControllerRef(t *testing.T) {
	assert.Equal(t, "abc", controllerRef([]byte(`{"execution_id":"abc"}`)))
	assert.Equal(t, "17", controllerRef([]byte(`{"id":17}`)))
	assert.Equal(t, "", controllerRef([]byte(`OK`)))
	assert.Equal(t, "", controllerRef(nil))
}
