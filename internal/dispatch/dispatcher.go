package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/KevinKickass/OpenCellBench/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxDetailBytes = 64 << 10

// Recorder persists the outcome of every dispatch attempt.
type Recorder interface {
	RecordDispatch(ctx context.Context, rec *storage.DispatchRecord) error
}

type Dispatcher struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	contract   *ContractValidator
	recorder   Recorder
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher posting to baseURL. recorder may be nil.
func NewDispatcher(baseURL string, timeout time.Duration, recorder Recorder, logger *zap.Logger) (*Dispatcher, error) {
	contract, err := NewContractValidator()
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		endpoint:   strings.TrimRight(baseURL, "/") + "/start_device_actions",
		timeout:    timeout,
		httpClient: &http.Client{
			// A redirect would resend or rewrite the sequence; the 3xx itself
			// is returned to the caller as a rejection.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		contract:   contract,
		recorder:   recorder,
		logger:     logger,
	}, nil
}

// Submit sends the sequence in exactly one request. Any answer outside 2xx
// is returned as *ControllerRejected; transport failures and timeouts as
// *DispatchError.
func (d *Dispatcher) Submit(ctx context.Context, snap sequence.Snapshot) (sequence.ExecutionHandle, error) {
	req, err := BuildRequest(snap)
	if err != nil {
		return sequence.ExecutionHandle{}, err
	}

	rec := &storage.DispatchRecord{
		ID:          uuid.New(),
		SessionID:   snap.ID,
		DeviceName:  req.DeviceName,
		DeviceIP:    req.DeviceIP,
		ActionCount: len(req.Actions),
		CreatedAt:   time.Now(),
	}

	body, err := d.contract.Validate(req)
	if err != nil {
		d.logger.Error("Dispatch request failed contract check",
			zap.String("device_ip", req.DeviceIP),
			zap.Error(err))
		rec.Outcome = storage.OutcomeContractError
		rec.Detail = err.Error()
		d.record(ctx, rec)
		return sequence.ExecutionHandle{}, err
	}
	rec.Request = body

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return sequence.ExecutionHandle{}, fmt.Errorf("failed to build dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	d.logger.Info("Submitting sequence to controller",
		zap.String("dispatch_id", rec.ID.String()),
		zap.String("device_ip", req.DeviceIP),
		zap.Int("actions", len(req.Actions)))

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		derr := &DispatchError{DeviceIP: req.DeviceIP, Timeout: isTimeout(err), Err: err}
		d.logger.Warn("Dispatch transport failure", zap.Error(derr))
		rec.Outcome = storage.OutcomeTransportError
		rec.Detail = derr.Error()
		d.record(context.WithoutCancel(ctx), rec)
		return sequence.ExecutionHandle{}, derr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	if err != nil {
		d.logger.Warn("Failed to read controller response", zap.Error(err))
	}
	detail := string(raw)

	rec.StatusCode = resp.StatusCode
	rec.Detail = detail

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &ControllerRejected{StatusCode: resp.StatusCode, Detail: detail}
		d.logger.Warn("Controller rejected sequence",
			zap.String("device_ip", req.DeviceIP),
			zap.Int("status_code", resp.StatusCode))
		rec.Outcome = storage.OutcomeRejected
		d.record(context.WithoutCancel(ctx), rec)
		return sequence.ExecutionHandle{}, rejected
	}

	handle := sequence.ExecutionHandle{
		ID:            rec.ID,
		DeviceIP:      req.DeviceIP,
		ActionCount:   len(req.Actions),
		StatusCode:    resp.StatusCode,
		Detail:        detail,
		ControllerRef: controllerRef(raw),
		AcceptedAt:    time.Now(),
	}
	rec.Outcome = storage.OutcomeAccepted
	rec.ControllerRef = handle.ControllerRef
	d.record(context.WithoutCancel(ctx), rec)

	d.logger.Info("Controller accepted sequence",
		zap.String("dispatch_id", handle.ID.String()),
		zap.Int("status_code", handle.StatusCode),
		zap.String("controller_ref", handle.ControllerRef))
	return handle, nil
}

func (d *Dispatcher) record(ctx context.Context, rec *storage.DispatchRecord) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordDispatch(ctx, rec); err != nil {
		d.logger.Error("Failed to record dispatch",
			zap.String("dispatch_id", rec.ID.String()),
			zap.Error(err))
	}
}

// controllerRef picks an execution id out of a JSON acknowledgement, if the
// controller sent one.
func controllerRef(body []byte) string {
	var ack map[string]any
	if err := json.Unmarshal(body, &ack); err != nil {
		return ""
	}
	for _, key := range []string{"execution_id", "id"} {
		switch v := ack[key].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
