package sequence

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/KevinKickass/OpenCellBench/internal/action"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MinPollingIntervalS = 1
	MaxPollingIntervalS = 60
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Submitter sends a complete sequence to the device controller.
type Submitter interface {
	Submit(ctx context.Context, snap Snapshot) (ExecutionHandle, error)
}

// Publisher receives session events.
type Publisher interface {
	Publish(sessionID uuid.UUID, eventType string, payload map[string]any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(uuid.UUID, string, map[string]any) {}

const (
	EventDeviceSelected   = "device_selected"
	EventDeviceDeselected = "device_deselected"
	EventActionAppended   = "action_appended"
	EventActionRemoved    = "action_removed"
	EventSequenceCleared  = "sequence_cleared"
	EventLoggingUpdated   = "logging_updated"
	EventDispatchStarted  = "dispatch_started"
	EventDispatchAccepted = "dispatch_accepted"
	EventDispatchFailed   = "dispatch_failed"
)

// Session owns one operator's sequence. The mutex is never held while a
// dispatch is in flight; mutations are refused during that window instead.
type Session struct {
	id          uuid.UUID
	maxFilename int
	publisher   Publisher
	logger      *zap.Logger

	mu           sync.Mutex
	state        State
	device       *directory.DeviceSummary
	actions      []action.Action
	logging      Logging
	lastDispatch *ExecutionHandle
	touchedAt    time.Time
}

func newSession(id uuid.UUID, opts Options, publisher Publisher, logger *zap.Logger) *Session {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Session{
		id:          id,
		maxFilename: opts.MaxFilenameLength,
		publisher:   publisher,
		logger:      logger.With(zap.String("session_id", id.String())),
		state:       StateEmpty,
		logging:     opts.DefaultLogging,
		touchedAt:   time.Now(),
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SelectDevice binds device to the session. Selecting the device that is
// already bound only refreshes its status. Switching to another device is
// refused while actions are pending.
func (s *Session) SelectDevice(device directory.DeviceSummary) (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked("select device"); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}

	if s.device != nil && s.device.IPAddress == device.IPAddress {
		d := device
		s.device = &d
		snap := s.touchLocked()
		s.mu.Unlock()
		return snap, nil
	}

	if s.device != nil && len(s.actions) > 0 {
		current := s.device.IPAddress
		s.mu.Unlock()
		return Snapshot{}, &ConflictError{
			Op:     "select device",
			Reason: fmt.Sprintf("%d pending actions for %s; clear or dispatch them first", len(s.actions), current),
		}
	}

	d := device
	s.device = &d
	s.actions = nil
	s.state = StateEmpty
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Device selected",
		zap.String("device_name", device.Name),
		zap.String("device_ip", device.IPAddress))
	s.publish(EventDeviceSelected, map[string]any{
		"device_name": device.Name,
		"device_ip":   device.IPAddress,
	})
	return snap, nil
}

// DeselectDevice unbinds the device and discards the sequence.
func (s *Session) DeselectDevice() (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked("deselect device"); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if s.device == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}

	ip := s.device.IPAddress
	dropped := len(s.actions)
	s.device = nil
	s.actions = nil
	s.state = StateEmpty
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Device deselected", zap.String("device_ip", ip), zap.Int("dropped_actions", dropped))
	s.publish(EventDeviceDeselected, map[string]any{"device_ip": ip, "dropped_actions": dropped})
	return snap, nil
}

// AppendDraft validates d and appends the result.
func (s *Session) AppendDraft(d action.Draft) (int, Snapshot, error) {
	a, err := action.Validate(d)
	if err != nil {
		return 0, Snapshot{}, err
	}
	return s.Append(a)
}

// Append re-validates a and appends it, returning its 1-based position.
func (s *Session) Append(a action.Action) (int, Snapshot, error) {
	if err := action.Check(a); err != nil {
		return 0, Snapshot{}, err
	}

	s.mu.Lock()
	if err := s.boundLocked("append action"); err != nil {
		s.mu.Unlock()
		return 0, Snapshot{}, err
	}
	s.actions = append(s.actions, a)
	s.state = StateBuilding
	pos := len(s.actions)
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Action appended", zap.Int("position", pos), zap.String("action", action.Describe(a)))
	s.publish(EventActionAppended, map[string]any{"position": pos, "type": string(a.Kind())})
	return pos, snap, nil
}

// AppendAll appends every action or none of them.
func (s *Session) AppendAll(actions []action.Action) (Snapshot, error) {
	for _, a := range actions {
		if err := action.Check(a); err != nil {
			return Snapshot{}, err
		}
	}

	s.mu.Lock()
	if err := s.boundLocked("append actions"); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	first := len(s.actions) + 1
	s.actions = append(s.actions, actions...)
	if len(s.actions) > 0 {
		s.state = StateBuilding
	}
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Actions appended", zap.Int("first_position", first), zap.Int("count", len(actions)))
	for i, a := range actions {
		s.publish(EventActionAppended, map[string]any{"position": first + i, "type": string(a.Kind())})
	}
	return snap, nil
}

// Remove deletes the action at the 1-based position. Later actions move up
// by one.
func (s *Session) Remove(position int) (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked("remove action"); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if position < 1 || position > len(s.actions) {
		n := len(s.actions)
		s.mu.Unlock()
		return Snapshot{}, &NotFoundError{
			Resource: "action",
			Key:      fmt.Sprintf("position %d (sequence has %d)", position, n),
		}
	}

	removed := s.actions[position-1]
	next := make([]action.Action, 0, len(s.actions)-1)
	next = append(next, s.actions[:position-1]...)
	next = append(next, s.actions[position:]...)
	s.actions = next
	if len(s.actions) == 0 {
		s.state = StateEmpty
	}
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Action removed", zap.Int("position", position), zap.String("type", string(removed.Kind())))
	s.publish(EventActionRemoved, map[string]any{"position": position, "type": string(removed.Kind())})
	return snap, nil
}

// Clear empties the action list. The device binding and logging settings
// are kept.
func (s *Session) Clear() (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked("clear sequence"); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	dropped := len(s.actions)
	s.actions = nil
	s.state = StateEmpty
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Sequence cleared", zap.Int("dropped_actions", dropped))
	s.publish(EventSequenceCleared, map[string]any{"dropped_actions": dropped})
	return snap, nil
}

// SetLogging updates the telemetry settings. Nil arguments keep the current
// value.
func (s *Session) SetLogging(enabled bool, filename *string, pollingIntervalS *int) (Snapshot, error) {
	s.mu.Lock()
	if err := s.mutableLocked("update logging"); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}

	next := s.logging
	next.Enabled = enabled
	if filename != nil {
		next.Filename = *filename
	}
	if pollingIntervalS != nil {
		next.PollingIntervalS = *pollingIntervalS
	}

	if err := validateLogging(next, s.maxFilename); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}

	s.logging = next
	snap := s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Logging updated",
		zap.Bool("enabled", next.Enabled),
		zap.String("filename", next.Filename),
		zap.Int("polling_interval_s", next.PollingIntervalS))
	s.publish(EventLoggingUpdated, map[string]any{
		"enabled":            next.Enabled,
		"filename":           next.Filename,
		"polling_interval_s": next.PollingIntervalS,
	})
	return snap, nil
}

// Dispatch submits the sequence once. On success the actions are cleared;
// on any failure they are left exactly as they were.
func (s *Session) Dispatch(ctx context.Context, sub Submitter) (ExecutionHandle, error) {
	s.mu.Lock()
	if s.state == StateDispatching {
		s.mu.Unlock()
		return ExecutionHandle{}, &ConflictError{Op: "dispatch", Reason: "a dispatch is already in progress"}
	}
	if s.device == nil {
		s.mu.Unlock()
		return ExecutionHandle{}, &ConflictError{Op: "dispatch", Reason: "no device selected"}
	}
	if len(s.actions) == 0 {
		s.mu.Unlock()
		return ExecutionHandle{}, ErrEmptySequence
	}
	if err := validateLogging(s.logging, s.maxFilename); err != nil {
		s.mu.Unlock()
		return ExecutionHandle{}, err
	}

	snap := s.snapshotLocked()
	s.state = StateDispatching
	s.mu.Unlock()

	s.logger.Info("Dispatching sequence",
		zap.String("device_ip", snap.Device.IPAddress),
		zap.Int("actions", len(snap.Actions)),
		zap.Bool("sd_logging", snap.Logging.Enabled))
	s.publish(EventDispatchStarted, map[string]any{
		"device_ip": snap.Device.IPAddress,
		"actions":   len(snap.Actions),
	})

	handle, err := s.submit(ctx, sub, snap)

	s.mu.Lock()
	if err != nil {
		s.state = StateBuilding
		s.touchLocked()
		s.mu.Unlock()

		s.logger.Warn("Dispatch failed, sequence preserved", zap.Error(err))
		s.publish(EventDispatchFailed, map[string]any{"error": err.Error()})
		return ExecutionHandle{}, err
	}

	s.actions = nil
	s.state = StateEmpty
	h := handle
	s.lastDispatch = &h
	s.touchLocked()
	s.mu.Unlock()

	s.logger.Info("Dispatch accepted",
		zap.String("dispatch_id", handle.ID.String()),
		zap.Int("status_code", handle.StatusCode))
	s.publish(EventDispatchAccepted, map[string]any{
		"dispatch_id": handle.ID.String(),
		"status_code": handle.StatusCode,
	})
	return handle, nil
}

// submit runs the network call. A panicking Submitter hands the sequence back
// to the operator before the panic propagates.
func (s *Session) submit(ctx context.Context, sub Submitter, snap Snapshot) (ExecutionHandle, error) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.state = StateBuilding
			s.touchLocked()
			s.mu.Unlock()

			s.logger.Error("Submitter panicked, sequence preserved", zap.Any("panic", r))
			panic(r)
		}
	}()
	return sub.Submit(ctx, snap)
}

func (s *Session) idleSince() (time.Time, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt, s.state
}

func (s *Session) mutableLocked(op string) error {
	if s.state == StateDispatching {
		return &ConflictError{Op: op, Reason: "a dispatch is in progress"}
	}
	return nil
}

func (s *Session) boundLocked(op string) error {
	if err := s.mutableLocked(op); err != nil {
		return err
	}
	if s.device == nil {
		return &ConflictError{Op: op, Reason: "no device selected"}
	}
	return nil
}

func (s *Session) touchLocked() Snapshot {
	s.touchedAt = time.Now()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Actions:   make([]action.Entry, 0, len(s.actions)),
		Logging:   s.logging,
		UpdatedAt: s.touchedAt,
	}
	if s.device != nil {
		d := *s.device
		snap.Device = &d
	}
	if s.lastDispatch != nil {
		h := *s.lastDispatch
		snap.LastDispatch = &h
	}
	for i, a := range s.actions {
		snap.Actions = append(snap.Actions, action.Entry{Position: i + 1, Type: a.Kind(), Params: a})
	}
	return snap
}

func (s *Session) publish(eventType string, payload map[string]any) {
	s.publisher.Publish(s.id, eventType, payload)
}

func validateLogging(l Logging, maxFilename int) error {
	var v []action.Violation

	if l.PollingIntervalS < MinPollingIntervalS || l.PollingIntervalS > MaxPollingIntervalS {
		v = append(v, action.Violation{
			Field:   "polling_interval_s",
			Value:   l.PollingIntervalS,
			Rule:    action.RuleRange,
			Min:     action.IntPtr(MinPollingIntervalS),
			Max:     action.IntPtr(MaxPollingIntervalS),
			Message: "polling_interval_s must be between 1 and 60, got " + strconv.Itoa(l.PollingIntervalS),
		})
	}

	if l.Enabled {
		switch {
		case l.Filename == "":
			v = append(v, action.Violation{
				Field:   "filename",
				Rule:    action.RuleRequired,
				Message: "filename is required when logging is enabled",
			})
		case len(l.Filename) > maxFilename:
			v = append(v, action.Violation{
				Field:   "filename",
				Value:   l.Filename,
				Rule:    action.RuleRange,
				Max:     action.IntPtr(maxFilename),
				Message: fmt.Sprintf("filename must be at most %d characters", maxFilename),
			})
		case !filenamePattern.MatchString(l.Filename):
			v = append(v, action.Violation{
				Field:   "filename",
				Value:   l.Filename,
				Rule:    action.RuleRange,
				Message: "filename may only contain letters, digits, '_', '-' and '.'",
			})
		}
	}

	if len(v) > 0 {
		return &action.ValidationError{Violations: v}
	}
	return nil
}
