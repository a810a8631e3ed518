package sequence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	DefaultLogging    Logging
	MaxFilenameLength int
	SessionTTL        time.Duration
}

// Registry holds the operator sessions of this process.
type Registry struct {
	opts      Options
	publisher Publisher
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry(opts Options, publisher Publisher, logger *zap.Logger) *Registry {
	if opts.MaxFilenameLength <= 0 {
		opts.MaxFilenameLength = 64
	}
	return &Registry{
		opts:      opts,
		publisher: publisher,
		logger:    logger,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

func (r *Registry) Create() *Session {
	s := newSession(uuid.New(), r.opts, r.publisher, r.logger)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.logger.Info("Session created", zap.String("session_id", s.ID().String()))
	return s
}

func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Resource: "session", Key: id.String()}
	}
	return s, nil
}

func (r *Registry) Exists(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return &NotFoundError{Resource: "session", Key: id.String()}
	}
	delete(r.sessions, id)
	r.logger.Info("Session deleted", zap.String("session_id", id.String()))
	return nil
}

// List returns snapshots of every session, oldest update first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL. A session with a
// dispatch in flight is never dropped.
func (r *Registry) Sweep(now time.Time) int {
	if r.opts.SessionTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for id, s := range r.sessions {
		touched, state := s.idleSince()
		if state == StateDispatching {
			continue
		}
		if now.Sub(touched) > r.opts.SessionTTL {
			delete(r.sessions, id)
			expired++
		}
	}
	if expired > 0 {
		r.logger.Info("Expired idle sessions", zap.Int("count", expired))
	}
	return expired
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
