package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const subscriberBuffer = 100

// Event is one change to a session, as seen by live observers.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives every event regardless of session.
type Sink interface {
	Deliver(event *Event)
}

// Streamer fans session events out to subscribers. Delivery never blocks the
// publishing session; a full subscriber misses events.
type Streamer struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID][]chan *Event
	sinks       []Sink
}

func NewStreamer() *Streamer {
	return &Streamer{
		subscribers: make(map[uuid.UUID][]chan *Event),
	}
}

// AddSink registers a global receiver.
func (s *Streamer) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Subscribe returns a channel of events for one session. uuid.Nil subscribes
// to every session.
func (s *Streamer) Subscribe(sessionID uuid.UUID) <-chan *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *Event, subscriberBuffer)
	s.subscribers[sessionID] = append(s.subscribers[sessionID], ch)
	return ch
}

func (s *Streamer) Unsubscribe(sessionID uuid.UUID, ch <-chan *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[sessionID]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(s.subscribers[sessionID]) == 0 {
		delete(s.subscribers, sessionID)
	}
}

// Publish implements sequence.Publisher.
func (s *Streamer) Publish(sessionID uuid.UUID, eventType string, payload map[string]any) {
	s.Broadcast(&Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (s *Streamer) Broadcast(event *Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deliver := func(subs []chan *Event) {
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
				// Skip if channel is full
			}
		}
	}
	deliver(s.subscribers[event.SessionID])
	if event.SessionID != uuid.Nil {
		deliver(s.subscribers[uuid.Nil])
	}

	for _, sink := range s.sinks {
		sink.Deliver(event)
	}
}

func (s *Streamer) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, subs := range s.subscribers {
		n += len(subs)
	}
	return n
}
