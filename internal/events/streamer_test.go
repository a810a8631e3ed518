package events

import (
	"sync"
	"testing"

	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ sequence.Publisher = (*Streamer)(nil)

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recordingSink) Deliver(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestPublishReachesSessionAndWildcardSubscribers(t *testing.T) {
	s := NewStreamer()
	sink := &recordingSink{}
	s.AddSink(sink)

	a, b := uuid.New(), uuid.New()
	chA := s.Subscribe(a)
	chAll := s.Subscribe(uuid.Nil)

	s.Publish(a, sequence.EventActionAppended, map[string]any{"position": 1})
	s.Publish(b, sequence.EventSequenceCleared, nil)

	got := <-chA
	assert.Equal(t, a, got.SessionID)
	assert.Equal(t, sequence.EventActionAppended, got.Type)
	assert.Equal(t, 1, got.Payload["position"])
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Len(t, chA, 0)

	first, second := <-chAll, <-chAll
	assert.Equal(t, a, first.SessionID)
	assert.Equal(t, b, second.SessionID)

	assert.Len(t, sink.events, 2)
}

func TestBroadcastDropsWhenSubscriberIsFull(t *testing.T) {
	s := NewStreamer()
	id := uuid.New()
	ch := s.Subscribe(id)

	for i := 0; i < subscriberBuffer+10; i++ {
		s.Publish(id, sequence.EventLoggingUpdated, nil)
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewStreamer()
	id := uuid.New()
	ch := s.Subscribe(id)
	require.Equal(t, 1, s.SubscriberCount())

	s.Unsubscribe(id, ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, s.SubscriberCount())

	s.Publish(id, sequence.EventSequenceCleared, nil)
}
