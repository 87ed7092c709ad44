// Package stream fan-outs pool activity events to live subscribers. The
// HTTP layer exposes it as a server-sent event feed per pool; slow
// subscribers are dropped rather than allowed to block publishers.
package stream

import (
	"context"
	"sync"
	"time"
)

// EventType names the activity kinds published on the feed.
type EventType string

const (
	EventTreasuryEntry    EventType = "treasury_entry"
	EventVoteCast         EventType = "vote_cast"
	EventProposalResolved EventType = "proposal_resolved"
)

// Event is one pool activity item.
type Event struct {
	PoolID    string    `json:"pool_id"`
	Type      EventType `json:"type"`
	Subject   string    `json:"subject"` // entry or proposal id
	Actor     string    `json:"actor"`
	Amount    int64     `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	poolID string
	ch     chan Event
}

// Stream delivers events to all active subscribers of a pool.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for one pool's events. The channel is
// closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context, poolID string) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{poolID: poolID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to every subscriber of its pool.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.poolID != evt.PoolID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
