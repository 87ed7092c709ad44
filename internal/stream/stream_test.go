package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesOwnPoolOnly(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA := s.Subscribe(ctx, "pool-a")
	chB := s.Subscribe(ctx, "pool-b")

	s.Publish(Event{PoolID: "pool-a", Type: EventVoteCast, Subject: "prop-1", Actor: "alice"})

	select {
	case evt := <-chA:
		if evt.PoolID != "pool-a" || evt.Type != EventVoteCast {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("timestamp must be filled on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case evt := <-chB:
		t.Fatalf("pool-b subscriber must not receive pool-a events: %+v", evt)
	default:
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "pool-a")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx, "pool-a")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{PoolID: "pool-a", Type: EventTreasuryEntry})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
