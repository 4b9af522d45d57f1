package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("broker: %v", err)
	}
	return b
}

func TestRedisBrokerDeliversEvents(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("plan-1")
	defer b.Unsubscribe("plan-1", ch)

	b.Publish("plan-1", PlanEvent{Type: "trip.committed", Data: map[string]any{"tripId": "t1"}})

	select {
	case evt := <-ch:
		if evt.Type != "trip.committed" {
			t.Fatalf("want trip.committed, got %s", evt.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestRedisBrokerUnsubscribeClosesCleanly(t *testing.T) {
	b := newTestRedisBroker(t)
	ch := b.Subscribe("plan-1")
	b.Unsubscribe("plan-1", ch)

	// a publish racing the unsubscribe must not panic: only the pump
	// goroutine closes the channel, after the pubsub stream has ended
	b.Publish("plan-1", PlanEvent{Type: "plan.finished"})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after unsubscribe")
		}
	}
}
