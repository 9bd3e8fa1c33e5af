package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"switchboard/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func TestPublishSynchronous(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var got []string
	bus.Subscribe(domain.EventSessionCreated, func(_ context.Context, e domain.Event) {
		got = append(got, e.SessionID)
	})

	bus.Publish(context.Background(), domain.Event{
		Type:      domain.EventSessionCreated,
		Timestamp: time.Now(),
		SessionID: "s1",
	})

	// Synchronous delivery: no waiting, the handler already ran.
	if len(got) != 1 || got[0] != "s1" {
		t.Fatalf("handler not invoked before Publish returned: %v", got)
	}
}

func TestTypedAndAllSubscribers(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var typed, all int
	bus.Subscribe(domain.EventSessionSet, func(context.Context, domain.Event) { typed++ })
	bus.SubscribeAll(func(context.Context, domain.Event) { all++ })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventSessionSet})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventSessionDeleted})

	if typed != 1 {
		t.Errorf("typed handler calls = %d, want 1", typed)
	}
	if all != 2 {
		t.Errorf("all handler calls = %d, want 2", all)
	}
}

func TestPanickingHandlerIsolated(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var after bool
	bus.Subscribe(domain.EventSessionGC, func(context.Context, domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventSessionGC, func(context.Context, domain.Event) { after = true })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventSessionGC})

	if !after {
		t.Error("handler after the panicking one did not fire")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var calls int
	unsub := bus.Subscribe(domain.EventAgentRegistered, func(context.Context, domain.Event) { calls++ })

	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentRegistered})
	unsub()
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentRegistered})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPublishAfterClose(t *testing.T) {
	bus := newTestBus()

	var calls int
	bus.SubscribeAll(func(context.Context, domain.Event) { calls++ })

	bus.Close()
	bus.Publish(context.Background(), domain.Event{Type: domain.EventTaskRouted})

	if calls != 0 {
		t.Errorf("publish after close delivered %d events", calls)
	}
}
