package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Session store lifecycle. Listeners observe every state transition.
	EventSessionCreated EventType = "session.created"
	EventSessionSet     EventType = "session.set"
	EventSessionUpdated EventType = "session.updated"
	EventSessionDeleted EventType = "session.deleted"
	EventSessionGC      EventType = "session.gc"

	// Agent catalog lifecycle.
	EventAgentRegistered   EventType = "agent.registered"
	EventAgentUpdated      EventType = "agent.updated"
	EventAgentUnregistered EventType = "agent.unregistered"

	// Routing and tool execution.
	EventTaskRouted     EventType = "task.routed"
	EventToolExecuted   EventType = "tool.executed"
	EventChainCompleted EventType = "chain.completed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received. Handlers run
// synchronously on the publisher's goroutine and must not block.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
// Publish delivers synchronously: all handlers have run when it returns.
// A panicking handler is recovered and logged; it never prevents the
// publishing operation from completing or later handlers from firing.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close prevents further publishes.
	Close()
}
