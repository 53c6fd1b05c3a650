package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of an event
type EventType string

// Standard event types
const (
	// Planning events
	EventPlanCreated EventType = "plan_created"

	// Tool call events
	EventToolCallStarted   EventType = "tool_call_started"
	EventToolCallSucceeded EventType = "tool_call_succeeded"
	EventToolCallFailed    EventType = "tool_call_failed"
	EventToolCallRetry     EventType = "tool_call_retry"
	EventCacheHit          EventType = "cache_hit"

	// Run lifecycle events
	EventRunStarted   EventType = "run_started"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened during a run
type Event interface {
	// ID uniquely identifies this event
	ID() string

	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Source returns information about what generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish queues an event for all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types and returns
	// a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close drains queued events and shuts the bus down
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	id         string
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  time.Time
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		id:         uuid.NewString(),
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UTC(),
		sourceInfo: source,
	}
}

func (e *BaseEvent) ID() string                       { return e.id }
func (e *BaseEvent) Type() EventType                  { return e.eventType }
func (e *BaseEvent) Payload() interface{}             { return e.payload }
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }
func (e *BaseEvent) Timestamp() time.Time             { return e.timestamp }
func (e *BaseEvent) Source() string                   { return e.sourceInfo }

// WithMetadata adds or updates metadata and returns the same event
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}
