package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Standard event types
const (
	// Intent classification events
	EventClassificationStarted EventType = "classification_started"
	EventClassificationSuccess EventType = "classification_success"
	EventClassificationFailure EventType = "classification_failure"

	// Task planning events
	EventPlanningStarted EventType = "planning_started"
	EventPlanningSuccess EventType = "planning_success"
	EventPlanningFailure EventType = "planning_failure"

	// Tool execution events
	EventToolExecutionStarted EventType = "tool_execution_started"
	EventToolExecutionSuccess EventType = "tool_execution_success"
	EventToolExecutionFailure EventType = "tool_execution_failure"
	EventToolExecutionSkipped EventType = "tool_execution_skipped"

	// Tier barrier events
	EventTierStarted  EventType = "tier_started"
	EventTierReleased EventType = "tier_released"

	// Plan execution events
	EventPlanExecutionStarted EventType = "plan_execution_started"
	EventPlanExecutionSuccess EventType = "plan_execution_success"
	EventPlanExecutionPartial EventType = "plan_execution_partial"

	// Aggregation events
	EventAggregationCompleted EventType = "aggregation_completed"

	// Narrative stage events
	EventNarrativeStarted EventType = "narrative_started"
	EventNarrativeSuccess EventType = "narrative_success"
	EventNarrativeFailure EventType = "narrative_failure"

	// Pipeline run events
	EventRunStarted EventType = "run_started"
	EventRunSuccess EventType = "run_success"
	EventRunFailure EventType = "run_failure"

	// Async run events
	EventRunAsyncStarted   EventType = "run_async_started"
	EventRunAsyncSuccess   EventType = "run_async_success"
	EventRunAsyncFailure   EventType = "run_async_failure"
	EventRunAsyncCancelled EventType = "run_async_cancelled"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the pipeline
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish sends an event to all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types
	// Returns a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the event bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
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
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

// Type returns the event type
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Payload returns the event data
func (e *BaseEvent) Payload() interface{} {
	return e.payload
}

// Metadata returns additional information about the event
func (e *BaseEvent) Metadata() map[string]interface{} {
	return e.metadata
}

// Timestamp returns when the event occurred
func (e *BaseEvent) Timestamp() int64 {
	return e.timestamp
}

// Source returns information about what generated the event
func (e *BaseEvent) Source() string {
	return e.sourceInfo
}

// WithMetadata adds or updates a metadata entry and returns the same event,
// allowing fluent chaining.
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}
