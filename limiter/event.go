package limiter

import (
	"context"
	"time"
)

// Event Type
type EventType string

const (
	// EventAllowed admission granted
	EventAllowed EventType = "allowed"

	// EventRejected admission denied
	EventRejected EventType = "rejected"

	// EventQueued request parked in a limiter queue
	EventQueued EventType = "queued"

	// EventDequeued queued request granted by the dispatcher
	EventDequeued EventType = "dequeued"

	// EventWaitCancelled queued request abandoned by its caller
	EventWaitCancelled EventType = "wait_cancelled"

	// EventWaitTimeout queued request exceeded the queue timeout
	EventWaitTimeout EventType = "wait_timeout"

	// EventReleased stateful permits returned
	EventReleased EventType = "released"

	// EventPartitionCreated a partition limiter was created lazily
	EventPartitionCreated EventType = "partition_created"
)

// Event interface
type Event interface {
	Type() EventType
	Policy() string
	LimiterID() string
	Context() context.Context
	Timestamp() time.Time
}

// BaseEvent basic event
type BaseEvent struct {
	eventType EventType
	policy    string
	limiterID string
	ctx       context.Context
	timestamp time.Time
}

// NewBaseEvent creates a base event stamped with the limiter clock
func NewBaseEvent(eventType EventType, policy, limiterID string, ctx context.Context, at time.Time) BaseEvent {
	if ctx == nil {
		ctx = context.Background()
	}
	return BaseEvent{
		eventType: eventType,
		policy:    policy,
		limiterID: limiterID,
		ctx:       ctx,
		timestamp: at,
	}
}

// Type Return event type
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Policy returns the policy name
func (e *BaseEvent) Policy() string {
	return e.policy
}

// LimiterID returns the limiter that produced the event
func (e *BaseEvent) LimiterID() string {
	return e.limiterID
}

// Context returns the context
func (e *BaseEvent) Context() context.Context {
	return e.ctx
}

// Return timestamp
func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// AllowedEvent permitted events
type AllowedEvent struct {
	BaseEvent
	Permits int64
}

// RejectedEvent rejected event
type RejectedEvent struct {
	BaseEvent
	Reason     Reason
	RetryAfter time.Duration
	HasRetry   bool
}

// QueueEvent queue transition (queued, dequeued, wait_cancelled, wait_timeout)
type QueueEvent struct {
	BaseEvent
	Permits       int64
	QueuedPermits int64
	Waited        time.Duration
}

// ReleasedEvent stateful permits returned
type ReleasedEvent struct {
	BaseEvent
	Permits int64
}

// PartitionCreatedEvent new partition limiter
type PartitionCreatedEvent struct {
	BaseEvent
	PartitionKey string
	Algorithm    string
}

// EventListener event listener interface
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc event listener function type
type EventListenerFunc func(event Event)

// OnEvent implements EventListener interface
func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// EventBus event bus interface
type EventBus interface {
	// Subscribe to every event
	Subscribe(listener EventListener)

	// SubscribeTypes to the given event types only
	SubscribeTypes(listener EventListener, types ...EventType)

	// Publish event
	Publish(event Event)

	// Close event bus
	Close()
}
