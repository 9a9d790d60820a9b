// Package observability is the non-blocking notification fan-out layer
// the engine uses to publish execution events to logging, WebSocket, and
// cross-replica Redis subscribers.
package observability

import (
	"context"
	"time"

	"github.com/wfcore/engine/internal/domain"
)

// EventType is the observer-facing name for the subset of
// domain.EventType values that observers are notified of; every value is
// mapped from a stored domain event type by FromDomainEventType.
type EventType string

const (
	EventTypeExecutionStarted   EventType = "EXECUTION_STARTED"
	EventTypeExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventTypeExecutionFailed    EventType = "EXECUTION_FAILED"
	EventTypeNodeStarted        EventType = "NODE_STARTED"
	EventTypeNodeCompleted      EventType = "NODE_COMPLETED"
	EventTypeNodeFailed         EventType = "NODE_FAILED"
	EventTypeGatewayBranchTaken EventType = "GATEWAY_BRANCH_TAKEN"
)

// FromDomainEventType maps a domain.EventType onto the narrower observer
// vocabulary; event types with no observer-facing meaning map to "".
func FromDomainEventType(t domain.EventType) EventType {
	switch t {
	case domain.EventWorkflowStarted:
		return EventTypeExecutionStarted
	case domain.EventWorkflowCompleted:
		return EventTypeExecutionCompleted
	case domain.EventWorkflowFailed:
		return EventTypeExecutionFailed
	case domain.EventNodeStarted:
		return EventTypeNodeStarted
	case domain.EventNodeCompleted:
		return EventTypeNodeCompleted
	case domain.EventNodeFailed:
		return EventTypeNodeFailed
	case domain.EventGatewayBranchTaken:
		return EventTypeGatewayBranchTaken
	default:
		return ""
	}
}

// Event is what observers are notified with.
type Event struct {
	Type        EventType
	ExecutionID string
	WorkflowID  string
	TenantID    domain.Tenant
	Timestamp   time.Time
	Status      string
	NodeID      *string
	NodeType    *string
	DurationMs  *int64
	Output      domain.Vars
	Error       error
}

// EventFilter decides whether an observer wants a given event.
type EventFilter interface {
	ShouldNotify(event Event) bool
}

// EventTypeFilter passes events whose Type is in its allow-list.
type EventTypeFilter struct {
	types map[EventType]bool
}

// NewEventTypeFilter builds a filter admitting only the given types.
func NewEventTypeFilter(types ...EventType) *EventTypeFilter {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &EventTypeFilter{types: set}
}

func (f *EventTypeFilter) ShouldNotify(event Event) bool {
	return f.types[event.Type]
}

// Observer receives non-blocking event notifications from the manager.
type Observer interface {
	Name() string
	Filter() EventFilter
	OnEvent(ctx context.Context, event Event) error
}
