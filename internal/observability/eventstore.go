package observability

import (
	"context"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
)

// ObservingEventStore wraps an eventstore.EventStore and notifies a
// Manager after every successful Append, translating the durable event
// row into the observer-facing Event shape. Every other call delegates
// straight through; Append is the only mutation worth observing — the
// event log is the system of record, so this is the single point where
// "something happened" becomes true.
type ObservingEventStore struct {
	eventstore.EventStore
	manager *Manager
}

// NewObservingEventStore wraps store so its Append calls fan out through
// manager.
func NewObservingEventStore(store eventstore.EventStore, manager *Manager) *ObservingEventStore {
	return &ObservingEventStore{EventStore: store, manager: manager}
}

func (o *ObservingEventStore) Append(ctx context.Context, event *domain.ExecutionEvent) (*domain.ExecutionEvent, error) {
	appended, err := o.EventStore.Append(ctx, event)
	if err != nil {
		return nil, err
	}

	observerType := FromDomainEventType(appended.EventType)
	if observerType == "" {
		return appended, nil
	}

	evt := Event{
		Type: observerType,
		ExecutionID: appended.ExecutionID,
		Timestamp: appended.Timestamp,
		Status: appended.Status,
		DurationMs: appended.DurationMs,
		Output: appended.OutputSnapshot,
	}
	if appended.NodeID != "" {
		nodeID := appended.NodeID
		evt.NodeID = &nodeID
	}
	if appended.NodeType != "" {
		nodeType := string(appended.NodeType)
		evt.NodeType = &nodeType
	}
	if appended.ErrorSnapshot != "" {
		evt.Error = errString(appended.ErrorSnapshot)
	}

	o.manager.Notify(ctx, evt)
	return appended, nil
}

type errString string

func (e errString) Error() string { return string(e) }
