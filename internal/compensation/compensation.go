// Package compensation is the compensation registry:
// a dual-key lookup of per-node-type and per-instance handlers, and the
// three compensation operations the rollback coordinator and the
// transaction manager's Saga path build on.
package compensation

import (
	"context"
	"fmt"
	"sync"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/logger"
)

// Handler undoes the effect of a completed node. originalOutput is the
// NODE_COMPLETED event's output snapshot.
type Handler func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error

// Result reports the outcome of compensating a single node.
type Result struct {
	NodeID string
	Success bool
	Reason string
}

// Registry holds compensation handlers under two keys; the per-instance
// key takes precedence over the per-node-type key.
type Registry struct {
	mu sync.RWMutex
	byNodeType map[domain.NodeType]Handler
	byInstance map[string]Handler // "{executionId}:{nodeId}"

	events eventstore.EventStore
	log *logger.Logger
}

// New builds an empty Registry backed by events for timeline lookups and
// marking compensated events.
func New(events eventstore.EventStore, log *logger.Logger) *Registry {
	return &Registry{
		byNodeType: make(map[domain.NodeType]Handler),
		byInstance: make(map[string]Handler),
		events: events,
		log: log,
	}
}

// RegisterNodeType registers a default compensation handler for nodeType.
func (r *Registry) RegisterNodeType(nodeType domain.NodeType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNodeType[nodeType] = h
}

// RegisterInstance registers a compensation handler scoped to one node
// within one execution, overriding any node-type default. Used by the
// transaction manager's 2PC prepare phase.
func (r *Registry) RegisterInstance(executionID, nodeID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byInstance[instanceKey(executionID, nodeID)] = h
}

func instanceKey(executionID, nodeID string) string {
	return executionID + ":" + nodeID
}

func (r *Registry) resolve(executionID, nodeID string, nodeType domain.NodeType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.byInstance[instanceKey(executionID, nodeID)]; ok {
		return h, true
	}
	h, ok := r.byNodeType[nodeType]
	return h, ok
}

// CompensateNode compensates the latest completed attempt of nodeID
// within executionID.
func (r *Registry) CompensateNode(ctx context.Context, executionID, nodeID string) (*Result, error) {
	events, err := r.events.EventsByNode(ctx, executionID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load events for node %q: %w", nodeID, err)
	}
	if len(events) == 0 {
		return &Result{NodeID: nodeID, Success: false, Reason: "no events"}, nil
	}

	var completed *domain.ExecutionEvent
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType == domain.EventNodeCompleted {
			completed = events[i]
			break
		}
	}
	if completed == nil {
		return &Result{NodeID: nodeID, Success: false, Reason: "node not completed"}, nil
	}

	handler, ok := r.resolve(executionID, nodeID, completed.NodeType)
	if !ok {
		if _, err := eventstore.AppendNext(ctx, r.events, executionID, &domain.ExecutionEvent{
			EventType: domain.EventCompensationInitiated,
			NodeID: nodeID,
			NodeType: completed.NodeType,
			Status: "FAILED",
		}); err != nil {
			return nil, err
		}
		return &Result{NodeID: nodeID, Success: false, Reason: "no handler"}, nil
	}

	if _, err := eventstore.AppendNext(ctx, r.events, executionID, &domain.ExecutionEvent{
		EventType: domain.EventCompensationInitiated,
		NodeID: nodeID,
		NodeType: completed.NodeType,
		Status: "RUNNING",
	}); err != nil {
		return nil, err
	}

	if err := handler(ctx, executionID, nodeID, completed.NodeType, completed.OutputSnapshot); err != nil {
		if _, aerr := eventstore.AppendNext(ctx, r.events, executionID, &domain.ExecutionEvent{
			EventType: domain.EventCompensationFailed,
			NodeID: nodeID,
			NodeType: completed.NodeType,
			Status: "FAILED",
			ErrorSnapshot: err.Error(),
		}); aerr != nil {
			r.log.Error("append COMPENSATION_FAILED", "error", aerr)
		}
		return &Result{NodeID: nodeID, Success: false, Reason: err.Error()}, nil
	}

	compEvt, err := eventstore.AppendNext(ctx, r.events, executionID, &domain.ExecutionEvent{
		EventType: domain.EventCompensationCompleted,
		NodeID: nodeID,
		NodeType: completed.NodeType,
		Status: "COMPLETED",
	})
	if err != nil {
		return nil, err
	}
	if err := r.events.MarkCompensated(ctx, completed.ID, compEvt.ID); err != nil {
		r.log.Error("mark node completed event compensated", "error", err, "node_id", nodeID)
	}

	return &Result{NodeID: nodeID, Success: true}, nil
}

// CompensateSequence compensates every node completed between startNodeID
// and endNodeID (inclusive) in reverse completion order, stopping at the
// first failure.
func (r *Registry) CompensateSequence(ctx context.Context, executionID, startNodeID, endNodeID string) ([]*Result, error) {
	completed, err := r.completedNodesInOrder(ctx, executionID)
	if err != nil {
		return nil, err
	}

	startIdx, endIdx := -1, -1
	for i, e := range completed {
		if e.NodeID == startNodeID {
			startIdx = i
		}
		if e.NodeID == endNodeID {
			endIdx = i
		}
	}
	if startIdx == -1 || endIdx == -1 || startIdx > endIdx {
		return nil, fmt.Errorf("invalid compensation anchors %q..%q", startNodeID, endNodeID)
	}

	span := completed[startIdx : endIdx+1]
	var results []*Result
	for i := len(span) - 1; i >= 0; i-- {
		result, err := r.CompensateNode(ctx, executionID, span[i].NodeID)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if !result.Success {
			break
		}
	}
	return results, nil
}

// CompensateWorkflow compensates every completed node in reverse
// completion order, continuing past individual failures and collecting
// every result.
func (r *Registry) CompensateWorkflow(ctx context.Context, executionID string) ([]*Result, error) {
	completed, err := r.completedNodesInOrder(ctx, executionID)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(completed))
	for i := len(completed) - 1; i >= 0; i-- {
		result, err := r.CompensateNode(ctx, executionID, completed[i].NodeID)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *Registry) completedNodesInOrder(ctx context.Context, executionID string) ([]*domain.ExecutionEvent, error) {
	timeline, err := r.events.Timeline(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	out := make([]*domain.ExecutionEvent, 0, len(timeline))
	for _, e := range timeline {
		if e.EventType == domain.EventNodeCompleted {
			out = append(out, e)
		}
	}
	return out, nil
}
