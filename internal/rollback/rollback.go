// Package rollback is the rollback coordinator: it
// drives the compensation registry to undo already-completed nodes and
// restores instance variables from the compensated event's snapshot.
package rollback

import (
	"context"
	"fmt"
	"sort"

	"github.com/wfcore/engine/internal/compensation"
	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/statemanager"
)

// Result reports the outcome of one rollback operation.
type Result struct {
	ExecutionID string
	Success bool
	RolledBack []string
	Failed []string
	Details string
}

// Coordinator drives compensation and checkpoint bookkeeping for an
// execution.
type Coordinator struct {
	compensations *compensation.Registry
	events eventstore.EventStore
	states statemanager.StateManager
}

// New builds a Coordinator.
func New(compensations *compensation.Registry, events eventstore.EventStore, states statemanager.StateManager) *Coordinator {
	return &Coordinator{compensations: compensations, events: events, states: states}
}

// RollbackNode compensates a single node and, if the compensated event
// carried a variables snapshot, restores the instance's variables from
// it.
func (c *Coordinator) RollbackNode(ctx context.Context, executionID, nodeID string, reason domain.RollbackReason) (*Result, error) {
	if _, err := eventstore.AppendNext(ctx, c.events, executionID, &domain.ExecutionEvent{
		EventType: domain.EventRollbackInitiated,
		NodeID: nodeID,
		Status: "RUNNING",
		DecisionResult: string(reason.Code),
		Message: reason.Details,
	}); err != nil {
		return nil, fmt.Errorf("append ROLLBACK_INITIATED: %w", err)
	}

	compResult, err := c.compensations.CompensateNode(ctx, executionID, nodeID)
	if err != nil {
		return nil, err
	}

	if compResult.Success {
		if events, err := c.events.EventsByNode(ctx, executionID, nodeID); err == nil {
			for _, e := range events {
				if e.EventType == domain.EventNodeCompleted && len(e.VariablesSnapshot) > 0 {
					if err := c.states.UpdateVariables(ctx, executionID, e.VariablesSnapshot); err != nil {
						return nil, fmt.Errorf("restore variables from rollback snapshot: %w", err)
					}
				}
			}
		}
		if _, err := eventstore.AppendNext(ctx, c.events, executionID, &domain.ExecutionEvent{
			EventType: domain.EventRollbackCompleted,
			NodeID: nodeID,
			Status: "COMPLETED",
		}); err != nil {
			return nil, fmt.Errorf("append ROLLBACK_COMPLETED: %w", err)
		}
		return &Result{ExecutionID: executionID, Success: true, RolledBack: []string{nodeID}}, nil
	}

	if _, err := eventstore.AppendNext(ctx, c.events, executionID, &domain.ExecutionEvent{
		EventType: domain.EventRollbackFailed,
		NodeID: nodeID,
		Status: "FAILED",
		Message: compResult.Reason,
	}); err != nil {
		return nil, fmt.Errorf("append ROLLBACK_FAILED: %w", err)
	}
	return &Result{ExecutionID: executionID, Success: false, Failed: []string{nodeID}, Details: compResult.Reason}, nil
}

// RollbackToCheckpoint rolls back every NODE_COMPLETED event with
// sequence number greater than checkpointSeq, in descending sequence
// order. Success iff every individual rollback succeeds.
func (c *Coordinator) RollbackToCheckpoint(ctx context.Context, executionID string, checkpointSeq int64, reason domain.RollbackReason) (*Result, error) {
	timeline, err := c.events.TimelineRange(ctx, executionID, checkpointSeq)
	if err != nil {
		return nil, fmt.Errorf("load timeline past checkpoint: %w", err)
	}

	var completed []*domain.ExecutionEvent
	for _, e := range timeline {
		if e.EventType == domain.EventNodeCompleted {
			completed = append(completed, e)
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].SequenceNumber > completed[j].SequenceNumber })

	result := &Result{ExecutionID: executionID, Success: true}
	for _, e := range completed {
		nodeResult, err := c.RollbackNode(ctx, executionID, e.NodeID, reason)
		if err != nil {
			return nil, err
		}
		if nodeResult.Success {
			result.RolledBack = append(result.RolledBack, e.NodeID)
		} else {
			result.Success = false
			result.Failed = append(result.Failed, e.NodeID)
		}
	}
	return result, nil
}

// RollbackWorkflow rolls back every completed node in reverse completion
// order and transitions the instance to CANCELLED.
func (c *Coordinator) RollbackWorkflow(ctx context.Context, executionID string, reason domain.RollbackReason) (*Result, error) {
	timeline, err := c.events.Timeline(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}

	var completed []*domain.ExecutionEvent
	for _, e := range timeline {
		if e.EventType == domain.EventNodeCompleted {
			completed = append(completed, e)
		}
	}

	result := &Result{ExecutionID: executionID, Success: true}
	for i := len(completed) - 1; i >= 0; i-- {
		nodeResult, err := c.RollbackNode(ctx, executionID, completed[i].NodeID, reason)
		if err != nil {
			return nil, err
		}
		if nodeResult.Success {
			result.RolledBack = append(result.RolledBack, completed[i].NodeID)
		} else {
			result.Success = false
			result.Failed = append(result.Failed, completed[i].NodeID)
		}
	}

	if err := c.states.CancelWorkflow(ctx, executionID, "rollback-coordinator"); err != nil {
		return nil, fmt.Errorf("cancel workflow after rollback: %w", err)
	}
	if _, err := eventstore.AppendNext(ctx, c.events, executionID, &domain.ExecutionEvent{
		EventType: domain.EventWorkflowRolledBack,
		Status: "COMPLETED",
		DecisionResult: string(reason.Code),
		Message: reason.Details,
	}); err != nil {
		return nil, fmt.Errorf("append WORKFLOW_ROLLED_BACK: %w", err)
	}

	return result, nil
}

// CreateCheckpoint appends CHECKPOINT_CREATED and returns its sequence
// number, the checkpoint's durable identity.
func (c *Coordinator) CreateCheckpoint(ctx context.Context, executionID, name string) (int64, error) {
	evt, err := eventstore.AppendNext(ctx, c.events, executionID, &domain.ExecutionEvent{
		EventType: domain.EventCheckpointCreated,
		Status: "COMPLETED",
		Message: name,
	})
	if err != nil {
		return 0, fmt.Errorf("append CHECKPOINT_CREATED: %w", err)
	}
	return evt.SequenceNumber, nil
}

// Checkpoint pairs a sequence number with its name for GetCheckpoints.
type Checkpoint struct {
	SequenceNumber int64
	Name string
}

// GetCheckpoints lists every checkpoint created for executionID, in
// sequence order.
func (c *Coordinator) GetCheckpoints(ctx context.Context, executionID string) ([]Checkpoint, error) {
	events, err := c.events.EventsByStatus(ctx, executionID, "COMPLETED")
	if err != nil {
		return nil, fmt.Errorf("load checkpoint events: %w", err)
	}
	var out []Checkpoint
	for _, e := range events {
		if e.EventType == domain.EventCheckpointCreated {
			out = append(out, Checkpoint{SequenceNumber: e.SequenceNumber, Name: e.Message})
		}
	}
	return out, nil
}
