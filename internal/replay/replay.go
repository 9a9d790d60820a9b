// Package replay reconstructs workflow state from the event log.
// Reduce is the actual reconstruction: a pure function of an event slice
// with no network I/O, no handler invocation, and no clock reads, so two
// replicas replaying the same log always agree. Engine wraps Reduce
// with the one impure step — loading the timeline.
package replay

import (
	"context"
	"fmt"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
)

// EdgeTraversal is one GATEWAY_BRANCH_TAKEN entry in reconstructed order.
type EdgeTraversal struct {
	NodeID string
	EdgeID string
	Sequence int64
}

// State is the result of reconstructing an execution's event log up to
// some point.
type State struct {
	ExecutionID string
	InstanceState domain.InstanceState
	CurrentNodeID string
	Error string
	CompletedNodes []string
	FailedNodes map[string]string
	Variables domain.Vars
	EdgeTraversals []EdgeTraversal
	Checkpoints map[int64]string
	LastSequenceNumber int64
}

// Reduce folds events, in sequence order, into a State. It performs no
// I/O and reads no clock — the only time values it sees are copied from
// the events themselves.
func Reduce(events []*domain.ExecutionEvent) *State {
	state := &State{
		Variables: make(domain.Vars),
		FailedNodes: make(map[string]string),
		Checkpoints: make(map[int64]string),
	}
	seenCompleted := make(map[string]bool)

	for _, e := range events {
		if e.ExecutionID != "" {
			state.ExecutionID = e.ExecutionID
		}
		state.LastSequenceNumber = e.SequenceNumber

		switch e.EventType {
		case domain.EventWorkflowStarted:
			state.InstanceState = domain.StateRunning
		case domain.EventWorkflowCompleted:
			state.InstanceState = domain.StateCompleted
		case domain.EventWorkflowFailed:
			state.InstanceState = domain.StateFailed
			state.Error = e.ErrorSnapshot
		case domain.EventNodeStarted:
			state.CurrentNodeID = e.NodeID
		case domain.EventNodeCompleted:
			if !seenCompleted[e.NodeID] {
				seenCompleted[e.NodeID] = true
				state.CompletedNodes = append(state.CompletedNodes, e.NodeID)
			}
			mergeVars(state.Variables, e.VariablesSnapshot)
		case domain.EventNodeFailed:
			state.FailedNodes[e.NodeID] = e.ErrorSnapshot
		case domain.EventVariableSet, domain.EventVariableUpdated:
			mergeVars(state.Variables, e.VariablesSnapshot)
		case domain.EventGatewayBranchTaken:
			state.EdgeTraversals = append(state.EdgeTraversals, EdgeTraversal{
				NodeID: e.NodeID, EdgeID: e.EdgeTaken, Sequence: e.SequenceNumber,
			})
		case domain.EventCheckpointCreated:
			state.Checkpoints[e.SequenceNumber] = e.Message
		}
	}
	return state
}

func mergeVars(dst, src domain.Vars) {
	for k, v := range src {
		dst[k] = v
	}
}

// ResumePoint is what resumeExecution needs to continue a RUNNING
// instance from where it left off.
type ResumePoint struct {
	ExecutionID string
	ResumeNodeID string
	LastSequenceNumber int64
	Variables domain.Vars
	CompletedNodes []string
}

// Engine loads an execution's timeline and reconstructs its state.
type Engine struct {
	events eventstore.EventStore
}

// New builds a replay Engine over events.
func New(events eventstore.EventStore) *Engine {
	return &Engine{events: events}
}

// ReconstructState loads executionID's timeline (optionally truncated at
// uptoSeq) and reduces it to a State.
func (r *Engine) ReconstructState(ctx context.Context, executionID string, uptoSeq *int64) (*State, error) {
	events, err := r.events.Timeline(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load timeline for replay: %w", err)
	}
	if uptoSeq != nil {
		truncated := make([]*domain.ExecutionEvent, 0, len(events))
		for _, e := range events {
			if e.SequenceNumber <= *uptoSeq {
				truncated = append(truncated, e)
			}
		}
		events = truncated
	}
	state := Reduce(events)
	state.ExecutionID = executionID
	return state, nil
}

// CanResume reports whether executionID is RUNNING with a non-empty
// current node — the precondition resumeExecution checks.
func (r *Engine) CanResume(ctx context.Context, executionID string) (bool, error) {
	state, err := r.ReconstructState(ctx, executionID, nil)
	if err != nil {
		return false, err
	}
	return state.InstanceState == domain.StateRunning && state.CurrentNodeID != "", nil
}

// GetResumePoint returns the data resumeExecution needs to continue.
func (r *Engine) GetResumePoint(ctx context.Context, executionID string) (*ResumePoint, error) {
	state, err := r.ReconstructState(ctx, executionID, nil)
	if err != nil {
		return nil, err
	}
	return &ResumePoint{
		ExecutionID: executionID,
		ResumeNodeID: state.CurrentNodeID,
		LastSequenceNumber: state.LastSequenceNumber,
		Variables: state.Variables,
		CompletedNodes: state.CompletedNodes,
	}, nil
}

// ValidateReplayConsistency reconstructs state twice and asserts equality
// on (state, currentNodeId, completedNodes) — a self-test that replay is
// actually deterministic.
func (r *Engine) ValidateReplayConsistency(ctx context.Context, executionID string) (bool, error) {
	a, err := r.ReconstructState(ctx, executionID, nil)
	if err != nil {
		return false, err
	}
	b, err := r.ReconstructState(ctx, executionID, nil)
	if err != nil {
		return false, err
	}
	if a.InstanceState != b.InstanceState || a.CurrentNodeID != b.CurrentNodeID {
		return false, nil
	}
	if len(a.CompletedNodes) != len(b.CompletedNodes) {
		return false, nil
	}
	for i := range a.CompletedNodes {
		if a.CompletedNodes[i] != b.CompletedNodes[i] {
			return false, nil
		}
	}
	return true, nil
}
