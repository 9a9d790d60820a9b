package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wfcore/engine/internal/domain"
)

func TestReduce_EmptyLog(t *testing.T) {
	t.Parallel()

	state := Reduce(nil)
	assert.Equal(t, domain.Vars{}, state.Variables)
	assert.Empty(t, state.CompletedNodes)
	assert.Empty(t, state.FailedNodes)
	assert.Equal(t, int64(0), state.LastSequenceNumber)
}

func TestReduce_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	events := []*domain.ExecutionEvent{
		{ExecutionID: "exec-1", SequenceNumber: 1, EventType: domain.EventWorkflowStarted},
		{ExecutionID: "exec-1", SequenceNumber: 2, EventType: domain.EventNodeStarted, NodeID: "n1"},
		{ExecutionID: "exec-1", SequenceNumber: 3, EventType: domain.EventNodeCompleted, NodeID: "n1",
			VariablesSnapshot: domain.Vars{"a": 1}},
		{ExecutionID: "exec-1", SequenceNumber: 4, EventType: domain.EventWorkflowCompleted},
	}

	state := Reduce(events)
	assert.Equal(t, "exec-1", state.ExecutionID)
	assert.Equal(t, domain.StateCompleted, state.InstanceState)
	assert.Equal(t, []string{"n1"}, state.CompletedNodes)
	assert.Equal(t, domain.Vars{"a": 1}, state.Variables)
	assert.Equal(t, int64(4), state.LastSequenceNumber)
}

func TestReduce_NodeCompletedIsIdempotent(t *testing.T) {
	t.Parallel()

	events := []*domain.ExecutionEvent{
		{SequenceNumber: 1, EventType: domain.EventNodeCompleted, NodeID: "n1"},
		{SequenceNumber: 2, EventType: domain.EventNodeCompleted, NodeID: "n1"},
	}

	state := Reduce(events)
	assert.Equal(t, []string{"n1"}, state.CompletedNodes)
}

func TestReduce_WorkflowFailedCarriesError(t *testing.T) {
	t.Parallel()

	events := []*domain.ExecutionEvent{
		{SequenceNumber: 1, EventType: domain.EventNodeFailed, NodeID: "n1", ErrorSnapshot: "boom"},
		{SequenceNumber: 2, EventType: domain.EventWorkflowFailed, ErrorSnapshot: "boom"},
	}

	state := Reduce(events)
	assert.Equal(t, domain.StateFailed, state.InstanceState)
	assert.Equal(t, "boom", state.Error)
	assert.Equal(t, "boom", state.FailedNodes["n1"])
}

func TestReduce_VariableUpdatesMergeLatestWins(t *testing.T) {
	t.Parallel()

	events := []*domain.ExecutionEvent{
		{SequenceNumber: 1, EventType: domain.EventVariableSet, VariablesSnapshot: domain.Vars{"x": 1, "y": 1}},
		{SequenceNumber: 2, EventType: domain.EventVariableUpdated, VariablesSnapshot: domain.Vars{"x": 2}},
	}

	state := Reduce(events)
	assert.Equal(t, domain.Vars{"x": 2, "y": 1}, state.Variables)
}

func TestReduce_GatewayBranchesInOrder(t *testing.T) {
	t.Parallel()

	events := []*domain.ExecutionEvent{
		{SequenceNumber: 1, EventType: domain.EventGatewayBranchTaken, NodeID: "gw1", EdgeTaken: "e1"},
		{SequenceNumber: 2, EventType: domain.EventGatewayBranchTaken, NodeID: "gw1", EdgeTaken: "e2"},
	}

	state := Reduce(events)
	assert.Equal(t, []EdgeTraversal{
		{NodeID: "gw1", EdgeID: "e1", Sequence: 1},
		{NodeID: "gw1", EdgeID: "e2", Sequence: 2},
	}, state.EdgeTraversals)
}

func TestReduce_CheckpointsKeyedBySequence(t *testing.T) {
	t.Parallel()

	events := []*domain.ExecutionEvent{
		{SequenceNumber: 5, EventType: domain.EventCheckpointCreated, Message: "ckpt-1"},
	}

	state := Reduce(events)
	assert.Equal(t, "ckpt-1", state.Checkpoints[5])
}
