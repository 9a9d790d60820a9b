package compensation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/logger"
)

// memEventStore mirrors the double used by internal/txn: enough of
// eventstore.EventStore to drive the registry's append/query paths
// without a database.
type memEventStore struct {
	mu sync.Mutex
	events []*domain.ExecutionEvent
	nextID uint64
}

func newMemEventStore() *memEventStore { return &memEventStore{} }

func (s *memEventStore) Append(_ context.Context, event *domain.ExecutionEvent) (*domain.ExecutionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	s.events = append(s.events, event)
	return event, nil
}

func (s *memEventStore) Timeline(_ context.Context, executionID string) ([]*domain.ExecutionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ExecutionEvent
	for _, e := range s.events {
		if e.ExecutionID == executionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEventStore) TimelineRange(ctx context.Context, executionID string, sinceSequence int64) ([]*domain.ExecutionEvent, error) {
	all, _ := s.Timeline(ctx, executionID)
	var out []*domain.ExecutionEvent
	for _, e := range all {
		if e.SequenceNumber > sinceSequence {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEventStore) LastEvent(ctx context.Context, executionID string) (*domain.ExecutionEvent, error) {
	all, _ := s.Timeline(ctx, executionID)
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

func (s *memEventStore) EventsByNode(ctx context.Context, executionID, nodeID string) ([]*domain.ExecutionEvent, error) {
	all, _ := s.Timeline(ctx, executionID)
	var out []*domain.ExecutionEvent
	for _, e := range all {
		if e.NodeID == nodeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEventStore) EventsByStatus(ctx context.Context, executionID, status string) ([]*domain.ExecutionEvent, error) {
	all, _ := s.Timeline(ctx, executionID)
	var out []*domain.ExecutionEvent
	for _, e := range all {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEventStore) ExistsByIdempotencyKey(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *memEventStore) FindByTimeRange(_ context.Context, _, _ time.Time, _, _ int) ([]*domain.ExecutionEvent, error) {
	return nil, nil
}

func (s *memEventStore) MarkCompleted(_ context.Context, _ uint64, _ int64, _ domain.Vars) error {
	return nil
}

func (s *memEventStore) MarkFailed(_ context.Context, _ uint64, _, _ string) error { return nil }

func (s *memEventStore) MarkCompensated(_ context.Context, eventID, compensatedByEventID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			e.CompensatedBy = "event"
		}
	}
	_ = compensatedByEventID
	return nil
}

var _ eventstore.EventStore = (*memEventStore)(nil)

func seedCompleted(t *testing.T, events *memEventStore, executionID, nodeID string, nodeType domain.NodeType, seq int64) *domain.ExecutionEvent {
	t.Helper()
	evt, err := events.Append(context.Background(), &domain.ExecutionEvent{
		ExecutionID: executionID,
		SequenceNumber: seq,
		EventType: domain.EventNodeCompleted,
		NodeID: nodeID,
		NodeType: nodeType,
	})
	require.NoError(t, err)
	return evt
}

func TestCompensateNode_NoEventsForNode(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	r := New(events, logger.Nop())

	result, err := r.CompensateNode(context.Background(), "exec-1", "missing")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no events", result.Reason)
}

func TestCompensateNode_NodeNeverCompleted(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	_, err := events.Append(context.Background(), &domain.ExecutionEvent{
		ExecutionID: "exec-1", SequenceNumber: 1, EventType: domain.EventNodeStarted, NodeID: "n1",
	})
	require.NoError(t, err)
	r := New(events, logger.Nop())

	result, err := r.CompensateNode(context.Background(), "exec-1", "n1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "node not completed", result.Reason)
}

func TestCompensateNode_NoHandlerRegisteredAppendsFailedInitiation(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	seedCompleted(t, events, "exec-1", "n1", domain.NodeTask, 1)
	r := New(events, logger.Nop())

	result, err := r.CompensateNode(context.Background(), "exec-1", "n1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no handler", result.Reason)

	timeline, _ := events.Timeline(context.Background(), "exec-1")
	last := timeline[len(timeline)-1]
	assert.Equal(t, domain.EventCompensationInitiated, last.EventType)
	assert.Equal(t, "FAILED", last.Status)
}

func TestCompensateNode_InstanceHandlerTakesPrecedenceOverNodeTypeHandler(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	seedCompleted(t, events, "exec-1", "n1", domain.NodeTask, 1)
	r := New(events, logger.Nop())

	var calledViaType, calledViaInstance bool
	r.RegisterNodeType(domain.NodeTask, func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
		calledViaType = true
		return nil
	})
	r.RegisterInstance("exec-1", "n1", func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
		calledViaInstance = true
		return nil
	})

	result, err := r.CompensateNode(context.Background(), "exec-1", "n1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, calledViaInstance)
	assert.False(t, calledViaType)
}

func TestCompensateNode_HandlerFailureRecordsCompensationFailed(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	seedCompleted(t, events, "exec-1", "n1", domain.NodeTask, 1)
	r := New(events, logger.Nop())
	r.RegisterNodeType(domain.NodeTask, func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
		return errors.New("refund API down")
	})

	result, err := r.CompensateNode(context.Background(), "exec-1", "n1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "refund API down", result.Reason)

	timeline, _ := events.Timeline(context.Background(), "exec-1")
	last := timeline[len(timeline)-1]
	assert.Equal(t, domain.EventCompensationFailed, last.EventType)
	assert.Equal(t, "refund API down", last.ErrorSnapshot)
}

func TestCompensateNode_SuccessMarksOriginalEventCompensated(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	completed := seedCompleted(t, events, "exec-1", "n1", domain.NodeTask, 1)
	r := New(events, logger.Nop())
	r.RegisterNodeType(domain.NodeTask, func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
		return nil
	})

	result, err := r.CompensateNode(context.Background(), "exec-1", "n1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "event", completed.CompensatedBy)
}

func TestCompensateSequence_StopsAtFirstFailureAndReturnsReverseOrder(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	seedCompleted(t, events, "exec-1", "n1", domain.NodeTask, 1)
	seedCompleted(t, events, "exec-1", "n2", domain.NodeTask, 2)
	seedCompleted(t, events, "exec-1", "n3", domain.NodeTask, 3)
	r := New(events, logger.Nop())
	r.RegisterNodeType(domain.NodeTask, func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
		if nodeID == "n2" {
			return errors.New("cannot undo n2")
		}
		return nil
	})

	results, err := r.CompensateSequence(context.Background(), "exec-1", "n1", "n3")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "n3", results[0].NodeID)
	assert.True(t, results[0].Success)
	assert.Equal(t, "n2", results[1].NodeID)
	assert.False(t, results[1].Success)
}

func TestCompensateWorkflow_ContinuesPastFailures(t *testing.T) {
	t.Parallel()
	events := newMemEventStore()
	seedCompleted(t, events, "exec-1", "n1", domain.NodeTask, 1)
	seedCompleted(t, events, "exec-1", "n2", domain.NodeTask, 2)
	r := New(events, logger.Nop())
	r.RegisterNodeType(domain.NodeTask, func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
		if nodeID == "n2" {
			return errors.New("cannot undo n2")
		}
		return nil
	})

	results, err := r.CompensateWorkflow(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "n2", results[0].NodeID)
	assert.False(t, results[0].Success)
	assert.Equal(t, "n1", results[1].NodeID)
	assert.True(t, results[1].Success)
}
