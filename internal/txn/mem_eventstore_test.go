package txn

import (
	"context"
	"sync"
	"time"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
)

// memEventStore is an in-process eventstore.EventStore double: enough to
// drive the transaction manager and compensation registry through their
// append/query paths without a database.
type memEventStore struct {
	mu sync.Mutex
	events []*domain.ExecutionEvent
	nextID uint64
}

func newMemEventStore() *memEventStore {
	return &memEventStore{}
}

func (s *memEventStore) Append(_ context.Context, event *domain.ExecutionEvent) (*domain.ExecutionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.IdempotencyKey != "" {
		for _, e := range s.events {
			if e.IdempotencyKey == event.IdempotencyKey {
				return e, nil
			}
		}
	}
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

func (s *memEventStore) MarkCompleted(_ context.Context, eventID uint64, _ int64, outputSnapshot domain.Vars) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			e.OutputSnapshot = outputSnapshot
			return nil
		}
	}
	return nil
}

func (s *memEventStore) MarkFailed(_ context.Context, _ uint64, _, _ string) error {
	return nil
}

func (s *memEventStore) MarkCompensated(_ context.Context, _ uint64, _ uint64) error {
	return nil
}

var _ eventstore.EventStore = (*memEventStore)(nil)
