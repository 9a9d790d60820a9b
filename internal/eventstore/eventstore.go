// Package eventstore defines the append-only, idempotent execution event
// log. It is the system of record the replay engine (internal/replay)
// reconstructs state from; every state mutation elsewhere in the engine
// is derived from, and justified by, an event appended here first.
package eventstore

import (
	"context"
	"time"

	"github.com/wfcore/engine/internal/domain"
)

// EventStore appends and queries the execution event log. Rows are
// append-only apart from MarkCompleted, MarkFailed and MarkCompensated,
// which update fields of an existing row. Implementations must
// enforce idempotency_key uniqueness and allocate sequence numbers
// atomically per execution_id so concurrent writers never race on
// sequence (invariants).
type EventStore interface {
	// Append assigns the next sequence number for event.ExecutionID and
	// inserts the row. If an event with the same IdempotencyKey already
	// exists, Append is a no-op and returns the existing event without
	// error (idempotent replay of the same logical step).
	Append(ctx context.Context, event *domain.ExecutionEvent) (*domain.ExecutionEvent, error)

	// Timeline returns every event for an execution in sequence order.
	Timeline(ctx context.Context, executionID string) ([]*domain.ExecutionEvent, error)

	// TimelineRange returns events for an execution with sequence number
	// strictly greater than sinceSequence, in sequence order.
	TimelineRange(ctx context.Context, executionID string, sinceSequence int64) ([]*domain.ExecutionEvent, error)

	// LastEvent returns the highest-sequence event for an execution, or
	// nil if the execution has no events yet.
	LastEvent(ctx context.Context, executionID string) (*domain.ExecutionEvent, error)

	// EventsByNode returns all events recorded for a specific node within
	// an execution, in sequence order — used to detect prior completion
	// (idempotency short-circuit).
	EventsByNode(ctx context.Context, executionID, nodeID string) ([]*domain.ExecutionEvent, error)

	// EventsByStatus returns events for an execution matching status
	// (e.g. "FAILED", "COMPENSATED") across all nodes.
	EventsByStatus(ctx context.Context, executionID, status string) ([]*domain.ExecutionEvent, error)

	// ExistsByIdempotencyKey reports whether an event with this key has
	// already been durably appended. The Bun-backed Append checks it
	// before inserting, and txn.Manager.CheckIdempotency exposes it to
	// callers.
	ExistsByIdempotencyKey(ctx context.Context, idempotencyKey string) (bool, error)

	// FindByTimeRange supports the Control API's audit/replay tooling.
	FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.ExecutionEvent, error)

	// MarkCompleted sets an event's terminal success fields. A call on an
	// event that is already terminal (COMPLETED or FAILED) returns
	// *wferrors.EventAlreadyTerminal.
	MarkCompleted(ctx context.Context, eventID uint64, durationMs int64, outputSnapshot domain.Vars) error

	// MarkFailed sets an event's terminal failure fields. See MarkCompleted.
	MarkFailed(ctx context.Context, eventID uint64, errMessage, errSnapshot string) error

	// MarkCompensated records that a NODE_COMPLETED event was later
	// compensated, storing the compensating event's id for traceability.
	MarkCompensated(ctx context.Context, eventID uint64, compensatedByEventID uint64) error
}

// AppendNext stamps evt's SequenceNumber and IdempotencyKey from store's
// current last event for executionID, then appends it. Centralizing this
// here keeps every caller's idempotency key derived the same way
// (domain.CanonicalIdempotencyKey) without re-deriving sequence allocation
// logic in every package that emits events.
func AppendNext(ctx context.Context, store EventStore, executionID string, evt *domain.ExecutionEvent) (*domain.ExecutionEvent, error) {
	last, err := store.LastEvent(ctx, executionID)
	if err != nil {
		return nil, err
	}
	seq := int64(1)
	if last != nil {
		seq = last.SequenceNumber + 1
	}
	evt.ExecutionID = executionID
	evt.SequenceNumber = seq
	evt.IdempotencyKey = domain.CanonicalIdempotencyKey(executionID, seq, evt.EventType)
	return store.Append(ctx, evt)
}
