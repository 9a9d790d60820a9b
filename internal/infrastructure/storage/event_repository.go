package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/infrastructure/storage/models"
	"github.com/wfcore/engine/internal/wferrors"
)

// Ensure EventRepository implements the interface
var _ eventstore.EventStore = (*EventRepository)(nil)

// EventRepository implements eventstore.EventStore using Bun ORM. Sequence
// numbers are allocated atomically per execution by reading
// MAX(sequence)+1 inside the same transaction as the insert, guarded by
// the idempotency_key unique constraint so concurrent appends of the same
// logical event collapse into one row.
type EventRepository struct {
	db bun.IDB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db bun.IDB) *EventRepository {
	return &EventRepository{db: db}
}

// Append assigns the next sequence number and inserts the event. Returns
// the existing row without error if the idempotency key was already used.
func (r *EventRepository) Append(ctx context.Context, event *domain.ExecutionEvent) (*domain.ExecutionEvent, error) {
	exists, err := r.ExistsByIdempotencyKey(ctx, event.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if exists {
		return r.findByIdempotencyKey(ctx, event.IdempotencyKey)
	}

	model := models.FromDomainEvent(event)

	err = r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		var nextSeq int64
		err := tx.NewSelect().
			Model((*models.ExecutionEventModel)(nil)).
			ColumnExpr("COALESCE(MAX(sequence), 0) + 1").
			Where("execution_id = ?", model.ExecutionID).
			Scan(ctx, &nextSeq)
		if err != nil {
			return fmt.Errorf("allocate sequence: %w", err)
		}
		model.Sequence = nextSeq

		_, err = tx.NewInsert().Model(model).
			On("CONFLICT (idempotency_key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if model.Sequence == 0 {
		return r.findByIdempotencyKey(ctx, event.IdempotencyKey)
	}
	return model.ToDomain(), nil
}

func (r *EventRepository) findByIdempotencyKey(ctx context.Context, key string) (*domain.ExecutionEvent, error) {
	var model models.ExecutionEventModel
	err := r.db.NewSelect().Model(&model).Where("idempotency_key = ?", key).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find event by idempotency key: %w", err)
	}
	return model.ToDomain(), nil
}

// ExistsByIdempotencyKey reports whether key has already been appended.
func (r *EventRepository) ExistsByIdempotencyKey(ctx context.Context, idempotencyKey string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.ExecutionEventModel)(nil)).
		Where("idempotency_key = ?", idempotencyKey).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return exists, nil
}

// Timeline retrieves all events for an execution ordered by sequence
func (r *EventRepository) Timeline(ctx context.Context, executionID string) ([]*domain.ExecutionEvent, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var rows []*models.ExecutionEventModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", execID).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find events by execution ID: %w", err)
	}
	return toDomainEvents(rows), nil
}

// TimelineRange retrieves events since a specific sequence number
func (r *EventRepository) TimelineRange(ctx context.Context, executionID string, sinceSequence int64) ([]*domain.ExecutionEvent, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var rows []*models.ExecutionEventModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", execID).
		Where("sequence > ?", sinceSequence).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find events since sequence: %w", err)
	}
	return toDomainEvents(rows), nil
}

// LastEvent retrieves the latest event for an execution
func (r *EventRepository) LastEvent(ctx context.Context, executionID string) (*domain.ExecutionEvent, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var row models.ExecutionEventModel
	err = r.db.NewSelect().
		Model(&row).
		Where("execution_id = ?", execID).
		Order("sequence DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest event: %w", err)
	}
	return row.ToDomain(), nil
}

// EventsByNode retrieves all events recorded for a node within an execution
func (r *EventRepository) EventsByNode(ctx context.Context, executionID, nodeID string) ([]*domain.ExecutionEvent, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var rows []*models.ExecutionEventModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", execID).
		Where("node_id = ?", nodeID).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find events by node: %w", err)
	}
	return toDomainEvents(rows), nil
}

// EventsByStatus retrieves events for an execution matching a status
func (r *EventRepository) EventsByStatus(ctx context.Context, executionID, status string) ([]*domain.ExecutionEvent, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var rows []*models.ExecutionEventModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", execID).
		Where("status = ?", status).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find events by status: %w", err)
	}
	return toDomainEvents(rows), nil
}

// FindByTimeRange retrieves events within a time range, newest first
func (r *EventRepository) FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*domain.ExecutionEvent, error) {
	var rows []*models.ExecutionEventModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("created_at >= ?", from).
		Where("created_at <= ?", to).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find events by time range: %w", err)
	}
	return toDomainEvents(rows), nil
}

// MarkCompleted sets an event's terminal success fields, rejecting a
// second write on an already-terminal row.
func (r *EventRepository) MarkCompleted(ctx context.Context, eventID uint64, durationMs int64, outputSnapshot domain.Vars) error {
	terminal, err := r.isTerminal(ctx, eventID)
	if err != nil {
		return err
	}
	if terminal {
		return &wferrors.EventAlreadyTerminal{EventID: eventID}
	}
	_, err = r.db.NewUpdate().
		Model((*models.ExecutionEventModel)(nil)).
		Set("status = ?", "COMPLETED").
		Set("duration_ms = ?", durationMs).
		Set("output_snapshot = ?", models.JSONBMap(outputSnapshot)).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark event completed: %w", err)
	}
	return nil
}

// MarkFailed sets an event's terminal failure fields. See MarkCompleted.
func (r *EventRepository) MarkFailed(ctx context.Context, eventID uint64, errMessage, errSnapshot string) error {
	terminal, err := r.isTerminal(ctx, eventID)
	if err != nil {
		return err
	}
	if terminal {
		return &wferrors.EventAlreadyTerminal{EventID: eventID}
	}
	_, err = r.db.NewUpdate().
		Model((*models.ExecutionEventModel)(nil)).
		Set("status = ?", "FAILED").
		Set("message = ?", errMessage).
		Set("error_snapshot = ?", errSnapshot).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// MarkCompensated records the compensating event's id on a NODE_COMPLETED
// row. Not gated by isTerminal: a completed node can
// be compensated any number of times is not sensible but the one-time
// guard belongs to the compensation registry, not the event store.
func (r *EventRepository) MarkCompensated(ctx context.Context, eventID uint64, compensatedByEventID uint64) error {
	_, err := r.db.NewUpdate().
		Model((*models.ExecutionEventModel)(nil)).
		Set("compensated_by = ?", fmt.Sprintf("%d", compensatedByEventID)).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark event compensated: %w", err)
	}
	return nil
}

func (r *EventRepository) isTerminal(ctx context.Context, eventID uint64) (bool, error) {
	var status string
	err := r.db.NewSelect().
		Model((*models.ExecutionEventModel)(nil)).
		Column("status").
		Where("id = ?", eventID).
		Scan(ctx, &status)
	if err != nil {
		return false, fmt.Errorf("load event status: %w", err)
	}
	return status == "COMPLETED" || status == "FAILED", nil
}

func toDomainEvents(rows []*models.ExecutionEventModel) []*domain.ExecutionEvent {
	out := make([]*domain.ExecutionEvent, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out
}
