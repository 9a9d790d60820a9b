package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/blake2b"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/infrastructure/storage/models"
	"github.com/wfcore/engine/internal/statemanager"
	"github.com/wfcore/engine/internal/wferrors"
)

// Ensure InstanceRepository implements the interface
var _ statemanager.StateManager = (*InstanceRepository)(nil)

// InstanceRepository implements statemanager.StateManager using Bun ORM.
// Lease acquisition uses SELECT... FOR UPDATE inside a transaction so two
// replicas racing to claim the same instance serialize on the row lock
// rather than both proceeding. Instance-state mutations additionally
// compare-and-swap on row_version, so a writer working from a stale read
// loses the race instead of silently clobbering a concurrent write.
type InstanceRepository struct {
	db *bun.DB
}

// NewInstanceRepository creates a new InstanceRepository
func NewInstanceRepository(db *bun.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

func (r *InstanceRepository) CreateInstance(ctx context.Context, workflowID string, version int, tenant domain.Tenant, vars domain.Vars) (*domain.WorkflowInstance, error) {
	model := &models.WorkflowInstanceModel{
		WorkflowID: workflowID,
		Version: version,
		TenantID: string(tenant),
		State: string(domain.StatePending),
		Variables: models.JSONBMap(vars),
	}
	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return model.ToDomain(), nil
}

func (r *InstanceRepository) AcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (bool, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return false, fmt.Errorf("parse execution id: %w", err)
	}

	acquired := false
	err = r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		var row models.WorkflowInstanceModel
		err := tx.NewSelect().
			Model(&row).
			Where("execution_id = ?", execID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("lock instance row: %w", err)
		}

		now := time.Now()
		expired := row.LeaseAcquiredAt == nil || now.Sub(*row.LeaseAcquiredAt) > ttl
		free := row.LeaseOwner == "" || row.LeaseOwner == owner || expired

		if !free {
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*models.WorkflowInstanceModel)(nil)).
			Set("lease_owner = ?", owner).
			Set("lease_acquired_at = ?", now).
			Where("execution_id = ?", execID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("write lease: %w", err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (r *InstanceRepository) ReleaseLease(ctx context.Context, executionID, owner string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	_, err = r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("lease_owner = NULL").
		Set("lease_acquired_at = NULL").
		Where("execution_id = ?", execID).
		Where("lease_owner = ?", owner).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (r *InstanceRepository) ReapExpiredLeases(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("lease_owner = NULL").
		Set("lease_acquired_at = NULL").
		Where("lease_acquired_at IS NOT NULL").
		Where("lease_acquired_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("reap expired leases: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *InstanceRepository) StartExecution(ctx context.Context, executionID string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	row, err := r.loadRow(ctx, execID)
	if err != nil {
		return err
	}
	before := snapshotOf(row)

	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("state = ?", string(domain.StateRunning)).
		Set("started_at = ?", now).
		Set("row_version = row_version + 1").
		Where("execution_id = ?", execID).
		Where("row_version = ?", row.RowVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &wferrors.ConcurrentModification{ExecutionID: executionID}
	}

	after := before
	after.State = string(domain.StateRunning)
	after.RowVersion++
	return r.audit(ctx, executionID, "START_EXECUTION", before, after)
}

func (r *InstanceRepository) UpdateCurrentNode(ctx context.Context, executionID, nodeID string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	row, err := r.loadRow(ctx, execID)
	if err != nil {
		return err
	}
	before := snapshotOf(row)

	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("current_node_id = ?", nodeID).
		Set("row_version = row_version + 1").
		Where("execution_id = ?", execID).
		Where("row_version = ?", row.RowVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update current node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &wferrors.ConcurrentModification{ExecutionID: executionID}
	}

	after := before
	after.CurrentNodeID = nodeID
	after.RowVersion++
	return r.audit(ctx, executionID, "UPDATE_CURRENT_NODE", before, after)
}

func (r *InstanceRepository) UpdateVariables(ctx context.Context, executionID string, updates domain.Vars) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}

	var before, after instanceSnapshot
	err = r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		var row models.WorkflowInstanceModel
		err := tx.NewSelect().Model(&row).Where("execution_id = ?", execID).For("UPDATE").Scan(ctx)
		if err != nil {
			return fmt.Errorf("lock instance row: %w", err)
		}
		before = snapshotOf(&row)

		merged := map[string]any(row.Variables)
		if merged == nil {
			merged = make(map[string]any)
		}
		for k, v := range updates {
			merged[k] = v
		}
		res, err := tx.NewUpdate().
			Model((*models.WorkflowInstanceModel)(nil)).
			Set("variables = ?", models.JSONBMap(merged)).
			Set("row_version = row_version + 1").
			Where("execution_id = ?", execID).
			Where("row_version = ?", row.RowVersion).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update variables: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return &wferrors.ConcurrentModification{ExecutionID: executionID}
		}

		after = before
		after.Variables = models.JSONBMap(merged)
		after.RowVersion++
		return nil
	})
	if err != nil {
		return err
	}
	return r.audit(ctx, executionID, "UPDATE_VARIABLES", before, after)
}

func (r *InstanceRepository) RecordNodeStart(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, attempt int, input domain.Vars) (*domain.NodeExecution, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	model := &models.NodeExecutionModel{
		ExecutionID: execID,
		NodeID: nodeID,
		NodeType: string(nodeType),
		State: string(domain.NodeExecRunning),
		AttemptNumber: attempt,
		InputVariables: models.JSONBMap(input),
	}
	_, err = r.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("record node start: %w", err)
	}
	return model.ToDomain(), nil
}

func (r *InstanceRepository) RecordNodeComplete(ctx context.Context, nodeExecutionID string, output domain.Vars, durationMs int64) error {
	id, err := uuid.Parse(nodeExecutionID)
	if err != nil {
		return fmt.Errorf("parse node execution id: %w", err)
	}
	now := time.Now()
	_, err = r.db.NewUpdate().
		Model((*models.NodeExecutionModel)(nil)).
		Set("state = ?", string(domain.NodeExecCompleted)).
		Set("completed_at = ?", now).
		Set("duration_ms = ?", durationMs).
		Set("output_variables = ?", models.JSONBMap(output)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record node complete: %w", err)
	}
	return nil
}

func (r *InstanceRepository) RecordNodeFailure(ctx context.Context, nodeExecutionID string, errMsg string, durationMs int64) error {
	id, err := uuid.Parse(nodeExecutionID)
	if err != nil {
		return fmt.Errorf("parse node execution id: %w", err)
	}
	now := time.Now()
	_, err = r.db.NewUpdate().
		Model((*models.NodeExecutionModel)(nil)).
		Set("state = ?", string(domain.NodeExecFailed)).
		Set("completed_at = ?", now).
		Set("duration_ms = ?", durationMs).
		Set("error_message = ?", errMsg).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record node failure: %w", err)
	}
	return nil
}

func (r *InstanceRepository) HasNodeBeenExecuted(ctx context.Context, executionID, nodeID string) (bool, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return false, fmt.Errorf("parse execution id: %w", err)
	}
	exists, err := r.db.NewSelect().
		Model((*models.NodeExecutionModel)(nil)).
		Where("execution_id = ?", execID).
		Where("node_id = ?", nodeID).
		Where("state = ?", string(domain.NodeExecCompleted)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check node executed: %w", err)
	}
	return exists, nil
}

func (r *InstanceRepository) CompleteWorkflow(ctx context.Context, executionID string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	row, err := r.loadRow(ctx, execID)
	if err != nil {
		return err
	}
	before := snapshotOf(row)

	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("state = ?", string(domain.StateCompleted)).
		Set("completed_at = ?", now).
		Set("row_version = row_version + 1").
		Where("execution_id = ?", execID).
		Where("row_version = ?", row.RowVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete workflow: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &wferrors.ConcurrentModification{ExecutionID: executionID}
	}

	after := before
	after.State = string(domain.StateCompleted)
	after.RowVersion++
	return r.audit(ctx, executionID, "COMPLETE_WORKFLOW", before, after)
}

func (r *InstanceRepository) FailWorkflow(ctx context.Context, executionID, failureNodeID, message string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	row, err := r.loadRow(ctx, execID)
	if err != nil {
		return err
	}
	before := snapshotOf(row)

	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("state = ?", string(domain.StateFailed)).
		Set("completed_at = ?", now).
		Set("failure_node_id = ?", failureNodeID).
		Set("failure_message = ?", message).
		Set("row_version = row_version + 1").
		Where("execution_id = ?", execID).
		Where("row_version = ?", row.RowVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fail workflow: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &wferrors.ConcurrentModification{ExecutionID: executionID}
	}

	after := before
	after.State = string(domain.StateFailed)
	after.RowVersion++
	return r.audit(ctx, executionID, "FAIL_WORKFLOW", before, after)
}

func (r *InstanceRepository) PauseWorkflow(ctx context.Context, executionID string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	row, err := r.loadRow(ctx, execID)
	if err != nil {
		return err
	}
	before := snapshotOf(row)

	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("state = ?", string(domain.StatePaused)).
		Set("row_version = row_version + 1").
		Where("execution_id = ?", execID).
		Where("row_version = ?", row.RowVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("pause workflow: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &wferrors.ConcurrentModification{ExecutionID: executionID}
	}

	after := before
	after.State = string(domain.StatePaused)
	after.RowVersion++
	return r.audit(ctx, executionID, "PAUSE_WORKFLOW", before, after)
}

func (r *InstanceRepository) CancelWorkflow(ctx context.Context, executionID, actor string) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}
	row, err := r.loadRow(ctx, execID)
	if err != nil {
		return err
	}
	before := snapshotOf(row)

	now := time.Now()
	res, err := r.db.NewUpdate().
		Model((*models.WorkflowInstanceModel)(nil)).
		Set("state = ?", string(domain.StateCancelled)).
		Set("completed_at = ?", now).
		Set("row_version = row_version + 1").
		Where("execution_id = ?", execID).
		Where("row_version = ?", row.RowVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cancel workflow: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &wferrors.ConcurrentModification{ExecutionID: executionID}
	}

	after := before
	after.State = string(domain.StateCancelled)
	after.RowVersion++
	return r.auditWithActor(ctx, executionID, actor, "CANCEL_WORKFLOW", before, after)
}

func (r *InstanceRepository) GetInstance(ctx context.Context, executionID string) (*domain.WorkflowInstance, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var row models.WorkflowInstanceModel
	err = r.db.NewSelect().Model(&row).Where("execution_id = ?", execID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &wferrors.InstanceNotFound{ExecutionID: executionID}
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return row.ToDomain(), nil
}

func (r *InstanceRepository) GetNodeExecutions(ctx context.Context, executionID string) ([]*domain.NodeExecution, error) {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return nil, fmt.Errorf("parse execution id: %w", err)
	}
	var rows []*models.NodeExecutionModel
	err = r.db.NewSelect().
		Model(&rows).
		Where("execution_id = ?", execID).
		Order("executed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get node executions: %w", err)
	}
	out := make([]*domain.NodeExecution, len(rows))
	for i, row := range rows {
		out[i] = row.ToDomain()
	}
	return out, nil
}

// loadRow fetches the current instance row outside of any row lock, for
// callers that need a before-snapshot and the row_version to
// compare-and-swap against; UpdateVariables/AcquireLease take their own
// locked snapshot instead since they already hold a SELECT... FOR UPDATE.
func (r *InstanceRepository) loadRow(ctx context.Context, execID uuid.UUID) (*models.WorkflowInstanceModel, error) {
	var row models.WorkflowInstanceModel
	if err := r.db.NewSelect().Model(&row).Where("execution_id = ?", execID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load instance row: %w", err)
	}
	return &row, nil
}

// instanceSnapshot is the audit-log before/after representation of an
// instance's mutable state.
type instanceSnapshot struct {
	State string `json:"state"`
	CurrentNodeID string `json:"currentNodeId,omitempty"`
	Variables models.JSONBMap `json:"variables,omitempty"`
	RowVersion int64 `json:"rowVersion"`
}

func snapshotOf(row *models.WorkflowInstanceModel) instanceSnapshot {
	return instanceSnapshot{
		State: row.State,
		CurrentNodeID: row.CurrentNodeID,
		Variables: row.Variables,
		RowVersion: row.RowVersion,
	}
}

func (r *InstanceRepository) audit(ctx context.Context, executionID, action string, before, after instanceSnapshot) error {
	return r.auditWithActor(ctx, executionID, "", action, before, after)
}

// auditWithActor writes one execution_audit_log row. before/after are
// marshalled to JSON for BeforeSnapshot/AfterSnapshot, CorrelationID ties
// every row this call produces together (a single mutation is one audit
// row today, but replay/compensation paths that write more than one will
// share it), and ContentHash is a blake2b-256 digest of both snapshots so
// an operator can detect a tampered or corrupted audit row without
// re-deriving it from the instance history.
func (r *InstanceRepository) auditWithActor(ctx context.Context, executionID, actor, action string, before, after instanceSnapshot) error {
	execID, err := uuid.Parse(executionID)
	if err != nil {
		return fmt.Errorf("parse execution id: %w", err)
	}

	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	digest := blake2b.Sum256(append(append([]byte{}, beforeJSON...), afterJSON...))

	model := &models.AuditLogModel{
		ExecutionID: execID,
		Actor: actor,
		Action: action,
		BeforeSnapshot: string(beforeJSON),
		AfterSnapshot: string(afterJSON),
		CorrelationID: uuid.NewString(),
		ContentHash: hex.EncodeToString(digest[:]),
	}
	_, err = r.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
