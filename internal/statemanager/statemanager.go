// Package statemanager owns the WorkflowInstance and NodeExecution rows:
// creation, lease-based mutual exclusion across replicas, and their state
// transitions. It is the only package permitted to write to
// workflow_instances and node_executions directly; the workflow executor
// (internal/engine) calls through this interface rather than touching
// storage itself.
package statemanager

import (
	"context"
	"time"

	"github.com/wfcore/engine/internal/domain"
)

// StateManager mutates instance and node-execution state under lease
// protection. The instance transitions (StartExecution, UpdateCurrentNode,
// UpdateVariables, CompleteWorkflow, FailWorkflow, PauseWorkflow,
// CancelWorkflow) also append an AuditLog row; CreateInstance, the lease
// operations and the node-execution records do not.
type StateManager interface {
	// CreateInstance inserts a new PENDING WorkflowInstance row.
	CreateInstance(ctx context.Context, workflowID string, version int, tenant domain.Tenant, vars domain.Vars) (*domain.WorkflowInstance, error)

	// AcquireLease claims mutual-exclusion ownership of executionID for
	// owner, using SELECT... FOR UPDATE so only one replica can advance
	// a given instance at a time. Returns false if another owner holds
	// an unexpired lease.
	AcquireLease(ctx context.Context, executionID, owner string, ttl time.Duration) (bool, error)

	// ReleaseLease clears the lease if owner currently holds it.
	ReleaseLease(ctx context.Context, executionID, owner string) error

	// ReapExpiredLeases clears leases older than ttl system-wide; driven
	// by the engine's cron-scheduled lease-reaper.
	ReapExpiredLeases(ctx context.Context, ttl time.Duration) (int, error)

	// StartExecution transitions PENDING -> RUNNING and stamps StartedAt.
	StartExecution(ctx context.Context, executionID string) error

	// UpdateCurrentNode records which node the instance is now parked at.
	UpdateCurrentNode(ctx context.Context, executionID, nodeID string) error

	// UpdateVariables merges updates into the instance's variable map.
	UpdateVariables(ctx context.Context, executionID string, updates domain.Vars) error

	// RecordNodeStart inserts a new NodeExecution row in RUNNING state.
	RecordNodeStart(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, attempt int, input domain.Vars) (*domain.NodeExecution, error)

	// RecordNodeComplete marks a NodeExecution row COMPLETED.
	RecordNodeComplete(ctx context.Context, nodeExecutionID string, output domain.Vars, durationMs int64) error

	// RecordNodeFailure marks a NodeExecution row FAILED.
	RecordNodeFailure(ctx context.Context, nodeExecutionID string, errMsg string, durationMs int64) error

	// HasNodeBeenExecuted reports whether nodeID already has a COMPLETED
	// NodeExecution row for executionID — the idempotency short-circuit
	// the node executor consults before dispatching.
	HasNodeBeenExecuted(ctx context.Context, executionID, nodeID string) (bool, error)

	// CompleteWorkflow transitions the instance to COMPLETED.
	CompleteWorkflow(ctx context.Context, executionID string) error

	// FailWorkflow transitions the instance to FAILED.
	FailWorkflow(ctx context.Context, executionID, failureNodeID, message string) error

	// PauseWorkflow transitions the instance to PAUSED (USER_TASK wait).
	PauseWorkflow(ctx context.Context, executionID string) error

	// CancelWorkflow transitions the instance to CANCELLED.
	CancelWorkflow(ctx context.Context, executionID, actor string) error

	// GetInstance loads the current instance row.
	GetInstance(ctx context.Context, executionID string) (*domain.WorkflowInstance, error)

	// GetNodeExecutions loads every NodeExecution row for an instance.
	GetNodeExecutions(ctx context.Context, executionID string) ([]*domain.NodeExecution, error)
}
