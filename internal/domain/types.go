// Package domain holds the plain data types shared across the workflow
// execution core. Nothing in this package depends on a storage driver or a
// transport framework; conversions to and from persisted rows live in
// internal/infrastructure/storage.
package domain

import (
	"strconv"
	"time"
)

// NodeType enumerates the node kinds a WorkflowGraph can contain.
type NodeType string

const (
	NodeStartEvent NodeType = "START_EVENT"
	NodeEndEvent NodeType = "END_EVENT"
	NodeIntermediateEvent NodeType = "INTERMEDIATE_EVENT"
	NodeTask NodeType = "TASK"
	NodeScriptTask NodeType = "SCRIPT_TASK"
	NodeServiceTask NodeType = "SERVICE_TASK"
	NodeUserTask NodeType = "USER_TASK"
	NodeBusinessRuleTask NodeType = "BUSINESS_RULE_TASK"
	NodeManualTask NodeType = "MANUAL_TASK"
	NodeSubprocess NodeType = "SUBPROCESS"
	NodeCallActivity NodeType = "CALL_ACTIVITY"
	NodeExclusiveGateway NodeType = "EXCLUSIVE_GATEWAY"
	NodeParallelGateway NodeType = "PARALLEL_GATEWAY"
	NodeInclusiveGateway NodeType = "INCLUSIVE_GATEWAY"
	NodeEventBasedGateway NodeType = "EVENT_BASED_GATEWAY"
)

// IsGateway reports whether t is one of the four gateway node types.
func (t NodeType) IsGateway() bool {
	switch t {
	case NodeExclusiveGateway, NodeParallelGateway, NodeInclusiveGateway, NodeEventBasedGateway:
		return true
	default:
		return false
	}
}

// GatewayType is the join/split semantics carried by a gateway node's config.
type GatewayType string

const (
	GatewayXOR GatewayType = "XOR"
	GatewayAND GatewayType = "AND"
	GatewayOR GatewayType = "OR"
)

// PathType classifies an edge's role in branching.
type PathType string

const (
	PathSuccess PathType = "success"
	PathError PathType = "error"
	PathConditional PathType = "conditional"
	PathParallel PathType = "parallel"
	PathDefault PathType = "default"
)

// RetryBackoff is the backoff shape a retry policy uses between attempts.
type RetryBackoff string

const (
	BackoffConstant RetryBackoff = "constant"
	BackoffLinear RetryBackoff = "linear"
	BackoffExponential RetryBackoff = "exponential"
)

// RetryPolicy governs SERVICE_TASK retry attempts.
type RetryPolicy struct {
	MaxAttempts int
	DelayMs int
	Backoff RetryBackoff
}

// InstanceState is the WorkflowInstance state machine.
type InstanceState string

const (
	StatePending InstanceState = "PENDING"
	StateRunning InstanceState = "RUNNING"
	StatePaused InstanceState = "PAUSED"
	StateCompleted InstanceState = "COMPLETED"
	StateFailed InstanceState = "FAILED"
	StateCancelled InstanceState = "CANCELLED"
)

// IsTerminal reports whether s is one of {COMPLETED, FAILED, CANCELLED}.
func (s InstanceState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// NodeExecutionState is the per-attempt state on a NodeExecution row.
type NodeExecutionState string

const (
	NodeExecPending NodeExecutionState = "PENDING"
	NodeExecRunning NodeExecutionState = "RUNNING"
	NodeExecCompleted NodeExecutionState = "COMPLETED"
	NodeExecFailed NodeExecutionState = "FAILED"
	NodeExecSkipped NodeExecutionState = "SKIPPED"
)

// EventType enumerates the ExecutionEvent.eventType values.
type EventType string

const (
	EventWorkflowStarted EventType = "WORKFLOW_STARTED"
	EventWorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	EventWorkflowFailed EventType = "WORKFLOW_FAILED"
	EventWorkflowRolledBack EventType = "WORKFLOW_ROLLED_BACK"
	EventNodeEntered EventType = "NODE_ENTERED"
	EventNodeStarted EventType = "NODE_STARTED"
	EventNodeCompleted EventType = "NODE_COMPLETED"
	EventNodeFailed EventType = "NODE_FAILED"
	EventNodeSkipped EventType = "NODE_SKIPPED"
	EventVariableSet EventType = "VARIABLE_SET"
	EventVariableUpdated EventType = "VARIABLE_UPDATED"
	EventGatewayBranchTaken EventType = "GATEWAY_BRANCH_TAKEN"
	EventTransactionStarted EventType = "TRANSACTION_STARTED"
	EventTransactionCommitted EventType = "TRANSACTION_COMMITTED"
	EventTransactionRolledBack EventType = "TRANSACTION_ROLLED_BACK"
	EventCompensationInitiated EventType = "COMPENSATION_INITIATED"
	EventCompensationCompleted EventType = "COMPENSATION_COMPLETED"
	EventCompensationFailed EventType = "COMPENSATION_FAILED"
	EventRollbackInitiated EventType = "ROLLBACK_INITIATED"
	EventRollbackCompleted EventType = "ROLLBACK_COMPLETED"
	EventRollbackFailed EventType = "ROLLBACK_FAILED"
	EventCheckpointCreated EventType = "CHECKPOINT_CREATED"
)

// RollbackReasonCode is the structured rollback reason code.
type RollbackReasonCode string

const (
	ReasonUserRequested RollbackReasonCode = "USER_REQUESTED"
	ReasonExecutionFailed RollbackReasonCode = "EXECUTION_FAILED"
	ReasonValidationFailed RollbackReasonCode = "VALIDATION_FAILED"
	ReasonTimeoutExceeded RollbackReasonCode = "TIMEOUT_EXCEEDED"
)

// RollbackReason pairs a code with free-form details, threaded through the
// rollback coordinator and recorded on ROLLBACK_* events.
type RollbackReason struct {
	Code RollbackReasonCode
	Details string
}

// Tenant identifies the owner of a definition/instance for row-level
// isolation. The zero value is the default tenant.
type Tenant string

// DefaultTenant is used when an inbound request carries no tenant header.
const DefaultTenant Tenant = "default"

// Vars is the engine's variable-map representation: JSON-serializable,
// string-keyed, arbitrarily-nested.
type Vars = map[string]any

// ExecutionEvent is the in-memory shape of an append-only event row.
// Storage converts to/from ExecutionEventModel.
type ExecutionEvent struct {
	ID uint64
	ExecutionID string
	SequenceNumber int64
	EventType EventType
	NodeID string
	NodeType NodeType
	EdgeTaken string
	Status string
	Timestamp time.Time
	DurationMs *int64
	InputSnapshot Vars
	OutputSnapshot Vars
	VariablesSnapshot Vars
	ErrorSnapshot string
	DecisionResult string
	TransactionID string
	IdempotencyKey string
	CompensatedBy string
	Message string
}

// CanonicalIdempotencyKey computes "{executionId}:{sequenceNumber}:{eventType}".
func CanonicalIdempotencyKey(executionID string, sequenceNumber int64, eventType EventType) string {
	return executionID + ":" + strconv.FormatInt(sequenceNumber, 10) + ":" + string(eventType)
}

// NodeExecution is one attempt record of a node within an instance.
type NodeExecution struct {
	ID string
	ExecutionID string
	NodeID string
	NodeType NodeType
	State NodeExecutionState
	AttemptNumber int
	ExecutedAt time.Time
	CompletedAt *time.Time
	DurationMs *int64
	InputVariables Vars
	OutputVariables Vars
	ErrorMessage string
	ExecutedBy string
}

// WorkflowInstance is the in-memory shape of a workflow_instances row.
type WorkflowInstance struct {
	ExecutionID string
	WorkflowID string
	Version int
	TenantID Tenant
	State InstanceState
	CurrentNodeID string
	Variables Vars
	CreatedAt time.Time
	StartedAt *time.Time
	CompletedAt *time.Time
	FailureMessage string
	FailureNodeID string
	RetryCount int
	LeaseOwner string
	LeaseAcquiredAt *time.Time
	RowVersion int64
}

// AuditLog is an append-only compliance entry.
type AuditLog struct {
	ID string
	ExecutionID string
	TenantID Tenant
	Actor string
	Action string
	Timestamp time.Time
	BeforeSnapshot string
	AfterSnapshot string
	CorrelationID string
	ContentHash string
}
