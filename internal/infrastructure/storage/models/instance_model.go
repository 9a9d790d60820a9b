package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/wfcore/engine/internal/domain"
)

// WorkflowInstanceModel is the persisted row for a running/terminal
// workflow instance (domain.WorkflowInstance): BaseModel table tag,
// BeforeInsert defaults, ToDomain converter.
type WorkflowInstanceModel struct {
	bun.BaseModel `bun:"table:workflow_instances,alias:wi"`

	ExecutionID uuid.UUID `bun:"execution_id,pk,type:uuid,default:uuid_generate_v4" json:"execution_id"`
	WorkflowID string `bun:"workflow_id,notnull" json:"workflow_id" validate:"required"`
	Version int `bun:"version,notnull" json:"version"`
	TenantID string `bun:"tenant_id,notnull,default:'default'" json:"tenant_id"`
	State string `bun:"state,notnull,default:'PENDING'" json:"state"`
	CurrentNodeID string `bun:"current_node_id" json:"current_node_id,omitempty"`
	Variables JSONBMap `bun:"variables,type:jsonb,default:'{}'" json:"variables,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	StartedAt *time.Time `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	FailureMessage string `bun:"failure_message" json:"failure_message,omitempty"`
	FailureNodeID string `bun:"failure_node_id" json:"failure_node_id,omitempty"`
	RetryCount int `bun:"retry_count,notnull,default:0" json:"retry_count"`
	LeaseOwner string `bun:"lease_owner" json:"lease_owner,omitempty"`
	LeaseAcquiredAt *time.Time `bun:"lease_acquired_at" json:"lease_acquired_at,omitempty"`
	RowVersion int64 `bun:"row_version,notnull,default:0" json:"row_version"`
}

func (WorkflowInstanceModel) TableName() string { return "workflow_instances" }

// BeforeInsert sets identity/timestamp defaults.
func (m *WorkflowInstanceModel) BeforeInsert(ctx any) error {
	if m.ExecutionID == uuid.Nil {
		m.ExecutionID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Variables == nil {
		m.Variables = make(JSONBMap)
	}
	if m.TenantID == "" {
		m.TenantID = string(domain.DefaultTenant)
	}
	if m.State == "" {
		m.State = string(domain.StatePending)
	}
	return nil
}

// ToDomain converts the persisted row into the plain domain.WorkflowInstance.
func (m *WorkflowInstanceModel) ToDomain() *domain.WorkflowInstance {
	if m == nil {
		return nil
	}
	return &domain.WorkflowInstance{
		ExecutionID: m.ExecutionID.String(),
		WorkflowID: m.WorkflowID,
		Version: m.Version,
		TenantID: domain.Tenant(m.TenantID),
		State: domain.InstanceState(m.State),
		CurrentNodeID: m.CurrentNodeID,
		Variables: map[string]any(m.Variables),
		CreatedAt: m.CreatedAt,
		StartedAt: m.StartedAt,
		CompletedAt: m.CompletedAt,
		FailureMessage: m.FailureMessage,
		FailureNodeID: m.FailureNodeID,
		RetryCount: m.RetryCount,
		LeaseOwner: m.LeaseOwner,
		LeaseAcquiredAt: m.LeaseAcquiredAt,
		RowVersion: m.RowVersion,
	}
}

// FromDomainInstance populates a model from a domain.WorkflowInstance for writes.
func FromDomainInstance(d *domain.WorkflowInstance) *WorkflowInstanceModel {
	id, _ := uuid.Parse(d.ExecutionID)
	return &WorkflowInstanceModel{
		ExecutionID: id,
		WorkflowID: d.WorkflowID,
		Version: d.Version,
		TenantID: string(d.TenantID),
		State: string(d.State),
		CurrentNodeID: d.CurrentNodeID,
		Variables: JSONBMap(d.Variables),
		CreatedAt: d.CreatedAt,
		StartedAt: d.StartedAt,
		CompletedAt: d.CompletedAt,
		FailureMessage: d.FailureMessage,
		FailureNodeID: d.FailureNodeID,
		RetryCount: d.RetryCount,
		LeaseOwner: d.LeaseOwner,
		LeaseAcquiredAt: d.LeaseAcquiredAt,
		RowVersion: d.RowVersion,
	}
}

// NodeExecutionModel is one attempt row of a node within an instance
// (NodeExecution).
type NodeExecutionModel struct {
	bun.BaseModel `bun:"table:node_executions,alias:ne"`

	ID uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4" json:"id"`
	ExecutionID uuid.UUID `bun:"execution_id,notnull,type:uuid" json:"execution_id"`
	NodeID string `bun:"node_id,notnull" json:"node_id"`
	NodeType string `bun:"node_type,notnull" json:"node_type"`
	State string `bun:"state,notnull,default:'PENDING'" json:"state"`
	AttemptNumber int `bun:"attempt_number,notnull,default:1" json:"attempt_number"`
	ExecutedAt time.Time `bun:"executed_at,notnull,default:current_timestamp" json:"executed_at"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
	DurationMs *int64 `bun:"duration_ms" json:"duration_ms,omitempty"`
	InputVariables JSONBMap `bun:"input_variables,type:jsonb,default:'{}'" json:"input_variables,omitempty"`
	OutputVariables JSONBMap `bun:"output_variables,type:jsonb,default:'{}'" json:"output_variables,omitempty"`
	ErrorMessage string `bun:"error_message" json:"error_message,omitempty"`
	ExecutedBy string `bun:"executed_by" json:"executed_by,omitempty"`
}

func (NodeExecutionModel) TableName() string { return "node_executions" }

func (m *NodeExecutionModel) BeforeInsert(ctx any) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ExecutedAt.IsZero() {
		m.ExecutedAt = time.Now()
	}
	if m.InputVariables == nil {
		m.InputVariables = make(JSONBMap)
	}
	if m.OutputVariables == nil {
		m.OutputVariables = make(JSONBMap)
	}
	return nil
}

func (m *NodeExecutionModel) ToDomain() *domain.NodeExecution {
	if m == nil {
		return nil
	}
	return &domain.NodeExecution{
		ID: m.ID.String(),
		ExecutionID: m.ExecutionID.String(),
		NodeID: m.NodeID,
		NodeType: domain.NodeType(m.NodeType),
		State: domain.NodeExecutionState(m.State),
		AttemptNumber: m.AttemptNumber,
		ExecutedAt: m.ExecutedAt,
		CompletedAt: m.CompletedAt,
		DurationMs: m.DurationMs,
		InputVariables: map[string]any(m.InputVariables),
		OutputVariables: map[string]any(m.OutputVariables),
		ErrorMessage: m.ErrorMessage,
		ExecutedBy: m.ExecutedBy,
	}
}
