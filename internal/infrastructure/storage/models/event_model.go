package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/wfcore/engine/internal/domain"
)

// ExecutionEventModel is one append-only row of the event log
// (domain.ExecutionEvent), carrying the sequence/execution_id columns
// and ordered scans the repository layer relies on.
type ExecutionEventModel struct {
	bun.BaseModel `bun:"table:execution_events,alias:ee"`

	ID uint64 `bun:"id,pk,autoincrement" json:"id"`
	ExecutionID uuid.UUID `bun:"execution_id,notnull,type:uuid" json:"execution_id"`
	Sequence int64 `bun:"sequence,notnull" json:"sequence"`
	EventType string `bun:"event_type,notnull" json:"event_type"`
	NodeID string `bun:"node_id" json:"node_id,omitempty"`
	NodeType string `bun:"node_type" json:"node_type,omitempty"`
	EdgeTaken string `bun:"edge_taken" json:"edge_taken,omitempty"`
	Status string `bun:"status" json:"status,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	DurationMs *int64 `bun:"duration_ms" json:"duration_ms,omitempty"`
	InputSnapshot JSONBMap `bun:"input_snapshot,type:jsonb" json:"input_snapshot,omitempty"`
	OutputSnapshot JSONBMap `bun:"output_snapshot,type:jsonb" json:"output_snapshot,omitempty"`
	VariablesSnapshot JSONBMap `bun:"variables_snapshot,type:jsonb" json:"variables_snapshot,omitempty"`
	ErrorSnapshot string `bun:"error_snapshot" json:"error_snapshot,omitempty"`
	DecisionResult string `bun:"decision_result" json:"decision_result,omitempty"`
	TransactionID string `bun:"transaction_id" json:"transaction_id,omitempty"`
	IdempotencyKey string `bun:"idempotency_key,notnull,unique" json:"idempotency_key"`
	CompensatedBy string `bun:"compensated_by" json:"compensated_by,omitempty"`
	Message string `bun:"message" json:"message,omitempty"`
}

func (ExecutionEventModel) TableName() string { return "execution_events" }

func (m *ExecutionEventModel) BeforeInsert(ctx any) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return nil
}

func (m *ExecutionEventModel) ToDomain() *domain.ExecutionEvent {
	if m == nil {
		return nil
	}
	return &domain.ExecutionEvent{
		ID: m.ID,
		ExecutionID: m.ExecutionID.String(),
		SequenceNumber: m.Sequence,
		EventType: domain.EventType(m.EventType),
		NodeID: m.NodeID,
		NodeType: domain.NodeType(m.NodeType),
		EdgeTaken: m.EdgeTaken,
		Status: m.Status,
		Timestamp: m.CreatedAt,
		DurationMs: m.DurationMs,
		InputSnapshot: map[string]any(m.InputSnapshot),
		OutputSnapshot: map[string]any(m.OutputSnapshot),
		VariablesSnapshot: map[string]any(m.VariablesSnapshot),
		ErrorSnapshot: m.ErrorSnapshot,
		DecisionResult: m.DecisionResult,
		TransactionID: m.TransactionID,
		IdempotencyKey: m.IdempotencyKey,
		CompensatedBy: m.CompensatedBy,
		Message: m.Message,
	}
}

// FromDomainEvent populates an insertable model from a domain.ExecutionEvent.
func FromDomainEvent(d *domain.ExecutionEvent) *ExecutionEventModel {
	execID, _ := uuid.Parse(d.ExecutionID)
	return &ExecutionEventModel{
		ExecutionID: execID,
		Sequence: d.SequenceNumber,
		EventType: string(d.EventType),
		NodeID: d.NodeID,
		NodeType: string(d.NodeType),
		EdgeTaken: d.EdgeTaken,
		Status: d.Status,
		CreatedAt: d.Timestamp,
		DurationMs: d.DurationMs,
		InputSnapshot: JSONBMap(d.InputSnapshot),
		OutputSnapshot: JSONBMap(d.OutputSnapshot),
		VariablesSnapshot: JSONBMap(d.VariablesSnapshot),
		ErrorSnapshot: d.ErrorSnapshot,
		DecisionResult: d.DecisionResult,
		TransactionID: d.TransactionID,
		IdempotencyKey: d.IdempotencyKey,
		CompensatedBy: d.CompensatedBy,
		Message: d.Message,
	}
}

// WorkflowDefinitionModel is an immutable deployed definition row (
// WorkflowDefinition).
type WorkflowDefinitionModel struct {
	bun.BaseModel `bun:"table:workflow_definitions,alias:wd"`

	ID uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4" json:"id"`
	WorkflowID string `bun:"workflow_id,notnull" json:"workflow_id"`
	Version int `bun:"version,notnull" json:"version"`
	TenantID string `bun:"tenant_id,notnull,default:'default'" json:"tenant_id"`
	Name string `bun:"name,notnull" json:"name"`
	Definition string `bun:"definition,notnull" json:"definition"`
	Active bool `bun:"active,notnull,default:true" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (WorkflowDefinitionModel) TableName() string { return "workflow_definitions" }

func (m *WorkflowDefinitionModel) BeforeInsert(ctx any) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.TenantID == "" {
		m.TenantID = string(domain.DefaultTenant)
	}
	return nil
}

// AuditLogModel is an append-only compliance row (AuditLog).
type AuditLogModel struct {
	bun.BaseModel `bun:"table:execution_audit_log,alias:al"`

	ID uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4" json:"id"`
	ExecutionID uuid.UUID `bun:"execution_id,type:uuid" json:"execution_id,omitempty"`
	TenantID string `bun:"tenant_id,notnull,default:'default'" json:"tenant_id"`
	Actor string `bun:"actor" json:"actor,omitempty"`
	Action string `bun:"action,notnull" json:"action"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	BeforeSnapshot string `bun:"before_snapshot" json:"before_snapshot,omitempty"`
	AfterSnapshot string `bun:"after_snapshot" json:"after_snapshot,omitempty"`
	CorrelationID string `bun:"correlation_id" json:"correlation_id,omitempty"`
	ContentHash string `bun:"content_hash" json:"content_hash,omitempty"`
}

func (AuditLogModel) TableName() string { return "execution_audit_log" }

func (m *AuditLogModel) BeforeInsert(ctx any) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.TenantID == "" {
		m.TenantID = string(domain.DefaultTenant)
	}
	return nil
}

func (m *AuditLogModel) ToDomain() *domain.AuditLog {
	if m == nil {
		return nil
	}
	return &domain.AuditLog{
		ID: m.ID.String(),
		ExecutionID: m.ExecutionID.String(),
		TenantID: domain.Tenant(m.TenantID),
		Actor: m.Actor,
		Action: m.Action,
		Timestamp: m.CreatedAt,
		BeforeSnapshot: m.BeforeSnapshot,
		AfterSnapshot: m.AfterSnapshot,
		CorrelationID: m.CorrelationID,
		ContentHash: m.ContentHash,
	}
}
