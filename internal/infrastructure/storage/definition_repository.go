package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/infrastructure/storage/models"
	"github.com/wfcore/engine/internal/wferrors"
)

// DefinitionRepository persists deployed workflow definitions. Definitions
// are immutable once deployed: the document itself carries the version
// (inbound contract), so a redeploy of an existing
// (workflowId, version, tenant) tuple is rejected rather than silently
// overwritten.
type DefinitionRepository struct {
	db *bun.DB
}

// NewDefinitionRepository creates a new DefinitionRepository.
func NewDefinitionRepository(db *bun.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

// Exists reports whether a definition is already deployed at
// (workflowID, version) for tenant.
func (r *DefinitionRepository) Exists(ctx context.Context, tenant domain.Tenant, workflowID string, version int) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.WorkflowDefinitionModel)(nil)).
		Where("workflow_id = ? AND version = ? AND tenant_id = ?", workflowID, version, string(tenant)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check existing definition: %w", err)
	}
	return exists, nil
}

// Save inserts a new definition row, rawDefinition being the original
// deploy-time JSON document preserved verbatim for replayTimeline/audit.
func (r *DefinitionRepository) Save(ctx context.Context, tenant domain.Tenant, workflowID string, version int, name string, rawDefinition string) error {
	model := &models.WorkflowDefinitionModel{
		WorkflowID: workflowID,
		Version: version,
		TenantID: string(tenant),
		Name: name,
		Definition: rawDefinition,
		Active: true,
	}
	_, err := r.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert workflow definition: %w", err)
	}
	return nil
}

// Get returns the raw definition document for (workflowID, version).
func (r *DefinitionRepository) Get(ctx context.Context, tenant domain.Tenant, workflowID string, version int) (string, error) {
	model := new(models.WorkflowDefinitionModel)
	err := r.db.NewSelect().
		Model(model).
		Where("workflow_id = ? AND version = ? AND tenant_id = ?", workflowID, version, string(tenant)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &wferrors.DefinitionNotFound{WorkflowID: workflowID, Version: version}
	}
	if err != nil {
		return "", fmt.Errorf("query workflow definition: %w", err)
	}
	return model.Definition, nil
}

// GetLatest returns the raw definition document for the highest deployed
// version of workflowID, used when execute is called without an
// explicit version.
func (r *DefinitionRepository) GetLatest(ctx context.Context, tenant domain.Tenant, workflowID string) (string, int, error) {
	model := new(models.WorkflowDefinitionModel)
	err := r.db.NewSelect().
		Model(model).
		Where("workflow_id = ? AND tenant_id = ? AND active", workflowID, string(tenant)).
		Order("version DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, &wferrors.DefinitionNotFound{WorkflowID: workflowID, Version: 0}
	}
	if err != nil {
		return "", 0, fmt.Errorf("query latest workflow definition: %w", err)
	}
	return model.Definition, model.Version, nil
}
