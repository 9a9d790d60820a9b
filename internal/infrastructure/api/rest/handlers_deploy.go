package rest

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfcore/engine/internal/graph/parser"
	"github.com/wfcore/engine/internal/graph/validator"
	"github.com/wfcore/engine/internal/wferrors"
)

type deployResponse struct {
	WorkflowID string `json:"workflowId"`
	Version int `json:"version"`
}

// HandleDeploy implements deploy(definitionJson) -> {workflowId, version}.
// 400 is returned both for a malformed document and for a
// structurally/semantically invalid one (ValidationResult.invalid).
func (h *Handlers) HandleDeploy(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, &wferrors.DefinitionMalformed{Reason: "failed to read request body"})
		return
	}

	g, err := parser.Parse(body)
	if err != nil {
		respondError(c, err)
		return
	}

	result := validator.Validate(g)
	if result.Invalid() {
		respondError(c, &wferrors.DefinitionInvalid{Errors: result.Errors, Warnings: result.Warnings})
		return
	}

	tenant := tenantFrom(c)
	ctx := c.Request.Context()

	exists, err := h.definitions.Exists(ctx, tenant, g.WorkflowID, g.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	if exists {
		respondError(c, &wferrors.DefinitionInvalid{Errors: []string{
			"E_VERSION_EXISTS: workflow " + g.WorkflowID + " version already deployed",
		}})
		return
	}

	if err := h.definitions.Save(ctx, tenant, g.WorkflowID, g.Version, g.Name, string(body)); err != nil {
		respondError(c, err)
		return
	}
	h.cacheGraph(tenant, g)

	respondJSON(c, http.StatusOK, deployResponse{WorkflowID: g.WorkflowID, Version: g.Version})
}
