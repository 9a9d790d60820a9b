package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfcore/engine/internal/domain"
)

type executeRequest struct {
	WorkflowID string `json:"workflowId" binding:"required"`
	Version int `json:"version,omitempty"`
	Variables domain.Vars `json:"variables,omitempty"`
	Async bool `json:"async,omitempty"`
}

type executeResponse struct {
	ExecutionID string `json:"executionId"`
}

// HandleExecute implements execute(workflowId, variables, async?) ->
// executionId, 200 sync / 202 async.
func (h *Handlers) HandleExecute(c *gin.Context) {
	var req executeRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	tenant := tenantFrom(c)
	ctx := c.Request.Context()

	g, err := h.loadGraph(ctx, tenant, req.WorkflowID, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Async {
		executionID, err := h.engine.ExecuteAsync(ctx, g, tenant, req.Variables)
		if err != nil {
			respondError(c, err)
			return
		}
		respondJSON(c, http.StatusAccepted, executeResponse{ExecutionID: executionID})
		return
	}

	inst, err := h.engine.ExecuteSync(ctx, g, tenant, req.Variables)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, executeResponse{ExecutionID: inst.ExecutionID})
}

type executionStatusResponse struct {
	State domain.InstanceState `json:"state"`
	CurrentNodeID string `json:"currentNodeId"`
	Variables domain.Vars `json:"variables"`
	History []*domain.ExecutionEvent `json:"history"`
	Error string `json:"error,omitempty"`
}

// HandleGetExecutionStatus implements getExecutionStatus(executionId) ->
// {state, currentNodeId, variables, history, error?}.
func (h *Handlers) HandleGetExecutionStatus(c *gin.Context) {
	executionID := c.Param("executionId")
	ctx := c.Request.Context()

	inst, err := h.states.GetInstance(ctx, executionID)
	if err != nil {
		respondError(c, err)
		return
	}

	history, err := h.events.Timeline(ctx, executionID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, executionStatusResponse{
		State: inst.State,
		CurrentNodeID: inst.CurrentNodeID,
		Variables: inst.Variables,
		History: history,
		Error: inst.FailureMessage,
	})
}

type resumeResponse struct {
	State domain.InstanceState `json:"state"`
}

// HandleResumeExecution implements resumeExecution(executionId) ->
// {state}, only valid on PAUSED.
func (h *Handlers) HandleResumeExecution(c *gin.Context) {
	executionID := c.Param("executionId")
	ctx := c.Request.Context()

	inst, err := h.states.GetInstance(ctx, executionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if inst.State != domain.StatePaused {
		respondJSON(c, http.StatusConflict, APIError{
			Code: "INSTANCE_NOT_PAUSED",
			Message: "resumeExecution is only valid on a PAUSED instance",
		})
		return
	}

	g, err := h.loadGraph(ctx, inst.TenantID, inst.WorkflowID, inst.Version)
	if err != nil {
		respondError(c, err)
		return
	}

	resumed, err := h.engine.ResumeExecution(ctx, g, executionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, resumeResponse{State: resumed.State})
}
