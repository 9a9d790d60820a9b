package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wfcore/engine/internal/domain"
)

type rollbackRequest struct {
	Reason struct {
		Code domain.RollbackReasonCode `json:"code" binding:"required"`
		Details string `json:"details,omitempty"`
	} `json:"reason" binding:"required"`
}

// HandleRollback implements rollback(executionId, {reason}) ->
// {rollbackResult}, rolling the whole execution back in
// reverse completion order.
func (h *Handlers) HandleRollback(c *gin.Context) {
	executionID := c.Param("executionId")

	var req rollbackRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	reason := domain.RollbackReason{Code: req.Reason.Code, Details: req.Reason.Details}

	result, err := h.rollback.RollbackWorkflow(c.Request.Context(), executionID, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"rollbackResult": result})
}
