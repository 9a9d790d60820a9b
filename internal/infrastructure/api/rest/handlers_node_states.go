package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type nodeStateEntry struct {
	Status string `json:"status"`
	Start string `json:"start"`
	End string `json:"end,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	Error *string `json:"error,omitempty"`
}

// HandleNodeStates implements nodeStates(executionId) ->
// {nodeId -> {status, start, end, durationMs, error?}}. When
// a node has been attempted more than once, the latest attempt wins.
func (h *Handlers) HandleNodeStates(c *gin.Context) {
	executionID := c.Param("executionId")

	execs, err := h.states.GetNodeExecutions(c.Request.Context(), executionID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make(map[string]nodeStateEntry, len(execs))
	for _, ne := range execs {
		entry := nodeStateEntry{
			Status: string(ne.State),
			Start: ne.ExecutedAt.Format(rfc3339Milli),
			DurationMs: ne.DurationMs,
		}
		if ne.CompletedAt != nil {
			entry.End = ne.CompletedAt.Format(rfc3339Milli)
		}
		if ne.ErrorMessage != "" {
			entry.Error = &ne.ErrorMessage
		}
		out[ne.NodeID] = entry
	}

	respondJSON(c, http.StatusOK, out)
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
