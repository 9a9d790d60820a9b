package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfcore/engine/internal/domain"
)

// HandleReplayTimeline implements replayTimeline(executionId, start?, end?)
// -> [event...]. start/end are sequence numbers; when end is
// given, events are loaded from the full timeline and filtered, since
// TimelineRange only bounds the lower edge.
func (h *Handlers) HandleReplayTimeline(c *gin.Context) {
	executionID := c.Param("executionId")
	ctx := c.Request.Context()

	var start int64
	if v := c.Query("start"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondJSON(c, http.StatusBadRequest, APIError{Code: "VALIDATION_FAILED", Message: "start must be an integer"})
			return
		}
		start = parsed
	}

	events, err := h.events.TimelineRange(ctx, executionID, start)
	if err != nil {
		respondError(c, err)
		return
	}

	if v := c.Query("end"); v != "" {
		end, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondJSON(c, http.StatusBadRequest, APIError{Code: "VALIDATION_FAILED", Message: "end must be an integer"})
			return
		}
		events = filterUpTo(events, end)
	}

	respondJSON(c, http.StatusOK, events)
}

func filterUpTo(events []*domain.ExecutionEvent, end int64) []*domain.ExecutionEvent {
	filtered := make([]*domain.ExecutionEvent, 0, len(events))
	for _, e := range events {
		if e.SequenceNumber <= end {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
