package handlers

import (
	"context"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/executor"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/statemanager"
)

// UserTaskHandler pauses the instance and stops descent without error
// (USER_TASK).
type UserTaskHandler struct {
	states statemanager.StateManager
}

// NewUserTaskHandler builds a handler that pauses via states.
func NewUserTaskHandler(states statemanager.StateManager) *UserTaskHandler {
	return &UserTaskHandler{states: states}
}

func (h *UserTaskHandler) Supports(node *graph.Node) bool {
	return node.Type == domain.NodeUserTask
}

func (h *UserTaskHandler) Handle(ctx context.Context, hctx *executor.HandlerContext) (domain.Vars, error) {
	if err := h.states.PauseWorkflow(ctx, hctx.ExecutionID); err != nil {
		return nil, err
	}
	hctx.Pause = &executor.PauseRequest{Reason: "awaiting user task " + hctx.Node.ID}
	return hctx.Input, nil
}
