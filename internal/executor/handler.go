package executor

import (
	"context"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/graph"
)

// Handler executes the node-type-specific work for one node attempt. Exactly
// one registered handler must support a given node;
// the executor picks the first match.
type Handler interface {
	// Supports reports whether this handler owns node.Type.
	Supports(node *graph.Node) bool

	// Handle runs the node's work given its merged input variables and
	// returns the variables to merge back into the instance. Gateway and
	// no-op handlers simply return input unchanged.
	Handle(ctx context.Context, hctx *HandlerContext) (domain.Vars, error)
}

// HandlerContext carries everything a Handler needs without depending on
// the executor's internals directly.
type HandlerContext struct {
	ExecutionID string
	TenantID domain.Tenant
	Node *graph.Node
	Input domain.Vars

	// Pause, when set non-nil by a handler (USER_TASK), signals the
	// executor to stop descent without treating the stop as a failure.
	Pause *PauseRequest
}

// PauseRequest is populated by the USER_TASK handler to tell the executor
// loop to stop without error (USER_TASK).
type PauseRequest struct {
	Reason string
}
