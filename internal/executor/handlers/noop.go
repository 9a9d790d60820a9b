// Package handlers is the per-node-type handler set: one
// Handler implementation per node-type family, registered with the
// executor at startup.
package handlers

import (
	"context"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/executor"
	"github.com/wfcore/engine/internal/graph"
)

// NoopHandler covers START_EVENT, END_EVENT, INTERMEDIATE_EVENT, TASK,
// SCRIPT_TASK, MANUAL_TASK, SUBPROCESS, CALL_ACTIVITY, and every gateway
// type: node-type families with no handler-level side effect. All logic
// for gateways lives in the executor's edge-selection step.
type NoopHandler struct {
	types map[domain.NodeType]bool
}

// NewNoopHandler builds a NoopHandler supporting the given node types.
func NewNoopHandler(types ...domain.NodeType) *NoopHandler {
	set := make(map[domain.NodeType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &NoopHandler{types: set}
}

func (h *NoopHandler) Supports(node *graph.Node) bool {
	return h.types[node.Type]
}

func (h *NoopHandler) Handle(_ context.Context, hctx *executor.HandlerContext) (domain.Vars, error) {
	return hctx.Input, nil
}
