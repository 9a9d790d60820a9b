package handlers

import (
	"context"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/executor"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/ruleadapter"
)

// BusinessRuleTaskHandler dispatches BUSINESS_RULE_TASK nodes to the rule
// adapter, loading the node's (ruleFile, ruleflowGroup) pair and merging
// the rule's output back into the instance's variables.
type BusinessRuleTaskHandler struct {
	adapter *ruleadapter.Adapter
}

// NewBusinessRuleTaskHandler builds a handler backed by adapter.
func NewBusinessRuleTaskHandler(adapter *ruleadapter.Adapter) *BusinessRuleTaskHandler {
	return &BusinessRuleTaskHandler{adapter: adapter}
}

func (h *BusinessRuleTaskHandler) Supports(node *graph.Node) bool {
	return node.Type == domain.NodeBusinessRuleTask
}

func (h *BusinessRuleTaskHandler) Handle(_ context.Context, hctx *executor.HandlerContext) (domain.Vars, error) {
	node := hctx.Node
	output, err := h.adapter.Evaluate(node.RuleFile, node.RuleflowGroup, hctx.Input)
	if err != nil {
		return nil, err
	}

	merged := make(domain.Vars, len(hctx.Input)+len(output))
	for k, v := range hctx.Input {
		merged[k] = v
	}
	for k, v := range output {
		merged[k] = v
	}
	return merged, nil
}
