package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/executor"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/observability"
	"github.com/wfcore/engine/internal/servicecatalog"
)

// ServiceTaskHandler dispatches SERVICE_TASK nodes to a registered
// servicecatalog.Callable, applying input/output mappings and honoring
// the node's retry policy (SERVICE_TASK).
type ServiceTaskHandler struct {
	catalog *servicecatalog.Catalog
	metrics *observability.Metrics
}

// NewServiceTaskHandler builds a handler resolving callables from catalog.
func NewServiceTaskHandler(catalog *servicecatalog.Catalog, metrics *observability.Metrics) *ServiceTaskHandler {
	return &ServiceTaskHandler{catalog: catalog, metrics: metrics}
}

func (h *ServiceTaskHandler) Supports(node *graph.Node) bool {
	return node.Type == domain.NodeServiceTask
}

func (h *ServiceTaskHandler) Handle(ctx context.Context, hctx *executor.HandlerContext) (domain.Vars, error) {
	node := hctx.Node
	fn, ok := h.catalog.Resolve(node.ServiceName, node.ServiceMethod)
	if !ok {
		return nil, fmt.Errorf("no service registered for %s.%s", node.ServiceName, node.ServiceMethod)
	}

	callInput := servicecatalog.ApplyInputMapping(hctx.Input, node.InputMappings)

	policy := node.RetryPolicy
	if policy == nil {
		policy = &domain.RetryPolicy{MaxAttempts: 1}
	}

	var result domain.Vars
	var err error
	for attempt := 1; attempt <= maxInt(policy.MaxAttempts, 1); attempt++ {
		result, err = fn(ctx, callInput)
		if err == nil {
			break
		}
		if attempt < policy.MaxAttempts {
			h.metrics.RecordRetry(ctx, hctx.ExecutionID, node.ID)
			if delay := backoffDelay(policy, attempt); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("service %s.%s failed after %d attempt(s): %w", node.ServiceName, node.ServiceMethod, policy.MaxAttempts, err)
	}

	mapped, err := servicecatalog.ApplyOutputMapping(result, node.OutputMappings)
	if err != nil {
		return nil, err
	}

	merged := make(domain.Vars, len(hctx.Input)+len(mapped))
	for k, v := range hctx.Input {
		merged[k] = v
	}
	for k, v := range mapped {
		merged[k] = v
	}
	return merged, nil
}

func backoffDelay(policy *domain.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.DelayMs) * time.Millisecond
	switch policy.Backoff {
	case domain.BackoffLinear:
		return base * time.Duration(attempt)
	case domain.BackoffExponential:
		return base * time.Duration(1<<uint(attempt-1))
	default:
		return base
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
