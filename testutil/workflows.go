package testutil

import (
	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/graph"
)

// LinearWorkflow builds a minimal START -> TASK -> END graph, the baseline
// fixture for executor/engine tests that don't care about branching.
func LinearWorkflow() *graph.WorkflowGraph {
	g := graph.New("wf-linear", 1, "linear")
	g.AddNode(&graph.Node{ID: "start", Type: domain.NodeStartEvent})
	g.AddNode(&graph.Node{ID: "task", Type: domain.NodeTask})
	g.AddNode(&graph.Node{ID: "end", Type: domain.NodeEndEvent})
	g.AddEdge(&graph.Edge{ID: "e1", Source: "start", Target: "task", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "task", Target: "end", PathType: domain.PathSuccess})
	g.Finalize()
	return g
}

// ParallelGatewayWorkflow builds a fan-out/fan-in graph: START splits into
// two parallel TASK branches via an AND gateway, then joins before END.
func ParallelGatewayWorkflow() *graph.WorkflowGraph {
	g := graph.New("wf-parallel", 1, "parallel")
	g.AddNode(&graph.Node{ID: "start", Type: domain.NodeStartEvent})
	g.AddNode(&graph.Node{ID: "split", Type: domain.NodeParallelGateway, GatewayType: domain.GatewayAND})
	g.AddNode(&graph.Node{ID: "branch-a", Type: domain.NodeTask})
	g.AddNode(&graph.Node{ID: "branch-b", Type: domain.NodeTask})
	g.AddNode(&graph.Node{ID: "join", Type: domain.NodeParallelGateway, GatewayType: domain.GatewayAND})
	g.AddNode(&graph.Node{ID: "end", Type: domain.NodeEndEvent})

	g.AddEdge(&graph.Edge{ID: "e1", Source: "start", Target: "split", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "split", Target: "branch-a", PathType: domain.PathParallel})
	g.AddEdge(&graph.Edge{ID: "e3", Source: "split", Target: "branch-b", PathType: domain.PathParallel})
	g.AddEdge(&graph.Edge{ID: "e4", Source: "branch-a", Target: "join", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e5", Source: "branch-b", Target: "join", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e6", Source: "join", Target: "end", PathType: domain.PathSuccess})
	g.Finalize()
	return g
}

// ExclusiveGatewayWorkflow builds an XOR branch: START -> gateway, with one
// edge gated on "amount > 100" and a default fallback edge, both rejoining
// at END.
func ExclusiveGatewayWorkflow() *graph.WorkflowGraph {
	g := graph.New("wf-exclusive", 1, "exclusive")
	g.AddNode(&graph.Node{ID: "start", Type: domain.NodeStartEvent})
	g.AddNode(&graph.Node{ID: "gateway", Type: domain.NodeExclusiveGateway, GatewayType: domain.GatewayXOR})
	g.AddNode(&graph.Node{ID: "high-value", Type: domain.NodeTask})
	g.AddNode(&graph.Node{ID: "low-value", Type: domain.NodeTask})
	g.AddNode(&graph.Node{ID: "end", Type: domain.NodeEndEvent})

	g.AddEdge(&graph.Edge{ID: "e1", Source: "start", Target: "gateway", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "gateway", Target: "high-value", PathType: domain.PathConditional, Condition: "amount > 100", Priority: 0})
	g.AddEdge(&graph.Edge{ID: "e3", Source: "gateway", Target: "low-value", PathType: domain.PathDefault, Priority: 1})
	g.AddEdge(&graph.Edge{ID: "e4", Source: "high-value", Target: "end", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e5", Source: "low-value", Target: "end", PathType: domain.PathSuccess})
	g.Finalize()
	return g
}

// ServiceTaskWorkflow builds START -> SERVICE_TASK -> END, with a retry
// policy attached to the service call, for executor/compensation tests.
func ServiceTaskWorkflow(serviceName, serviceMethod string) *graph.WorkflowGraph {
	g := graph.New("wf-service", 1, "service")
	g.AddNode(&graph.Node{ID: "start", Type: domain.NodeStartEvent})
	g.AddNode(&graph.Node{
		ID:            "call",
		Type:          domain.NodeServiceTask,
		ServiceName:   serviceName,
		ServiceMethod: serviceMethod,
		InputMappings: map[string]string{"amount": "amount"},
		RetryPolicy:   &domain.RetryPolicy{MaxAttempts: 3, Backoff: domain.BackoffConstant, DelayMs: 10},
	})
	g.AddNode(&graph.Node{ID: "end", Type: domain.NodeEndEvent})
	g.AddEdge(&graph.Edge{ID: "e1", Source: "start", Target: "call", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "call", Target: "end", PathType: domain.PathSuccess})
	g.Finalize()
	return g
}

// BusinessRuleTaskWorkflow builds START -> BUSINESS_RULE_TASK -> END, for
// rule-adapter-backed execution tests.
func BusinessRuleTaskWorkflow(ruleFile, ruleflowGroup string) *graph.WorkflowGraph {
	g := graph.New("wf-rule", 1, "rule")
	g.AddNode(&graph.Node{ID: "start", Type: domain.NodeStartEvent})
	g.AddNode(&graph.Node{
		ID:            "evaluate",
		Type:          domain.NodeBusinessRuleTask,
		RuleFile:      ruleFile,
		RuleflowGroup: ruleflowGroup,
	})
	g.AddNode(&graph.Node{ID: "end", Type: domain.NodeEndEvent})
	g.AddEdge(&graph.Edge{ID: "e1", Source: "start", Target: "evaluate", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "evaluate", Target: "end", PathType: domain.PathSuccess})
	g.Finalize()
	return g
}

// UserTaskWorkflow builds START -> USER_TASK -> END, the shape that parks
// an instance in PAUSED awaiting resumeExecution.
func UserTaskWorkflow() *graph.WorkflowGraph {
	g := graph.New("wf-user-task", 1, "user-task")
	g.AddNode(&graph.Node{ID: "start", Type: domain.NodeStartEvent})
	g.AddNode(&graph.Node{ID: "approve", Type: domain.NodeUserTask})
	g.AddNode(&graph.Node{ID: "end", Type: domain.NodeEndEvent})
	g.AddEdge(&graph.Edge{ID: "e1", Source: "start", Target: "approve", PathType: domain.PathSuccess})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "approve", Target: "end", PathType: domain.PathSuccess})
	g.Finalize()
	return g
}

// LinearDefinitionJSON returns a raw definition document equivalent to
// LinearWorkflow, for tests exercising the parser/validator/deploy handler
// directly instead of a pre-built graph.
func LinearDefinitionJSON() []byte {
	return []byte(`{
		"workflowId": "wf-linear",
		"version": 1,
		"name": "linear",
		"nodes": [
			{"id": "start", "type": "START_EVENT"},
			{"id": "task", "type": "TASK"},
			{"id": "end", "type": "END_EVENT"}
		],
		"edges": [
			{"id": "e1", "source": "start", "target": "task", "pathType": "success"},
			{"id": "e2", "source": "task", "target": "end", "pathType": "success"}
		]
	}`)
}
