// Package validator runs the structural and semantic checks a deployed
// workflow definition must pass against a *graph.WorkflowGraph, returning
// errors (block deployment) and warnings (do not).
package validator

import (
	"fmt"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/graph"
)

// Result holds the two check-result lists, each entry prefixed with its
// check code so callers (and tests) can assert on the exact code.
type Result struct {
	Errors []string
	Warnings []string
}

// Invalid reports whether any error was recorded.
func (r *Result) Invalid() bool { return len(r.Errors) > 0 }

func (r *Result) addError(code, format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", code, fmt.Sprintf(format, args...)))
}

func (r *Result) addWarning(code, format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", code, fmt.Sprintf(format, args...)))
}

// Validate runs every check and returns the accumulated Result. It never
// panics on a malformed graph; a missing start/end simply produces the
// relevant error code.
func Validate(g *graph.WorkflowGraph) *Result {
	r := &Result{}

	starts := nodesOfType(g, domain.NodeStartEvent)
	ends := nodesOfType(g, domain.NodeEndEvent)

	checkStartEvent(g, r, starts)
	checkEndEvents(g, r, ends)
	checkEdgeTargetsAndSelfLoops(g, r)
	checkGateways(g, r)
	checkReachability(g, r, starts)
	checkTaskFields(g, r)

	return r
}

func nodesOfType(g *graph.WorkflowGraph, t domain.NodeType) []*graph.Node {
	var out []*graph.Node
	for _, n := range g.Nodes() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func checkStartEvent(g *graph.WorkflowGraph, r *Result, starts []*graph.Node) {
	if len(starts) == 0 {
		r.addError("START_EVENT_MISSING", "no START_EVENT node present")
		return
	}
	for _, s := range starts {
		if len(g.GetIncomingEdges(s.ID)) > 0 {
			r.addError("START_EVENT_HAS_INCOMING", "start event %q has incoming edges", s.ID)
		}
		if len(g.GetOutgoingEdges(s.ID)) == 0 {
			r.addError("START_EVENT_NO_OUTGOING", "start event %q has no outgoing edges", s.ID)
		}
	}
}

func checkEndEvents(g *graph.WorkflowGraph, r *Result, ends []*graph.Node) {
	if len(ends) == 0 {
		r.addError("END_EVENT_MISSING", "no END_EVENT node present")
		return
	}
	for _, e := range ends {
		if len(g.GetOutgoingEdges(e.ID)) > 0 {
			r.addError("END_EVENT_HAS_OUTGOING", "end event %q has outgoing edges", e.ID)
		}
		if len(g.GetIncomingEdges(e.ID)) == 0 {
			r.addWarning("END_EVENT_NO_INCOMING", "end event %q is unreachable (no incoming edges)", e.ID)
		}
	}
}

func checkEdgeTargetsAndSelfLoops(g *graph.WorkflowGraph, r *Result) {
	for _, e := range g.Edges() {
		if e.Source == e.Target {
			r.addError("SELF_LOOP", "edge %q is a self-loop on node %q", e.ID, e.Source)
		}
		if g.GetNode(e.Source) == nil {
			r.addError("EDGE_TARGET_NOT_FOUND", "edge %q source %q does not resolve", e.ID, e.Source)
		}
		if g.GetNode(e.Target) == nil {
			r.addError("EDGE_TARGET_NOT_FOUND", "edge %q target %q does not resolve", e.ID, e.Target)
		}
	}
}

func checkGateways(g *graph.WorkflowGraph, r *Result) {
	for _, n := range g.Nodes() {
		if !n.Type.IsGateway() {
			continue
		}
		if n.GatewayType == "" {
			r.addError("GATEWAY_TYPE_MISSING", "gateway %q has no gatewayType", n.ID)
			continue
		}

		in := len(g.GetIncomingEdges(n.ID))
		out := len(g.GetOutgoingEdges(n.ID))
		diverging := in <= 1 && out > 1
		converging := in > 1 && out <= 1
		if !diverging && !converging && in > 1 && out > 1 {
			r.addWarning("GATEWAY_MIXED", "gateway %q is neither purely diverging nor converging (in=%d, out=%d)", n.ID, in, out)
		}

		if diverging && (n.GatewayType == domain.GatewayXOR || n.GatewayType == domain.GatewayOR) {
			edges := g.GetOutgoingEdges(n.ID)
			defaults := 0
			for _, e := range edges {
				if e.PathType == domain.PathDefault || e.Condition == "" {
					defaults++
				}
			}
			if defaults > 1 {
				r.addError("GATEWAY_MULTIPLE_DEFAULT", "gateway %q has %d unconditional/default branches", n.ID, defaults)
			} else if defaults == 0 {
				r.addWarning("GATEWAY_NO_DEFAULT", "gateway %q has no default/unconditional branch", n.ID)
			}
		}
	}
}

func checkReachability(g *graph.WorkflowGraph, r *Result, starts []*graph.Node) {
	if len(starts) == 0 {
		return
	}

	reachable := make(map[string]bool)
	queue := []string{starts[0].ID}
	reachable[starts[0].ID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.GetOutgoingEdges(id) {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}

	reachableEnd := false
	for _, n := range g.Nodes() {
		if !reachable[n.ID] {
			r.addWarning("NODE_UNREACHABLE", "node %q is not reachable from start", n.ID)
			continue
		}
		if n.Type == domain.NodeEndEvent {
			reachableEnd = true
		}
	}
	if !reachableEnd {
		r.addError("NO_REACHABLE_END_EVENT", "no END_EVENT is reachable from start")
	}
}

func checkTaskFields(g *graph.WorkflowGraph, r *Result) {
	for _, n := range g.Nodes() {
		switch n.Type {
		case domain.NodeServiceTask:
			if n.ServiceName == "" {
				r.addError("SERVICE_TASK_NO_NAME", "service task %q has no serviceName", n.ID)
			}
		case domain.NodeBusinessRuleTask:
			if n.RuleFile == "" {
				r.addError("RULE_TASK_NO_FILE", "business rule task %q has no ruleFile", n.ID)
			}
			if n.RuleflowGroup == "" {
				r.addError("RULE_TASK_NO_GROUP", "business rule task %q has no ruleflowGroup", n.ID)
			}
		}
	}
}
