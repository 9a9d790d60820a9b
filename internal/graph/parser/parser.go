// Package parser turns an inbound definition document 
// into a *graph.WorkflowGraph. It tolerates two top-level shapes: "v2" with
// nodes/edges nested under an "execution" object, and "v1" with nodes/edges
// at the document root. Semantics, not syntax, are normative — both shapes
// normalize to the same graph.
package parser

import (
	"encoding/json"
	"fmt"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/wferrors"
)

// rawDefinition mirrors the inbound JSON document loosely enough to accept
// both shapes; fields are validated after unmarshalling, not by the
// json tags alone.
type rawDefinition struct {
	WorkflowID string `json:"workflowId"`
	Version int `json:"version"`
	Name string `json:"name"`
	Execution *rawExecution `json:"execution"`
	Nodes []rawNode `json:"nodes"`
	Edges []rawEdge `json:"edges"`
}

type rawExecution struct {
	Nodes []rawNode `json:"nodes"`
	Edges []rawEdge `json:"edges"`
}

type rawNode struct {
	ID string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	GatewayType string `json:"gatewayType"`
	ServiceName string `json:"serviceName"`
	ServiceMethod string `json:"serviceMethod"`
	RuleFile string `json:"ruleFile"`
	RuleflowGroup string `json:"ruleflowGroup"`
	Terminate bool `json:"terminate"`
	InputMappings map[string]string `json:"inputMappings"`
	OutputMappings map[string]string `json:"outputMappings"`
	RetryPolicy *rawRetryPolicy `json:"retryPolicy"`
	Transactional bool `json:"transactional"`
}

type rawRetryPolicy struct {
	MaxAttempts int `json:"maxAttempts"`
	BackoffStrategy string `json:"backoffStrategy"`
	DelayMs int `json:"delayMs"`
}

type rawEdge struct {
	ID string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	PathType string `json:"pathType"`
	Condition string `json:"condition"`
	Priority int `json:"priority"`
	Name string `json:"name"`
}

var validNodeTypes = map[string]domain.NodeType{
	"START_EVENT": domain.NodeStartEvent,
	"END_EVENT": domain.NodeEndEvent,
	"INTERMEDIATE_EVENT": domain.NodeIntermediateEvent,
	"TASK": domain.NodeTask,
	"SCRIPT_TASK": domain.NodeScriptTask,
	"SERVICE_TASK": domain.NodeServiceTask,
	"USER_TASK": domain.NodeUserTask,
	"BUSINESS_RULE_TASK": domain.NodeBusinessRuleTask,
	"MANUAL_TASK": domain.NodeManualTask,
	"SUBPROCESS": domain.NodeSubprocess,
	"CALL_ACTIVITY": domain.NodeCallActivity,
	"EXCLUSIVE_GATEWAY": domain.NodeExclusiveGateway,
	"PARALLEL_GATEWAY": domain.NodeParallelGateway,
	"INCLUSIVE_GATEWAY": domain.NodeInclusiveGateway,
	"EVENT_BASED_GATEWAY": domain.NodeEventBasedGateway,
}

var validGatewayTypes = map[string]domain.GatewayType{
	"XOR": domain.GatewayXOR,
	"AND": domain.GatewayAND,
	"OR": domain.GatewayOR,
}

var validPathTypes = map[string]domain.PathType{
	"success": domain.PathSuccess,
	"error": domain.PathError,
	"conditional": domain.PathConditional,
	"parallel": domain.PathParallel,
	"default": domain.PathDefault,
	"": domain.PathSuccess,
}

var validBackoff = map[string]domain.RetryBackoff{
	"constant": domain.BackoffConstant,
	"linear": domain.BackoffLinear,
	"exponential": domain.BackoffExponential,
	"": domain.BackoffConstant,
}

// Parse normalizes either document shape and produces a finalized
// *graph.WorkflowGraph. It returns *wferrors.DefinitionMalformed when
// required identifiers are missing, ids collide, or an enum value is
// unrecognized.
func Parse(doc []byte) (*graph.WorkflowGraph, error) {
	var raw rawDefinition
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	if raw.WorkflowID == "" {
		return nil, &wferrors.DefinitionMalformed{Reason: "workflowId is required"}
	}
	if raw.Name == "" {
		return nil, &wferrors.DefinitionMalformed{Reason: "name is required"}
	}

	nodes, edges := raw.Nodes, raw.Edges
	if raw.Execution != nil {
		nodes, edges = raw.Execution.Nodes, raw.Execution.Edges
	}
	if len(nodes) == 0 {
		return nil, &wferrors.DefinitionMalformed{Reason: "no nodes present under execution.nodes or top-level nodes"}
	}

	g := graph.New(raw.WorkflowID, raw.Version, raw.Name)

	seenNodes := make(map[string]bool, len(nodes))
	for _, rn := range nodes {
		if rn.ID == "" {
			return nil, &wferrors.DefinitionMalformed{Reason: "node missing id"}
		}
		if seenNodes[rn.ID] {
			return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("duplicate node id %q", rn.ID)}
		}
		seenNodes[rn.ID] = true

		nodeType, ok := validNodeTypes[rn.Type]
		if !ok {
			return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("unknown node type %q on node %q", rn.Type, rn.ID)}
		}

		var gatewayType domain.GatewayType
		if rn.GatewayType != "" {
			gatewayType, ok = validGatewayTypes[rn.GatewayType]
			if !ok {
				return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("unknown gatewayType %q on node %q", rn.GatewayType, rn.ID)}
			}
		}

		var retry *domain.RetryPolicy
		if rn.RetryPolicy != nil {
			backoff, ok := validBackoff[rn.RetryPolicy.BackoffStrategy]
			if !ok {
				return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("unknown backoffStrategy %q on node %q", rn.RetryPolicy.BackoffStrategy, rn.ID)}
			}
			retry = &domain.RetryPolicy{
				MaxAttempts: rn.RetryPolicy.MaxAttempts,
				DelayMs: rn.RetryPolicy.DelayMs,
				Backoff: backoff,
			}
		}

		g.AddNode(&graph.Node{
			ID: rn.ID,
			Type: nodeType,
			Name: rn.Name,
			GatewayType: gatewayType,
			ServiceName: rn.ServiceName,
			ServiceMethod: rn.ServiceMethod,
			RuleFile: rn.RuleFile,
			RuleflowGroup: rn.RuleflowGroup,
			Terminate: rn.Terminate,
			InputMappings: rn.InputMappings,
			OutputMappings: rn.OutputMappings,
			RetryPolicy: retry,
			Transactional: rn.Transactional,
		})
	}

	seenEdges := make(map[string]bool, len(edges))
	for _, re := range edges {
		if re.ID == "" {
			return nil, &wferrors.DefinitionMalformed{Reason: "edge missing id"}
		}
		if seenEdges[re.ID] {
			return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("duplicate edge id %q", re.ID)}
		}
		seenEdges[re.ID] = true

		if re.Source == "" || re.Target == "" {
			return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("edge %q missing source/target", re.ID)}
		}

		pathType, ok := validPathTypes[re.PathType]
		if !ok {
			return nil, &wferrors.DefinitionMalformed{Reason: fmt.Sprintf("unknown pathType %q on edge %q", re.PathType, re.ID)}
		}

		g.AddEdge(&graph.Edge{
			ID: re.ID,
			Source: re.Source,
			Target: re.Target,
			PathType: pathType,
			Condition: re.Condition,
			Priority: re.Priority,
			Name: re.Name,
		})
	}

	g.Finalize()
	return g, nil
}
