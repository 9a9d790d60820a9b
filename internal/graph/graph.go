// Package graph models the directed graph a workflow definition compiles
// to: nodes keyed by id, edges with forward and reverse adjacency. The
// executor never branches on a node's config bag directly — only through
// the node-type dispatch in internal/executor.
package graph

import (
	"sort"

	"github.com/wfcore/engine/internal/domain"
)

// Node is one vertex of a WorkflowGraph.
type Node struct {
	ID string
	Type domain.NodeType
	Name string
	GatewayType domain.GatewayType
	ServiceName string
	ServiceMethod string
	RuleFile string
	RuleflowGroup string
	Terminate bool
	InputMappings map[string]string
	OutputMappings map[string]string
	RetryPolicy *domain.RetryPolicy

	// Transactional marks a node whose handler must run inside the
	// transaction manager's SERIALIZABLE boundary rather than as a bare
	// handler call.
	Transactional bool
}

// Edge is one directed arc of a WorkflowGraph.
type Edge struct {
	ID string
	Source string
	Target string
	PathType domain.PathType
	Condition string
	Priority int
	Name string
}

// WorkflowGraph is the derived, cacheable, regenerable directed graph a
// definition's JSON compiles to.
type WorkflowGraph struct {
	WorkflowID string
	Version int
	Name string

	nodes map[string]*Node
	edges map[string]*Edge

	outgoing map[string][]*Edge // source -> edges, sorted by (priority, id)
	incoming map[string][]*Edge // target -> edges, sorted by (priority, id)

	StartEvent string
	EndEvents []string
}

// New builds an empty graph for the given identity triple; callers add
// nodes/edges and then call Finalize to compute adjacency.
func New(workflowID string, version int, name string) *WorkflowGraph {
	return &WorkflowGraph{
		WorkflowID: workflowID,
		Version: version,
		Name: name,
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		outgoing: make(map[string][]*Edge),
		incoming: make(map[string][]*Edge),
	}
}

// AddNode registers a node. Nodes must be added before Finalize.
func (g *WorkflowGraph) AddNode(n *Node) {
	g.nodes[n.ID] = n
}

// AddEdge registers an edge. Edges must be added before Finalize.
func (g *WorkflowGraph) AddEdge(e *Edge) {
	g.edges[e.ID] = e
}

// Finalize computes forward/reverse adjacency (sorted by ascending
// priority, ties broken by edge id) and derives StartEvent/
// EndEvents. It is idempotent and safe to call again after structural
// changes.
func (g *WorkflowGraph) Finalize() {
	g.outgoing = make(map[string][]*Edge, len(g.nodes))
	g.incoming = make(map[string][]*Edge, len(g.nodes))

	for _, e := range g.edges {
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
		g.incoming[e.Target] = append(g.incoming[e.Target], e)
	}
	for _, list := range g.outgoing {
		sortEdges(list)
	}
	for _, list := range g.incoming {
		sortEdges(list)
	}

	g.EndEvents = g.EndEvents[:0]
	for _, n := range g.nodes {
		if n.Type == domain.NodeStartEvent {
			g.StartEvent = n.ID
		}
		if n.Type == domain.NodeEndEvent {
			g.EndEvents = append(g.EndEvents, n.ID)
		}
	}
	sort.Strings(g.EndEvents)
}

func sortEdges(list []*Edge) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].ID < list[j].ID
	})
}

// GetNode returns the node with the given id, or nil.
func (g *WorkflowGraph) GetNode(id string) *Node {
	return g.nodes[id]
}

// Nodes returns every node in the graph, in no particular order.
func (g *WorkflowGraph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Edges returns every edge in the graph, in no particular order.
func (g *WorkflowGraph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// GetOutgoingEdges returns id's outgoing edges, ascending priority, ties
// broken by edge id.
func (g *WorkflowGraph) GetOutgoingEdges(id string) []*Edge {
	return g.outgoing[id]
}

// GetIncomingEdges returns id's incoming edges, ascending priority, ties
// broken by edge id.
func (g *WorkflowGraph) GetIncomingEdges(id string) []*Edge {
	return g.incoming[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *WorkflowGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges in the graph.
func (g *WorkflowGraph) EdgeCount() int { return len(g.edges) }
