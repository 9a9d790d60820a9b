package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/wferrors"
)

func newTestExecutor() *Executor {
	return New(nil, nil, nil, logger.Nop())
}

func gatewayGraph(t *testing.T, gatewayType domain.GatewayType, edges []*graph.Edge) *graph.WorkflowGraph {
	t.Helper()
	g := graph.New("wf", 1, "test")
	g.AddNode(&graph.Node{ID: "gw", Type: domain.NodeExclusiveGateway, GatewayType: gatewayType})
	for _, e := range edges {
		g.AddEdge(e)
	}
	g.Finalize()
	return g
}

func TestSelectEdges_SingleEdgePassesThroughWithoutGatewayCheck(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := graph.New("wf", 1, "test")
	g.AddNode(&graph.Node{ID: "t", Type: domain.NodeTask})
	g.AddEdge(&graph.Edge{ID: "e1", Source: "t", Target: "end"})
	g.Finalize()

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("t"), g, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1", edges[0].ID)
}

func TestSelectEdges_NoOutgoingEdgesReturnsEmpty(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := graph.New("wf", 1, "test")
	g.AddNode(&graph.Node{ID: "t", Type: domain.NodeTask})
	g.Finalize()

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("t"), g, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestSelectEdges_NonGatewayMultipleEdgesTakesFirstByPriority(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := graph.New("wf", 1, "test")
	g.AddNode(&graph.Node{ID: "t", Type: domain.NodeTask})
	g.AddEdge(&graph.Edge{ID: "e2", Source: "t", Target: "b", Priority: 2})
	g.AddEdge(&graph.Edge{ID: "e1", Source: "t", Target: "a", Priority: 1})
	g.Finalize()

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("t"), g, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1", edges[0].ID)
}

func TestSelectEdges_ANDGatewayTakesEveryOutgoingEdge(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayAND, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a"},
		{ID: "e2", Source: "gw", Target: "b"},
	})

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, nil)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestSelectEdges_ORGatewayTakesEveryConditionThatMatches(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayOR, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "amount > 100"},
		{ID: "e2", Source: "gw", Target: "b", Condition: "amount > 50"},
		{ID: "e3", Source: "gw", Target: "c", Condition: "amount > 1000"},
	})

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"amount": 75})
	require.NoError(t, err)
	ids := edgeIDs(edges)
	assert.ElementsMatch(t, []string{"e2"}, ids)
}

func TestSelectEdges_ORGatewayFallsBackToDefaultWhenNoConditionMatches(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayOR, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "amount > 1000"},
		{ID: "e2", Source: "gw", Target: "b", PathType: domain.PathDefault},
	})

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"amount": 5})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e2", edges[0].ID)
}

func TestSelectEdges_ORGatewayNoMatchNoFallbackReturnsNoBranchSatisfied(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayOR, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "amount > 1000"},
	})

	_, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"amount": 5})
	var noBranch *wferrors.NoBranchSatisfied
	assert.ErrorAs(t, err, &noBranch)
}

func TestSelectEdges_XORGatewayTakesFirstMatchingCondition(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayXOR, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "approved == true", Priority: 1},
		{ID: "e2", Source: "gw", Target: "b", Condition: "approved == false", Priority: 2},
	})

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"approved": true})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1", edges[0].ID)
}

func TestSelectEdges_XORGatewayFallsBackToDefault(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayXOR, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "approved == true"},
		{ID: "e2", Source: "gw", Target: "b", PathType: domain.PathDefault},
	})

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"approved": false})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e2", edges[0].ID)
}

func TestSelectEdges_XORGatewayNoMatchNoFallbackReturnsNoBranchSatisfied(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayXOR, []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "approved == true"},
	})

	_, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"approved": false})
	var noBranch *wferrors.NoBranchSatisfied
	assert.ErrorAs(t, err, &noBranch)
}

func TestSelectEdges_EventBasedGatewayBehavesLikeXOR(t *testing.T) {
	t.Parallel()
	e := newTestExecutor()

	g := gatewayGraph(t, domain.GatewayType(""), []*graph.Edge{
		{ID: "e1", Source: "gw", Target: "a", Condition: "flag == true", Priority: 1},
		{ID: "e2", Source: "gw", Target: "b", Condition: "flag == true", Priority: 2},
	})
	g.GetNode("gw").Type = domain.NodeEventBasedGateway

	edges, err := e.selectEdges(context.Background(), "exec-1", g.GetNode("gw"), g, domain.Vars{"flag": true})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1", edges[0].ID)
}

func edgeIDs(edges []*graph.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID
	}
	return out
}
