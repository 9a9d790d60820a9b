// Package executor drives one node's attempt to completion and selects
// the outgoing edge(s) to recurse on. It never loops
// over an entire workflow itself — that loop, lease handling, and
// terminal-state transitions belong to internal/engine.
package executor

import (
	"fmt"
	"time"

	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/uptrace/bun"

	"github.com/wfcore/engine/internal/condition"
	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/observability"
	"github.com/wfcore/engine/internal/statemanager"
	"github.com/wfcore/engine/internal/tracing"
	"github.com/wfcore/engine/internal/txn"
	"github.com/wfcore/engine/internal/wferrors"
)

// Result is what ExecuteNode reports back to the caller (internal/engine)
// after running one node and, if execution continues, its selected
// successors.
type Result struct {
	Vars domain.Vars
	Terminated bool // reached an END node with Terminate=true, or a dead end
	Paused bool // hit a USER_TASK; instance is now PAUSED
	LastNodeID string
}

// Executor runs individual node attempts against a graph, dispatching to
// the registered Handler set and performing edge selection.
type Executor struct {
	states statemanager.StateManager
	events eventstore.EventStore
	handlers []Handler
	log *logger.Logger
	metrics *observability.Metrics
	tracer trace.Tracer
	txnManager *txn.Manager
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics attaches the instrument set used to record OTel
// metrics. Nil-safe:
// an Executor built without this option simply records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer attaches the tracer used to emit per-node spans. An
// Executor built without this option uses a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithTxnManager attaches the transaction manager that nodes marked
// Transactional run their handler inside. Without this option, a
// Transactional node runs its handler directly, same as any other node.
func WithTxnManager(m *txn.Manager) Option {
	return func(e *Executor) { e.txnManager = m }
}

// New builds an Executor. handlers are tried in order; the first whose
// Supports(node) is true owns the node (the single registered
// handler).
func New(states statemanager.StateManager, events eventstore.EventStore, handlers []Handler, log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{states: states, events: events, handlers: handlers, log: log}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = (*tracing.Provider)(nil).Tracer()
	}
	return e
}

func (e *Executor) resolve(node *graph.Node) (Handler, bool) {
	for _, h := range e.handlers {
		if h.Supports(node) {
			return h, true
		}
	}
	return nil, false
}

// ExecuteNode runs node (short-circuiting if already completed), then
// recurses on its selected successor(s), returning once the walk reaches
// a terminal END, a USER_TASK pause, or a dead end with no outgoing edges.
func (e *Executor) ExecuteNode(ctx context.Context, executionID string, g *graph.WorkflowGraph, node *graph.Node, vars domain.Vars) (*Result, error) {
	vars, paused, err := e.runNode(ctx, executionID, node, vars)
	if err != nil {
		return nil, err
	}
	if paused {
		return &Result{Vars: vars, Paused: true, LastNodeID: node.ID}, nil
	}
	if node.Type == domain.NodeEndEvent && node.Terminate {
		return &Result{Vars: vars, Terminated: true, LastNodeID: node.ID}, nil
	}

	edges, err := e.selectEdges(ctx, executionID, node, g, vars)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return &Result{Vars: vars, Terminated: true, LastNodeID: node.ID}, nil
	}

	for _, edge := range edges {
		evt := &domain.ExecutionEvent{
			ExecutionID: executionID,
			EventType: domain.EventGatewayBranchTaken,
			NodeID: node.ID,
			NodeType: node.Type,
			EdgeTaken: edge.ID,
			Status: "COMPLETED",
			Timestamp: now(),
			VariablesSnapshot: vars,
		}
		if _, err := eventstore.AppendNext(ctx, e.events, executionID, evt); err != nil {
			return nil, err
		}

		target := g.GetNode(edge.Target)
		if target == nil {
			return nil, fmt.Errorf("edge %q targets unknown node %q", edge.ID, edge.Target)
		}

		result, err := e.ExecuteNode(ctx, executionID, g, target, vars)
		if err != nil {
			return nil, err
		}
		vars = result.Vars
		if result.Terminated || result.Paused {
			return result, nil
		}
	}

	return &Result{Vars: vars, LastNodeID: node.ID}, nil
}

// runNode handles the idempotency short-circuit, records the attempt
// start, dispatches to the resolved handler, and records completion.
func (e *Executor) runNode(ctx context.Context, executionID string, node *graph.Node, vars domain.Vars) (domain.Vars, bool, error) {
	executed, err := e.states.HasNodeBeenExecuted(ctx, executionID, node.ID)
	if err != nil {
		return nil, false, fmt.Errorf("check node %q executed: %w", node.ID, err)
	}
	if executed {
		inst, err := e.states.GetInstance(ctx, executionID)
		if err != nil {
			return nil, false, fmt.Errorf("load instance for idempotency skip: %w", err)
		}
		e.log.WithContext(ctx).Debug("skipping already-completed node", "node_id", node.ID)
		return inst.Variables, false, nil
	}

	nodeExec, err := e.states.RecordNodeStart(ctx, executionID, node.ID, node.Type, 1, vars)
	if err != nil {
		return nil, false, fmt.Errorf("record node %q start: %w", node.ID, err)
	}

	handler, ok := e.resolve(node)
	if !ok {
		return nil, false, fmt.Errorf("no handler registered for node type %q", node.Type)
	}

	spanCtx, span := tracing.StartNodeSpan(ctx, e.tracer, executionID, node.ID, string(node.Type))
	defer span.End()

	hctx := &HandlerContext{ExecutionID: executionID, Node: node, Input: vars}
	started := time.Now()
	output, err := e.dispatch(spanCtx, node, hctx, handler)
	durationMs := time.Since(started).Milliseconds()
	if err != nil {
		tracing.RecordError(span, err)
		_ = e.states.RecordNodeFailure(ctx, nodeExec.ID, err.Error(), durationMs)
		_, _ = eventstore.AppendNext(ctx, e.events, executionID, &domain.ExecutionEvent{
			ExecutionID: executionID,
			EventType: domain.EventNodeFailed,
			NodeID: node.ID,
			NodeType: node.Type,
			Status: "FAILED",
			Timestamp: now(),
			ErrorSnapshot: err.Error(),
		})
		return nil, false, &wferrors.NodeExecutionFailure{NodeID: node.ID, Cause: err}
	}

	if err := e.states.RecordNodeComplete(ctx, nodeExec.ID, output, durationMs); err != nil {
		return nil, false, fmt.Errorf("record node %q complete: %w", node.ID, err)
	}
	e.metrics.RecordNodeDuration(ctx, executionID, node.ID, durationMs)
	durationCopy := durationMs
	if _, err := eventstore.AppendNext(ctx, e.events, executionID, &domain.ExecutionEvent{
		ExecutionID: executionID,
		EventType: domain.EventNodeCompleted,
		NodeID: node.ID,
		NodeType: node.Type,
		Status: "COMPLETED",
		Timestamp: now(),
		DurationMs: &durationCopy,
		OutputSnapshot: output,
		VariablesSnapshot: output,
	}); err != nil {
		return nil, false, err
	}

	return output, hctx.Pause != nil, nil
}

// dispatch runs handler.Handle directly, unless node.Transactional and a
// txn.Manager is attached, in which case the handler runs inside the
// manager's ExecuteInTransaction boundary. The handler is not handed the
// transaction's bun.IDB, and the node-execution records are written
// before and after dispatch, outside that transaction.
func (e *Executor) dispatch(ctx context.Context, node *graph.Node, hctx *HandlerContext, handler Handler) (domain.Vars, error) {
	if !node.Transactional || e.txnManager == nil {
		return handler.Handle(ctx, hctx)
	}

	result, _, err := e.txnManager.ExecuteInTransaction(ctx, txn.TxParams{
		ExecutionID: hctx.ExecutionID,
		NodeID: node.ID,
	}, func(ctx context.Context, tx bun.IDB) (any, error) {
		return handler.Handle(ctx, hctx)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(domain.Vars), nil
}

// selectEdges chooses which outgoing edge(s) to take next.
func (e *Executor) selectEdges(ctx context.Context, executionID string, node *graph.Node, g *graph.WorkflowGraph, vars domain.Vars) ([]*graph.Edge, error) {
	outgoing := g.GetOutgoingEdges(node.ID)
	if len(outgoing) == 0 {
		return nil, nil
	}
	if len(outgoing) == 1 {
		return outgoing, nil
	}

	if !node.Type.IsGateway() {
		e.log.Warn("non-gateway node has multiple outgoing edges, taking first", "node_id", node.ID)
		return outgoing[:1], nil
	}
	e.metrics.RecordGatewayEvaluated(ctx, executionID, node.ID)

	switch node.GatewayType {
	case domain.GatewayAND:
		return outgoing, nil

	case domain.GatewayOR:
		var taken []*graph.Edge
		var fallback *graph.Edge
		for _, edge := range outgoing {
			if edge.PathType == domain.PathDefault || edge.Condition == "" {
				if fallback == nil {
					fallback = edge
				}
				continue
			}
			if condition.Evaluate(edge.Condition, vars) {
				taken = append(taken, edge)
			}
		}
		if len(taken) == 0 {
			if fallback != nil {
				return []*graph.Edge{fallback}, nil
			}
			return nil, &wferrors.NoBranchSatisfied{NodeID: node.ID}
		}
		return taken, nil

	default: // XOR, and EVENT_BASED_GATEWAY treated the same way
		var fallback *graph.Edge
		for _, edge := range outgoing {
			if edge.PathType == domain.PathDefault || edge.Condition == "" {
				if fallback == nil {
					fallback = edge
				}
				continue
			}
			if condition.Evaluate(edge.Condition, vars) {
				return []*graph.Edge{edge}, nil
			}
		}
		if fallback != nil {
			return []*graph.Edge{fallback}, nil
		}
		return nil, &wferrors.NoBranchSatisfied{NodeID: node.ID}
	}
}

func now() time.Time { return time.Now().UTC() }
