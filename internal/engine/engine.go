// Package engine is the workflow executor: the loop
// that acquires an instance's lease, drives the node executor from the
// start (or resume) node, and transitions the instance to its terminal
// state. It also owns the lease-reaper background job.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/executor"
	"github.com/wfcore/engine/internal/graph"
	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/observability"
	"github.com/wfcore/engine/internal/replay"
	"github.com/wfcore/engine/internal/statemanager"
	"github.com/wfcore/engine/internal/tracing"
	"github.com/wfcore/engine/internal/wferrors"
)

// Engine drives whole-workflow execution on top of internal/executor's
// per-node stepping.
type Engine struct {
	states statemanager.StateManager
	exec *executor.Executor
	replay *replay.Engine
	log *logger.Logger
	leaseTTL time.Duration
	owner string
	metrics *observability.Metrics
	tracer trace.Tracer

	cron *cron.Cron
}

// Option configures an Engine.
type Option func(*Engine)

// WithLeaseTTL overrides the default 300s lease TTL.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.leaseTTL = ttl }
}

// WithOwner sets the identity this replica uses when acquiring leases.
func WithOwner(owner string) Option {
	return func(e *Engine) { e.owner = owner }
}

// WithMetrics attaches the instrument set used to record OTel
// metrics. Nil-safe:
// an Engine built without this option simply records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer attaches the tracer used to emit the workflow-level span
// each run wraps its node executions in. An Engine built without this
// option uses a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New builds an Engine.
func New(states statemanager.StateManager, exec *executor.Executor, replayEngine *replay.Engine, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		states: states,
		exec: exec,
		replay: replayEngine,
		log: log,
		leaseTTL: 300 * time.Second,
		owner: "engine",
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = (*tracing.Provider)(nil).Tracer()
	}
	return e
}

// ExecuteSync creates an instance, runs it to completion on the caller's
// goroutine, and returns the terminal instance.
func (e *Engine) ExecuteSync(ctx context.Context, g *graph.WorkflowGraph, tenant domain.Tenant, vars domain.Vars) (*domain.WorkflowInstance, error) {
	inst, err := e.states.CreateInstance(ctx, g.WorkflowID, g.Version, tenant, vars)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	e.metrics.RecordWorkflowStarted(ctx, inst.ExecutionID)

	if err := e.run(ctx, g, inst.ExecutionID, g.GetNode(g.StartEvent), vars); err != nil {
		return nil, err
	}
	return e.states.GetInstance(ctx, inst.ExecutionID)
}

// ExecuteAsync creates an instance, returns its execution id immediately,
// and runs the loop on a background goroutine.
func (e *Engine) ExecuteAsync(ctx context.Context, g *graph.WorkflowGraph, tenant domain.Tenant, vars domain.Vars) (string, error) {
	inst, err := e.states.CreateInstance(ctx, g.WorkflowID, g.Version, tenant, vars)
	if err != nil {
		return "", fmt.Errorf("create instance: %w", err)
	}
	e.metrics.RecordWorkflowStarted(ctx, inst.ExecutionID)

	go func() {
		bgCtx := context.WithoutCancel(ctx)
		if err := e.run(bgCtx, g, inst.ExecutionID, g.GetNode(g.StartEvent), vars); err != nil {
			e.log.WithContext(bgCtx).Error("async execution failed", "execution_id", inst.ExecutionID, "error", err)
		}
	}()

	return inst.ExecutionID, nil
}

// ResumeExecution continues a paused or crash-interrupted instance from
// its current node (or the start node if none is recorded), relying on
// the node executor's idempotency short-circuit to skip already-completed
// nodes.
func (e *Engine) ResumeExecution(ctx context.Context, g *graph.WorkflowGraph, executionID string) (*domain.WorkflowInstance, error) {
	point, err := e.replay.GetResumePoint(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("compute resume point: %w", err)
	}

	resumeNode := g.GetNode(point.ResumeNodeID)
	if resumeNode == nil {
		resumeNode = g.GetNode(g.StartEvent)
	}

	if err := e.run(ctx, g, executionID, resumeNode, point.Variables); err != nil {
		return nil, err
	}
	return e.states.GetInstance(ctx, executionID)
}

// run implements the engine's loop: acquire lease, start/resume,
// execute, transition to the terminal state, always release the lease.
func (e *Engine) run(ctx context.Context, g *graph.WorkflowGraph, executionID string, startNode *graph.Node, vars domain.Vars) error {
	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("execution_id", executionID),
		attribute.String("workflow_id", g.WorkflowID),
	))
	defer span.End()

	acquired, err := e.states.AcquireLease(ctx, executionID, e.owner, e.leaseTTL)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		e.metrics.RecordLockContention(ctx, executionID)
		e.log.WithContext(ctx).Info("lease held by another owner, skipping", "execution_id", executionID)
		return nil
	}
	e.metrics.RecordLockAcquired(ctx, executionID)
	defer func() {
		if err := e.states.ReleaseLease(ctx, executionID, e.owner); err != nil {
			e.log.WithContext(ctx).Error("release lease", "execution_id", executionID, "error", err)
		}
	}()

	if err := e.states.StartExecution(ctx, executionID); err != nil {
		return fmt.Errorf("start execution: %w", err)
	}

	result, err := e.exec.ExecuteNode(ctx, executionID, g, startNode, vars)
	if err != nil {
		tracing.RecordError(span, err)
		var nodeErr *wferrors.NodeExecutionFailure
		if asNodeExecutionFailure(err, &nodeErr) {
			if ferr := e.states.FailWorkflow(ctx, executionID, nodeErr.NodeID, nodeErr.Error()); ferr != nil {
				return fmt.Errorf("fail workflow after node error: %w", ferr)
			}
			e.metrics.RecordWorkflowFailed(ctx, executionID)
			return nil
		}
		return err
	}

	if result.Paused {
		return nil // instance already PAUSED by the USER_TASK handler
	}

	if err := e.states.CompleteWorkflow(ctx, executionID); err != nil {
		return fmt.Errorf("complete workflow: %w", err)
	}
	e.metrics.RecordWorkflowCompleted(ctx, executionID)
	return nil
}

func asNodeExecutionFailure(err error, target **wferrors.NodeExecutionFailure) bool {
	if nf, ok := err.(*wferrors.NodeExecutionFailure); ok {
		*target = nf
		return true
	}
	return false
}

// StartLeaseReaper schedules a cron job that reclaims TTL-expired leases
// system-wide, independent of any one replica's own execution path.
func (e *Engine) StartLeaseReaper(spec string) error {
	e.cron = cron.New()
	_, err := e.cron.AddFunc(spec, func() {
		ctx := context.Background()
		n, err := e.states.ReapExpiredLeases(ctx, e.leaseTTL)
		if err != nil {
			e.log.Error("lease reaper failed", "error", err)
			return
		}
		if n > 0 {
			e.log.Info("reaped expired leases", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule lease reaper: %w", err)
	}
	e.cron.Start()
	return nil
}

// StopLeaseReaper stops the background cron job, if running.
func (e *Engine) StopLeaseReaper() {
	if e.cron != nil {
		e.cron.Stop()
	}
}
