package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wfcore/engine/internal/logger"
)

// Metrics wraps the OTel meter instruments named in: counters
// for workflow lifecycle, an active-instance gauge, a node-execution
// duration histogram, and the gateway/lock/retry counters. Every method
// reads the tenant id off ctx (see internal/logger's ContextWithTenant)
// for its tenant_id label; the execution id, and the node id where one is
// recorded, are passed as parameters.
type Metrics struct {
	workflowStarted metric.Int64Counter
	workflowCompleted metric.Int64Counter
	workflowFailed metric.Int64Counter
	workflowActive metric.Int64UpDownCounter
	nodeDuration metric.Float64Histogram
	gatewayEvaluated metric.Int64Counter
	lockAcquired metric.Int64Counter
	lockContention metric.Int64Counter
	retryTotal metric.Int64Counter
}

// NewMetrics registers the named instruments against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.workflowStarted, err = meter.Int64Counter("workflow.started.total"); err != nil {
		return nil, err
	}
	if m.workflowCompleted, err = meter.Int64Counter("workflow.completed.total"); err != nil {
		return nil, err
	}
	if m.workflowFailed, err = meter.Int64Counter("workflow.failed.total"); err != nil {
		return nil, err
	}
	if m.workflowActive, err = meter.Int64UpDownCounter("workflow.active.count"); err != nil {
		return nil, err
	}
	if m.nodeDuration, err = meter.Float64Histogram("workflow.node.execution.duration"); err != nil {
		return nil, err
	}
	if m.gatewayEvaluated, err = meter.Int64Counter("workflow.gateway.evaluated.total"); err != nil {
		return nil, err
	}
	if m.lockAcquired, err = meter.Int64Counter("workflow.lock.acquired.total"); err != nil {
		return nil, err
	}
	if m.lockContention, err = meter.Int64Counter("workflow.lock.contention.total"); err != nil {
		return nil, err
	}
	if m.retryTotal, err = meter.Int64Counter("workflow.retry.total"); err != nil {
		return nil, err
	}

	return m, nil
}

func labels(ctx context.Context, executionID string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("tenant_id", tenantLabel(ctx)),
		attribute.String("execution_id", executionID))
}

func tenantLabel(ctx context.Context) string {
	if tenant := logger.TenantFromContext(ctx); tenant != "" {
		return tenant
	}
	return "default"
}

// RecordWorkflowStarted increments workflow.started.total and
// workflow.active.count for a newly created instance.
func (m *Metrics) RecordWorkflowStarted(ctx context.Context, executionID string) {
	if m == nil {
		return
	}
	m.workflowStarted.Add(ctx, 1, labels(ctx, executionID))
	m.workflowActive.Add(ctx, 1, labels(ctx, executionID))
}

// RecordWorkflowCompleted increments workflow.completed.total and
// decrements workflow.active.count.
func (m *Metrics) RecordWorkflowCompleted(ctx context.Context, executionID string) {
	if m == nil {
		return
	}
	m.workflowCompleted.Add(ctx, 1, labels(ctx, executionID))
	m.workflowActive.Add(ctx, -1, labels(ctx, executionID))
}

// RecordWorkflowFailed increments workflow.failed.total and decrements
// workflow.active.count.
func (m *Metrics) RecordWorkflowFailed(ctx context.Context, executionID string) {
	if m == nil {
		return
	}
	m.workflowFailed.Add(ctx, 1, labels(ctx, executionID))
	m.workflowActive.Add(ctx, -1, labels(ctx, executionID))
}

// RecordNodeDuration observes one node attempt's wall-clock duration
// (milliseconds) against workflow.node.execution.duration.
func (m *Metrics) RecordNodeDuration(ctx context.Context, executionID, nodeID string, durationMs int64) {
	if m == nil {
		return
	}
	m.nodeDuration.Record(ctx, float64(durationMs), metric.WithAttributes(
		attribute.String("tenant_id", tenantLabel(ctx)),
		attribute.String("execution_id", executionID),
		attribute.String("node_id", nodeID)))
}

// RecordGatewayEvaluated increments workflow.gateway.evaluated.total for
// one gateway node's edge-selection pass.
func (m *Metrics) RecordGatewayEvaluated(ctx context.Context, executionID, nodeID string) {
	if m == nil {
		return
	}
	m.gatewayEvaluated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant_id", tenantLabel(ctx)),
		attribute.String("execution_id", executionID),
		attribute.String("node_id", nodeID)))
}

// RecordLockAcquired increments workflow.lock.acquired.total for a
// successful lease acquisition.
func (m *Metrics) RecordLockAcquired(ctx context.Context, executionID string) {
	if m == nil {
		return
	}
	m.lockAcquired.Add(ctx, 1, labels(ctx, executionID))
}

// RecordLockContention increments workflow.lock.contention.total when a
// lease is already held by another owner.
func (m *Metrics) RecordLockContention(ctx context.Context, executionID string) {
	if m == nil {
		return
	}
	m.lockContention.Add(ctx, 1, labels(ctx, executionID))
}

// RecordRetry increments workflow.retry.total for a SERVICE_TASK retry
// attempt.
func (m *Metrics) RecordRetry(ctx context.Context, executionID, nodeID string) {
	if m == nil {
		return
	}
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant_id", tenantLabel(ctx)),
		attribute.String("execution_id", executionID),
		attribute.String("node_id", nodeID)))
}
