package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	t.Parallel()

	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestProvider_Tracer_NilProvider(t *testing.T) {
	t.Parallel()

	var p *Provider
	assert.NotNil(t, p.Tracer())
}

func TestProvider_Shutdown_NilProvider(t *testing.T) {
	t.Parallel()

	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStartNodeSpan(t *testing.T) {
	t.Parallel()

	var p *Provider
	ctx, span := StartNodeSpan(context.Background(), p.Tracer(), "exec-1", "node-1", "SERVICE_TASK")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	assert.False(t, span.IsRecording())
}

func TestStartTransactionSpan(t *testing.T) {
	t.Parallel()

	var p *Provider
	ctx, span := StartTransactionSpan(context.Background(), p.Tracer(), "exec-1", "node-1")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestRecordError_NilSpanAndError(t *testing.T) {
	t.Parallel()

	// Should not panic with either argument nil.
	RecordError(nil, errors.New("boom"))

	var p *Provider
	_, span := StartNodeSpan(context.Background(), p.Tracer(), "exec-1", "node-1", "TASK")
	defer span.End()
	RecordError(span, nil)
}

func TestRecordError_WithSpan(t *testing.T) {
	t.Parallel()

	var p *Provider
	_, span := StartNodeSpan(context.Background(), p.Tracer(), "exec-1", "node-1", "TASK")
	defer span.End()

	RecordError(span, errors.New("boom"))
}
