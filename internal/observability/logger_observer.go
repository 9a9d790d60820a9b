package observability

import (
	"context"
	"fmt"

	"github.com/wfcore/engine/internal/logger"
)

// LoggerObserver writes execution events to structured logs.
type LoggerObserver struct {
	name string
	log *logger.Logger
	filter EventFilter
}

// LoggerObserverOption configures a LoggerObserver.
type LoggerObserverOption func(*LoggerObserver)

// WithLoggerInstance sets the logger instance.
func WithLoggerInstance(l *logger.Logger) LoggerObserverOption {
	return func(o *LoggerObserver) { o.log = l }
}

// WithLoggerFilter sets the event filter.
func WithLoggerFilter(filter EventFilter) LoggerObserverOption {
	return func(o *LoggerObserver) { o.filter = filter }
}

// NewLoggerObserver builds a LoggerObserver.
func NewLoggerObserver(opts ...LoggerObserverOption) *LoggerObserver {
	obs := &LoggerObserver{name: "logger"}
	for _, opt := range opts {
		opt(obs)
	}
	return obs
}

func (o *LoggerObserver) Name() string { return o.name }
func (o *LoggerObserver) Filter() EventFilter { return o.filter }

func (o *LoggerObserver) OnEvent(ctx context.Context, event Event) error {
	if o.log == nil {
		return nil
	}

	fields := []any{
		"event_type", string(event.Type),
		"execution_id", event.ExecutionID,
		"workflow_id", event.WorkflowID,
		"status", event.Status,
	}
	if event.NodeID != nil {
		fields = append(fields, "node_id", *event.NodeID)
	}
	if event.NodeType != nil {
		fields = append(fields, "node_type", *event.NodeType)
	}
	if event.DurationMs != nil {
		fields = append(fields, "duration_ms", *event.DurationMs)
	}

	msg := fmt.Sprintf("workflow event: %s", event.Type)
	if event.Error != nil {
		fields = append(fields, "error", event.Error.Error())
		o.log.ErrorContext(ctx, msg, fields...)
		return nil
	}
	o.log.InfoContext(ctx, msg, fields...)
	return nil
}
