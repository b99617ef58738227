package core

import (
	"context"
	"time"
)

// Operation names reported to tracers and metrics recorders.
const (
	OpCreate  = "widget.create"
	OpUpdate  = "widget.update"
	OpDelete  = "widget.delete"
	OpGet     = "widget.get"
	OpList    = "widget.list"
	OpBackup  = "snapshot.backup"
	OpRestore = "snapshot.restore"
)

// Outcome describes one finished service operation.
type Outcome struct {
	Operation string
	Err       error
	Duration  time.Duration
	// WidgetID is the widget the operation touched, zero for listings and snapshots.
	WidgetID int64
	// Shifted counts the widgets pushed up one index to make room.
	Shifted int
	// Widgets is the number of widgets returned, written or restored.
	Widgets   int
	RequestID string
}

// OK reports whether the operation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// MetricsRecorder receives every finished service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, out Outcome)
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's outcome.
type TraceSpan interface {
	End(out Outcome)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, Outcome) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(Outcome) {}

type requestIDKey struct{}

// ContextWithRequestID tags ctx so that spans and metrics of the operations
// run under it carry the caller's correlation id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// operation accumulates what a service call did until it finishes.
type operation struct {
	ctx     context.Context
	span    TraceSpan
	metrics MetricsRecorder
	started time.Time
	out     Outcome
}

func (s *Service) observe(ctx context.Context, name string) (context.Context, *operation) {
	op := &operation{
		metrics: s.metrics,
		started: time.Now(),
		out:     Outcome{Operation: name, RequestID: RequestIDFromContext(ctx)},
	}
	ctx, op.span = s.tracer.Start(ctx, name)
	op.ctx = ctx
	return ctx, op
}

func (op *operation) touched(id int64, shifted int) {
	op.out.WidgetID = id
	op.out.Shifted = shifted
}

func (op *operation) counted(n int) { op.out.Widgets = n }

func (op *operation) finish(err error) {
	op.out.Err = err
	op.out.Duration = time.Since(op.started)
	op.span.End(op.out)
	op.metrics.Observe(op.ctx, op.out)
}
