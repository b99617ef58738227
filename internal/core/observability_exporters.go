package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq atomic.Uint64

// OperationStats aggregates one operation name.
type OperationStats struct {
	Calls   int64   `json:"calls"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
	Shifted int64   `json:"widgets_shifted"`
}

// ExpvarMetricsSnapshot is the document published under the recorder's name.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationStats `json:"operations"`
	// LongestShift is the largest number of widgets moved by a single write.
	LongestShift int       `json:"longest_shift"`
	LastWriteAt  time.Time `json:"last_write_at,omitzero"`
}

// ExpvarMetricsRecorder keeps per-operation counters and shift statistics and
// publishes them on /debug/vars.
type ExpvarMetricsRecorder struct {
	name string

	mu           sync.Mutex
	ops          map[string]OperationStats
	longestShift int
	lastWrite    time.Time
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated widgetcore_ops_N name when name is empty. expvar panics on
// duplicate names, so callers passing a name must use it once per process.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("widgetcore_ops_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ExpvarMetricsSnapshot{
		Operations:   maps.Clone(r.ops),
		LongestShift: r.longestShift,
		LastWriteAt:  r.lastWrite,
	}
}

func isWrite(op string) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete, OpRestore:
		return true
	}
	return false
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, out Outcome) {
	if out.Operation == "" {
		return
	}
	ms := float64(out.Duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.ops[out.Operation]
	st.Calls++
	st.TotalMS += ms
	st.MaxMS = max(st.MaxMS, ms)
	if !out.OK() {
		st.Errors++
		r.ops[out.Operation] = st
		return
	}
	st.Shifted += int64(out.Shifted)
	r.ops[out.Operation] = st
	r.longestShift = max(r.longestShift, out.Shifted)
	if isWrite(out.Operation) {
		r.lastWrite = time.Now().UTC()
	}
}

// SpanRecord is one line of the JSON trace log.
type SpanRecord struct {
	Op        string    `json:"op"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	WidgetID  int64     `json:"widget_id,omitempty"`
	Shifted   int       `json:"shifted,omitempty"`
	Widgets   int       `json:"widgets,omitempty"`
	Start     time.Time `json:"start"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

// JSONTracer writes a SpanRecord per finished operation as a JSON line and
// keeps the records in memory.
type JSONTracer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	records []SpanRecord
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains records.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Records returns the spans finished so far.
func (t *JSONTracer) Records() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.records...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, jsonSpan{tracer: t, start: time.Now().UTC()}
}

type jsonSpan struct {
	tracer *JSONTracer
	start  time.Time
}

func (s jsonSpan) End(out Outcome) {
	rec := SpanRecord{
		Op:        out.Operation,
		OK:        out.OK(),
		RequestID: out.RequestID,
		WidgetID:  out.WidgetID,
		Shifted:   out.Shifted,
		Widgets:   out.Widgets,
		Start:     s.start,
		ElapsedMS: float64(out.Duration) / float64(time.Millisecond),
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.records = append(s.tracer.records, rec)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(rec)
	}
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// PrometheusMetricsRecorder exports operation latency, outcome counters and
// the number of widgets shifted by writes.
type PrometheusMetricsRecorder struct {
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
	shifted  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the widgetcore collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "widgetcore",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Latency of widget service operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widgetcore",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Widget service operations by outcome.",
		}, []string{"operation", "status"}),
		shifted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "widgetcore",
			Name:      "widgets_shifted_total",
			Help:      "Widgets moved up one index to make room for a create or update.",
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.duration, r.results, r.shifted} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register widgetcore metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, out Outcome) {
	r.duration.WithLabelValues(out.Operation).Observe(out.Duration.Seconds())
	r.results.WithLabelValues(out.Operation, statusLabel(out.OK())).Inc()
	if out.OK() && out.Shifted > 0 {
		r.shifted.WithLabelValues(out.Operation).Add(float64(out.Shifted))
	}
}

// MultiMetricsRecorder fans each outcome out to every recorder in order.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, out Outcome) {
	for _, rec := range m {
		rec.Observe(ctx, out)
	}
}
