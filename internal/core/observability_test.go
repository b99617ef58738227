package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"widgetcore/pkg/domain"
)

type captureMetrics struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *captureMetrics) Observe(_ context.Context, out Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, out)
}

func (c *captureMetrics) labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.outcomes))
	for i, o := range c.outcomes {
		out[i] = o.Operation + ":" + statusLabel(o.OK())
	}
	return out
}

func TestServiceReportsEveryOperation(t *testing.T) {
	metrics := &captureMetrics{}
	tracer := NewJSONTracer(nil)
	svc := NewInMemoryService(WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	w := mustCreate(t, svc, nil)
	if _, err := svc.Update(ctx, w.ID, WidgetDraft{Width: 2, Height: 2, Index: intPtr(1)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.Get(ctx, 99); err == nil {
		t.Fatalf("expected not found")
	}
	if _, err := svc.List(ctx, ListRequest{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := svc.Delete(ctx, w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []string{
		OpCreate + ":success",
		OpUpdate + ":success",
		OpGet + ":error",
		OpList + ":success",
		OpDelete + ":success",
	}
	got := metrics.labels()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if metrics.outcomes[0].WidgetID != w.ID || metrics.outcomes[2].WidgetID != 99 {
		t.Fatalf("expected widget ids on outcomes, got %+v", metrics.outcomes)
	}
	if !domain.IsNotFound(metrics.outcomes[2].Err) {
		t.Fatalf("expected not found error on get outcome, got %v", metrics.outcomes[2].Err)
	}
	if metrics.outcomes[3].Widgets != 1 {
		t.Fatalf("expected list outcome to count one widget, got %d", metrics.outcomes[3].Widgets)
	}

	spans := tracer.Records()
	if len(spans) != len(want) {
		t.Fatalf("expected %d spans, got %d", len(want), len(spans))
	}
	if spans[2].Op != OpGet || spans[2].OK || spans[2].Error == "" {
		t.Fatalf("unexpected get span %+v", spans[2])
	}
}

func TestOutcomesCarryShiftCountAndRequestID(t *testing.T) {
	metrics := &captureMetrics{}
	svc := NewInMemoryService(WithMetricsRecorder(metrics))
	for range 3 {
		mustCreate(t, svc, nil)
	}
	ctx := ContextWithRequestID(context.Background(), "req-42")
	if _, err := svc.Create(ctx, WidgetDraft{Width: 1, Height: 1, Index: intPtr(1)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	last := metrics.outcomes[len(metrics.outcomes)-1]
	if last.Shifted != 3 || last.RequestID != "req-42" || last.WidgetID != 4 {
		t.Fatalf("unexpected outcome %+v", last)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty request id on bare context")
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	svc := NewInMemoryService(WithMetricsRecorder(rec))
	mustCreate(t, svc, nil)
	mustCreate(t, svc, nil)
	mustCreate(t, svc, intPtr(1))
	_ = svc.Delete(context.Background(), 42)

	snap := rec.Snapshot()
	create := snap.Operations[OpCreate]
	if create.Calls != 3 || create.Errors != 0 || create.Shifted != 2 {
		t.Fatalf("unexpected create stats %+v", create)
	}
	if create.MaxMS < 0 || create.TotalMS < create.MaxMS {
		t.Fatalf("inconsistent latency stats %+v", create)
	}
	if del := snap.Operations[OpDelete]; del.Calls != 1 || del.Errors != 1 {
		t.Fatalf("expected one failed delete, got %+v", del)
	}
	if snap.LongestShift != 2 || snap.LastWriteAt.IsZero() {
		t.Fatalf("unexpected shift summary %+v", snap)
	}

	if expvar.Get(rec.Name()) == nil {
		t.Fatalf("expected recorder published as %s", rec.Name())
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(expvar.Get(rec.Name()).String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded.Operations[OpCreate].Calls != 3 || decoded.LongestShift != 2 {
		t.Fatalf("unexpected published stats %+v", decoded)
	}
}

func TestExpvarMetricsRecorderIgnoresShiftOfFailedWrites(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), Outcome{Operation: OpUpdate, Err: errors.New("disk full"), Shifted: 5, Duration: time.Millisecond})
	rec.Observe(context.Background(), Outcome{})
	snap := rec.Snapshot()
	if st := snap.Operations[OpUpdate]; st.Errors != 1 || st.Shifted != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if len(snap.Operations) != 1 || snap.LongestShift != 0 || !snap.LastWriteAt.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := NewInMemoryService(WithTracer(tracer))
	created, err := svc.Create(ContextWithRequestID(context.Background(), "abc"), WidgetDraft{Width: 1, Height: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var rec SpanRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode span line %q: %v", buf.String(), err)
	}
	if rec.Op != OpCreate || !rec.OK || rec.WidgetID != created.ID || rec.RequestID != "abc" || rec.Start.IsZero() {
		t.Fatalf("unexpected span %+v", rec)
	}
	if bytes.Contains(buf.Bytes(), []byte(`"shifted"`)) {
		t.Fatalf("expected zero shift omitted, got %s", buf.String())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	capture := &captureMetrics{}
	svc := NewInMemoryService(WithMetricsRecorder(MultiMetricsRecorder{rec, capture}))
	mustCreate(t, svc, nil)
	mustCreate(t, svc, intPtr(1))
	_, _ = svc.Get(context.Background(), 77)

	if got := testutil.ToFloat64(rec.results.WithLabelValues(OpCreate, "success")); got != 2 {
		t.Fatalf("expected two creates, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues(OpGet, "error")); got != 1 {
		t.Fatalf("expected one failed get, got %v", got)
	}
	if got := testutil.ToFloat64(rec.shifted.WithLabelValues(OpCreate)); got != 1 {
		t.Fatalf("expected one shifted widget, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 2 {
		t.Fatalf("expected two latency series, got %d", n)
	}
	if len(capture.labels()) != 3 {
		t.Fatalf("expected fan-out to second recorder, got %v", capture.labels())
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
