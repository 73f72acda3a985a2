package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "epoc_service_metrics_") {
		t.Fatalf("unexpected name %s", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "save", true, 2*time.Millisecond)
	rec.Observe(ctx, "save", false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	if got := rec.DurationMS("save"); got != 5 {
		t.Fatalf("unexpected duration %v", got)
	}
	if rec.Count("save", true) != 1 || rec.Count("save", false) != 1 {
		t.Fatalf("unexpected counts %d/%d", rec.Count("save", true), rec.Count("save", false))
	}
	if rec.Count("", true) != 0 || rec.DurationMS("") != 0 {
		t.Fatalf("expected empty operation ignored")
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), `"save.success": 1`) {
		t.Fatalf("expected expvar publication, got %v", published)
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "export")
	span.End(errors.New("bucket gone"))
	_, span = tracer.Start(context.Background(), "import")
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "error" || entries[0].Error != "bucket gone" || entries[1].Status != "success" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", buf.String())
	}
	var entry JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil || entry.Operation != "import" {
		t.Fatalf("unexpected line %q (%v)", lines[1], err)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "save", true, 10*time.Millisecond)
	rec.Observe(ctx, "save", true, 20*time.Millisecond)
	rec.Observe(ctx, "save", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.ops.WithLabelValues("save", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.ops.WithLabelValues("save", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestServiceFeedsPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc := NewService(NewMemoryStorage(), WithMetrics(rec))
	if _, err := svc.Universes(context.Background()); err != nil {
		t.Fatalf("universes: %v", err)
	}
	if got := testutil.ToFloat64(rec.ops.WithLabelValues("universes", "success")); got != 1 {
		t.Fatalf("expected one observation, got %v", got)
	}
}
