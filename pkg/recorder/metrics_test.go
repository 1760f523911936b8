// ABOUTME: Unit tests for recorder telemetry metrics with a capturing telemetry sink
// ABOUTME: Exercises a real Recorder against temp files and checks the emitted metric names and values

package recorder

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevoDB/workstats/pkg/config"
	"github.com/KevoDB/workstats/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// captureTelemetry records everything it is handed so tests can inspect it.
type captureTelemetry struct {
	histograms []histogramRecord
	counters   []counterRecord
	spans      []string
}

type histogramRecord struct {
	name  string
	value float64
	attrs []attribute.KeyValue
}

type counterRecord struct {
	name  string
	value int64
	attrs []attribute.KeyValue
}

func (c *captureTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	c.histograms = append(c.histograms, histogramRecord{name: name, value: value, attrs: attrs})
}

func (c *captureTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c.counters = append(c.counters, counterRecord{name: name, value: value, attrs: attrs})
}

func (c *captureTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	c.spans = append(c.spans, name)
	return ctx, trace.SpanFromContext(ctx)
}

func (c *captureTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

func (c *captureTelemetry) findHistogram(name string) *histogramRecord {
	for i := range c.histograms {
		if c.histograms[i].name == name {
			return &c.histograms[i]
		}
	}
	return nil
}

func (c *captureTelemetry) findCounter(name string) *counterRecord {
	for i := range c.counters {
		if c.counters[i].name == name {
			return &c.counters[i]
		}
	}
	return nil
}

func (c *captureTelemetry) sumCounter(name string) int64 {
	var sum int64
	for _, r := range c.counters {
		if r.name == name {
			sum += r.value
		}
	}
	return sum
}

func (c *captureTelemetry) reset() {
	c.histograms = c.histograms[:0]
	c.counters = c.counters[:0]
	c.spans = c.spans[:0]
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

var _ telemetry.Telemetry = (*captureTelemetry)(nil)

func TestRecorderMetricsInterface(t *testing.T) {
	tel := &captureTelemetry{}
	metrics := NewRecorderMetrics(tel)
	ctx := context.Background()

	t.Run("RecordBatch", func(t *testing.T) {
		tel.reset()

		metrics.RecordBatch(ctx, 100*time.Millisecond, 12, 34000)

		if c := tel.findCounter("workstats.batches.total"); c == nil || c.value != 1 {
			t.Errorf("expected one batch, got %+v", c)
		}
		if c := tel.findCounter("workstats.positions.total"); c == nil || c.value != 12 {
			t.Errorf("expected 12 positions, got %+v", c)
		}
		if c := tel.findCounter("workstats.nodes.total"); c == nil || c.value != 34000 {
			t.Errorf("expected 34000 nodes, got %+v", c)
		}
		h := tel.findHistogram("workstats.batch.persist.duration")
		if h == nil {
			t.Fatal("expected duration histogram")
		}
		if h.value != 0.1 {
			t.Errorf("expected 0.1s, got %f", h.value)
		}
		if attrValue(h.attrs, telemetry.AttrComponent) != telemetry.ComponentRecorder {
			t.Errorf("missing component attribute: %v", h.attrs)
		}
	})

	t.Run("RecordBatchSaturates", func(t *testing.T) {
		tel.reset()

		metrics.RecordBatch(ctx, time.Millisecond, math.MaxUint64, uint64(math.MaxInt64)+1)

		if c := tel.findCounter("workstats.positions.total"); c == nil || c.value != math.MaxInt64 {
			t.Errorf("expected positions to saturate at MaxInt64, got %+v", c)
		}
		if c := tel.findCounter("workstats.nodes.total"); c == nil || c.value != math.MaxInt64 {
			t.Errorf("expected nodes to saturate at MaxInt64, got %+v", c)
		}
	})

	t.Run("RecordThroughput", func(t *testing.T) {
		tel.reset()

		metrics.RecordThroughput(ctx, 300000, 390000, 0.9)

		if h := tel.findHistogram("workstats.throughput.sample"); h == nil || h.value != 300000 {
			t.Errorf("unexpected sample histogram %+v", h)
		}
		if h := tel.findHistogram("workstats.throughput.estimate"); h == nil || h.value != 390000 {
			t.Errorf("unexpected estimate histogram %+v", h)
		}
		if h := tel.findHistogram("workstats.throughput.uncertainty"); h == nil || h.value != 0.9 {
			t.Errorf("unexpected uncertainty histogram %+v", h)
		}
	})

	t.Run("RecordPersistFailure", func(t *testing.T) {
		tel.reset()

		metrics.RecordPersistFailure(ctx, telemetry.TargetEventLog, "append")

		c := tel.findCounter("workstats.persist.failures")
		if c == nil {
			t.Fatal("expected failure counter")
		}
		if attrValue(c.attrs, telemetry.AttrTarget) != telemetry.TargetEventLog {
			t.Errorf("expected event_log target, got %v", c.attrs)
		}
		if attrValue(c.attrs, telemetry.AttrOperation) != "append" {
			t.Errorf("expected append operation, got %v", c.attrs)
		}
	})

	t.Run("RecordLoad", func(t *testing.T) {
		tel.reset()

		metrics.RecordLoad(ctx, LoadReset)

		c := tel.findCounter("workstats.stats_file.loads")
		if c == nil || attrValue(c.attrs, telemetry.AttrOutcome) != LoadReset {
			t.Errorf("unexpected load counter %+v", c)
		}
	})
}

func TestNoopRecorderMetrics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("noop metrics should not panic, got: %v", r)
		}
	}()

	ctx := context.Background()
	for _, metrics := range []RecorderMetrics{NewNoopRecorderMetrics(), NewRecorderMetrics(nil)} {
		metrics.RecordBatch(ctx, time.Millisecond, 1, 1)
		metrics.RecordThroughput(ctx, 1, 1, 1)
		metrics.RecordPersistFailure(ctx, telemetry.TargetStatsFile, "write")
		metrics.RecordLoad(ctx, LoadNew)
		if err := metrics.Close(); err != nil {
			t.Errorf("Close should not fail, got: %v", err)
		}
	}
}

func TestRecorderWithTelemetry(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	tel := &captureTelemetry{}

	r := env.open(cfg, WithTelemetry(tel))
	defer r.Close()

	if c := tel.findCounter("workstats.stats_file.loads"); c == nil || attrValue(c.attrs, telemetry.AttrOutcome) != LoadNew {
		t.Errorf("expected a new-file load outcome, got %+v", c)
	}
	if len(tel.spans) == 0 || tel.spans[0] != "workstats.stats_file.open" {
		t.Errorf("expected stats file open span, got %v", tel.spans)
	}

	tel.reset()
	r.RecordBatch(10, 1000)
	r.RecordBatchWithThroughput(5, 500, 250000)

	if got := tel.sumCounter("workstats.batches.total"); got != 2 {
		t.Errorf("expected 2 batches, got %d", got)
	}
	if got := tel.sumCounter("workstats.positions.total"); got != 15 {
		t.Errorf("expected 15 positions, got %d", got)
	}
	if got := tel.sumCounter("workstats.nodes.total"); got != 1500 {
		t.Errorf("expected 1500 nodes, got %d", got)
	}
	if h := tel.findHistogram("workstats.throughput.sample"); h == nil || h.value != 250000 {
		t.Errorf("expected one throughput sample, got %+v", h)
	}
	if tel.findCounter("workstats.persist.failures") != nil {
		t.Error("no persistence failures expected")
	}
}

func TestRecorderTelemetryOnFailures(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.config()
	cfg.StatsFile = filepath.Join(env.dir, "missing", "stats.json")
	cfg.EventLogPath = filepath.Join(env.dir, "missing", "stats.db")
	tel := &captureTelemetry{}

	r := env.open(cfg, WithTelemetry(tel))
	defer r.Close()

	if got := tel.sumCounter("workstats.persist.failures"); got != 2 {
		t.Errorf("expected both stores to report an open failure, got %d", got)
	}
	if c := tel.findCounter("workstats.stats_file.loads"); c == nil || attrValue(c.attrs, telemetry.AttrOutcome) != LoadDisabled {
		t.Errorf("expected disabled load outcome, got %+v", c)
	}

	suppressed := &captureTelemetry{}
	cfg = config.NewDefaultConfig()
	cfg.SuppressPersistence = true
	env.open(cfg, WithTelemetry(suppressed))
	if c := suppressed.findCounter("workstats.stats_file.loads"); c == nil || attrValue(c.attrs, telemetry.AttrOutcome) != LoadDisabled {
		t.Errorf("expected disabled load outcome when suppressed, got %+v", c)
	}
}
