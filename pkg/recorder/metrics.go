// ABOUTME: Recorder telemetry metrics interface and implementation for batch accounting
// ABOUTME: Tracks batch counts, work volume, throughput samples and persistence failures per target

package recorder

import (
	"context"
	"math"
	"time"

	"github.com/KevoDB/workstats/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// RecorderMetrics defines the telemetry emitted by a Recorder.
// All metrics are optional - implementations can safely be no-op.
type RecorderMetrics interface {
	telemetry.ComponentMetrics

	// RecordBatch records one reported batch and how long persisting it took.
	RecordBatch(ctx context.Context, duration time.Duration, positions, nodes uint64)

	// RecordThroughput records a throughput sample and the resulting estimate.
	RecordThroughput(ctx context.Context, sample uint32, estimate uint32, uncertainty float64)

	// RecordPersistFailure records a failed write to the stats file or event log.
	RecordPersistFailure(ctx context.Context, target string, operation string)

	// RecordLoad records the outcome of reading the stats file at startup.
	RecordLoad(ctx context.Context, outcome string)
}

// Load outcomes reported through RecordLoad.
const (
	LoadResumed  = "resumed"
	LoadNew      = "new"
	LoadReset    = "reset"
	LoadDisabled = "disabled"
)

type recorderMetrics struct {
	tel telemetry.Telemetry
}

// NewRecorderMetrics creates a RecorderMetrics on top of tel.
// If tel is nil, returns a no-op implementation.
func NewRecorderMetrics(tel telemetry.Telemetry) RecorderMetrics {
	if tel == nil {
		return &noopRecorderMetrics{}
	}
	return &recorderMetrics{tel: tel}
}

// NewNoopRecorderMetrics creates a no-op implementation for testing.
func NewNoopRecorderMetrics() RecorderMetrics {
	return &noopRecorderMetrics{}
}

func (m *recorderMetrics) RecordBatch(ctx context.Context, duration time.Duration, positions, nodes uint64) {
	component := attribute.String(telemetry.AttrComponent, telemetry.ComponentRecorder)

	m.tel.RecordCounter(ctx, "workstats.batches.total", 1, component)
	m.tel.RecordCounter(ctx, "workstats.positions.total", counterValue(positions), component)
	m.tel.RecordCounter(ctx, "workstats.nodes.total", counterValue(nodes), component)
	m.tel.RecordHistogram(ctx, "workstats.batch.persist.duration", duration.Seconds(), component)
}

// counterValue saturates at math.MaxInt64; OTel counters take int64 and drop
// negative increments.
func counterValue(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func (m *recorderMetrics) RecordThroughput(ctx context.Context, sample uint32, estimate uint32, uncertainty float64) {
	component := attribute.String(telemetry.AttrComponent, telemetry.ComponentRecorder)

	m.tel.RecordHistogram(ctx, "workstats.throughput.sample", float64(sample), component)
	m.tel.RecordHistogram(ctx, "workstats.throughput.estimate", float64(estimate), component)
	m.tel.RecordHistogram(ctx, "workstats.throughput.uncertainty", uncertainty, component)
}

func (m *recorderMetrics) RecordPersistFailure(ctx context.Context, target string, operation string) {
	m.tel.RecordCounter(ctx, "workstats.persist.failures", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentRecorder),
		attribute.String(telemetry.AttrTarget, target),
		attribute.String(telemetry.AttrOperation, operation),
		attribute.String(telemetry.AttrStatus, telemetry.StatusError),
	)
}

func (m *recorderMetrics) RecordLoad(ctx context.Context, outcome string) {
	m.tel.RecordCounter(ctx, "workstats.stats_file.loads", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentRecorder),
		attribute.String(telemetry.AttrOutcome, outcome),
	)
}

func (m *recorderMetrics) Close() error {
	return nil
}

type noopRecorderMetrics struct{}

func (n *noopRecorderMetrics) RecordBatch(ctx context.Context, duration time.Duration, positions, nodes uint64) {
}

func (n *noopRecorderMetrics) RecordThroughput(ctx context.Context, sample uint32, estimate uint32, uncertainty float64) {
}

func (n *noopRecorderMetrics) RecordPersistFailure(ctx context.Context, target string, operation string) {
}

func (n *noopRecorderMetrics) RecordLoad(ctx context.Context, outcome string) {}

func (n *noopRecorderMetrics) Close() error { return nil }
