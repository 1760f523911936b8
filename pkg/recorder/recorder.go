// Package recorder keeps the cumulative work counters of a compute client
// and persists them to a stats file and an event log.
//
// A Recorder must be driven from a single goroutine. Persistence problems are
// logged and never surface to the caller; the in-memory counters stay correct
// regardless of what happens on disk.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/KevoDB/workstats/pkg/common/log"
	"github.com/KevoDB/workstats/pkg/config"
	"github.com/KevoDB/workstats/pkg/eventlog"
	"github.com/KevoDB/workstats/pkg/stats"
	"github.com/KevoDB/workstats/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Recorder owns the counters, the throughput estimator and, when available,
// the stats file and event log handles.
type Recorder struct {
	stats stats.Stats
	nps   stats.Estimator
	cores int

	// Either may be nil: disabled by configuration or failed to open.
	store  *stats.SnapshotFile
	events *eventlog.EventLog

	logger  log.Logger
	tel     telemetry.Telemetry
	metrics RecorderMetrics
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*options)

type options struct {
	logger log.Logger
	tel    telemetry.Telemetry
	home   config.HomeDirFunc
	now    func() time.Time
}

// WithLogger sets the diagnostic sink. Defaults to the package default logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTelemetry enables metrics and spans.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(o *options) {
		o.tel = tel
	}
}

// WithHomeDir overrides how the default stats file location is resolved.
func WithHomeDir(home config.HomeDirFunc) Option {
	return func(o *options) {
		o.home = home
	}
}

// WithClock overrides the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New builds a Recorder from cfg. It never fails: any persistence that cannot
// be set up is logged and left disabled.
func New(cfg *config.Config, opts ...Option) *Recorder {
	o := options{
		logger: log.GetDefaultLogger(),
		home:   os.UserHomeDir,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if o.logger == nil {
		o.logger = log.NewNopLogger()
	}

	tel := o.tel
	if tel == nil {
		tel = telemetry.NewNoop()
	}

	r := &Recorder{
		stats:   stats.Stats{},
		nps:     stats.NewEstimator(),
		cores:   cfg.Cores,
		logger:  o.logger.WithField(telemetry.AttrComponent, "stats"),
		tel:     tel,
		metrics: NewRecorderMetrics(o.tel),
		now:     o.now,
	}

	if r.cores <= 0 {
		r.logger.Warn("Invalid core count %d, assuming 1", cfg.Cores)
		r.cores = 1
	}

	ctx := context.Background()

	if cfg.SuppressPersistence {
		r.metrics.RecordLoad(ctx, LoadDisabled)
		return r
	}

	r.openStatsFile(ctx, cfg, o.home)
	r.openEventLog(ctx, cfg.EventLogPath)

	return r
}

func (r *Recorder) openStatsFile(ctx context.Context, cfg *config.Config, home config.HomeDirFunc) {
	ctx, span := r.tel.StartSpan(ctx, "workstats.stats_file.open")
	defer span.End()
	defer telemetry.RecordDuration(ctx, r.tel, "workstats.stats_file.open.duration", time.Now(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentRecorder))

	path, err := cfg.ResolveStatsFile(home)
	if err != nil {
		r.logger.Error("Could not resolve ~/%s: %v", config.DefaultStatsFileName, err)
		r.metrics.RecordLoad(ctx, LoadDisabled)
		return
	}
	span.SetAttributes(attribute.String("path", path))

	file, err := stats.OpenSnapshotFile(path)
	if err != nil {
		r.logger.Error("Failed to open %s: %v", path, err)
		r.metrics.RecordPersistFailure(ctx, telemetry.TargetStatsFile, "open")
		r.metrics.RecordLoad(ctx, LoadDisabled)
		return
	}

	loaded, ok, err := file.Load()
	switch {
	case err != nil:
		r.logger.Error("Failed to resume from %s: %v. Resetting ...", path, err)
		r.metrics.RecordLoad(ctx, LoadReset)
	case !ok:
		r.logger.Info("Recording to new stats file %s ...", path)
		r.metrics.RecordLoad(ctx, LoadNew)
	default:
		r.stats = loaded
		r.logger.Info("Resuming from %s (%d batches, fingerprint %016x) ...",
			path, loaded.TotalBatches, loaded.Fingerprint())
		r.metrics.RecordLoad(ctx, LoadResumed)
	}

	// Kept even after a failed load so the next batch overwrites the bad content.
	r.store = file
}

func (r *Recorder) openEventLog(ctx context.Context, path string) {
	if path == "" {
		r.logger.Error("Failed to initialize event log: no path configured")
		r.metrics.RecordPersistFailure(ctx, telemetry.TargetEventLog, "open")
		return
	}

	events, err := eventlog.Open(path)
	if err != nil {
		r.logger.Error("Failed to initialize event log: %v", err)
		r.metrics.RecordPersistFailure(ctx, telemetry.TargetEventLog, "open")
		return
	}

	r.events = events
}

// RecordBatch accounts for one processed batch without a throughput sample.
func (r *Recorder) RecordBatch(positions, nodes uint64) {
	r.record(positions, nodes, 0, false)
}

// RecordBatchWithThroughput accounts for one processed batch and feeds its
// per-core nodes-per-second sample to the estimator.
func (r *Recorder) RecordBatchWithThroughput(positions, nodes uint64, nps uint32) {
	r.record(positions, nodes, nps, true)
}

func (r *Recorder) record(positions, nodes uint64, sample uint32, hasSample bool) {
	ctx := context.Background()
	start := time.Now()

	r.stats = r.stats.Add(positions, nodes)

	if hasSample {
		r.nps.Record(sample)
		r.metrics.RecordThroughput(ctx, sample, r.nps.NPS(), r.nps.Uncertainty())
	}

	if r.store != nil {
		if err := r.store.Save(r.stats); err != nil {
			r.logger.Error("Failed to write stats to %s: %v", r.store.Path(), err)
			r.metrics.RecordPersistFailure(ctx, telemetry.TargetStatsFile, "write")
		}
	}

	if r.events != nil {
		ev := eventlog.Event{
			Timestamp:        r.now().Unix(),
			TotalBatches:     r.stats.TotalBatches,
			TotalPositions:   r.stats.TotalPositions,
			TotalNodes:       r.stats.TotalNodes,
			ThroughputSample: sample,
		}
		if _, err := r.events.Append(ev); err != nil {
			r.logger.Error("Failed to save stats to event log %s: %v", r.events.Path(), err)
			r.metrics.RecordPersistFailure(ctx, telemetry.TargetEventLog, "append")
		}
	}

	r.metrics.RecordBatch(ctx, time.Since(start), positions, nodes)
}

// Stats returns a copy of the current counters.
func (r *Recorder) Stats() stats.Stats {
	return r.stats
}

// Throughput returns a copy of the current throughput estimate.
func (r *Recorder) Throughput() stats.Estimator {
	return r.nps
}

// Cores returns the configured core count.
func (r *Recorder) Cores() int {
	return r.cores
}

// HasStatsFile reports whether batches are being written to a stats file.
func (r *Recorder) HasStatsFile() bool {
	return r.store != nil
}

// StatsFilePath returns the stats file location, or "" when there is none.
func (r *Recorder) StatsFilePath() string {
	if r.store == nil {
		return ""
	}
	return r.store.Path()
}

// HasEventLog reports whether batches are being appended to the event log.
func (r *Recorder) HasEventLog() bool {
	return r.events != nil
}

// GetStats implements stats.Provider.
func (r *Recorder) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_batches":   r.stats.TotalBatches,
		"total_positions": r.stats.TotalPositions,
		"total_nodes":     r.stats.TotalNodes,
		"nps":             r.nps.NPS(),
		"nps_uncertainty": r.nps.Uncertainty(),
		"cores":           r.cores,
		"stats_file":      r.StatsFilePath(),
		"event_log":       r.HasEventLog(),
	}
}

// GetStatsFiltered implements stats.Provider.
func (r *Recorder) GetStatsFiltered(prefix string) map[string]interface{} {
	return stats.FilterByPrefix(r.GetStats(), prefix)
}

// String renders a one-line status summary.
func (r *Recorder) String() string {
	return fmt.Sprintf("%d batches, %d positions, %d nodes, %s",
		r.stats.TotalBatches, r.stats.TotalPositions, r.stats.TotalNodes, r.nps)
}

// Close releases the stats file and the event log. Counting continues in
// memory afterwards.
func (r *Recorder) Close() error {
	var errs []error

	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stats file: %w", err))
		}
		r.store = nil
	}

	if r.events != nil {
		if err := r.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event log: %w", err))
		}
		r.events = nil
	}

	return errors.Join(errs...)
}

var _ stats.Provider = (*Recorder)(nil)
