package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"gifwright/internal/filecache"
)

const namespace = "gifwright"

// Recorder collects batch metrics. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	files          *prometheus.CounterVec
	fileDuration   prometheus.Histogram
	retries        prometheus.Counter
	predictions    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cacheWrites    *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	batchWorkers   prometheus.Gauge
	batchDuration  prometheus.Gauge
	batchCompleted prometheus.Gauge
}

// New builds a Recorder on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by result",
		}, []string{"result"}),
		fileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "End-to-end processing time per file",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Transcode retries with reduced settings",
		}),
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Encode settings by source",
		}, []string{"source"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		cacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by cache and result",
		}, []string{"cache", "result"}),
		duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Duplicate candidates by tier",
		}, []string{"tier"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Disposition decisions by action",
		}, []string{"action", "applied"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		batchWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_workers",
			Help:      "Workers used by the last batch",
		}),
		batchDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of the last batch",
		}),
		batchCompleted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordFile counts one processed file.
func (r *Recorder) RecordFile(result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(result).Inc()
	r.fileDuration.Observe(elapsed.Seconds())
}

// RecordRetry counts one reduced-settings retry.
func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

// RecordPrediction counts where a file's encode settings came from.
func (r *Recorder) RecordPrediction(source string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(source).Inc()
}

// RecordCache adds one cache's statistics.
func (r *Recorder) RecordCache(name string, s filecache.Stats) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(name, "hit").Add(float64(s.Hits))
	r.cacheLookups.WithLabelValues(name, "miss").Add(float64(s.Misses))
	r.cacheLookups.WithLabelValues(name, "stale").Add(float64(s.StaleMisses))
	r.cacheWrites.WithLabelValues(name, "ok").Add(float64(s.Writes))
	r.cacheWrites.WithLabelValues(name, "failed").Add(float64(s.WriteFailures))
}

// RecordDuplicate counts one candidate pair.
func (r *Recorder) RecordDuplicate(tier string) {
	if r == nil {
		return
	}
	r.duplicates.WithLabelValues(tier).Inc()
}

// RecordDecision counts one disposition outcome.
func (r *Recorder) RecordDecision(action string, applied bool) {
	if r == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	r.decisions.WithLabelValues(action, label).Inc()
}

// RecordBreakerState exports a circuit breaker's state.
func (r *Recorder) RecordBreakerState(name string, state gobreaker.State) {
	if r == nil {
		return
	}
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	r.breakerState.WithLabelValues(name).Set(value)
}

// RecordBatch sets the batch-level gauges.
func (r *Recorder) RecordBatch(workers int, elapsed time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.batchWorkers.Set(float64(workers))
	r.batchDuration.Set(elapsed.Seconds())
	r.batchCompleted.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the Prometheus text format for the
// node_exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
