// =============================================================================
// METRICS - PROMETHEUS INSTRUMENTATION FOR THE REGISTRY
// =============================================================================
//
// WHAT WE MEASURE:
// The sequencer's health is visible almost entirely through three numbers:
//
//   1. Conflict rate  - how often a predicted offset was stolen by another
//                       writer. A rising rate means contention on the
//                       registry partition (or a stuck peer hammering it).
//   2. Loaded offset  - the cursor. Compared against the partition end
//                       offset, this is replay lag.
//   3. Write latency  - end-to-end sequenced-write duration, including
//                       every retry round.
//
// Everything else (replayed records, tombstones, per-outcome write counts)
// exists to explain movements in those three.
//
// SINGLETON + INJECTION HYBRID:
// A global registry via Init/Get for production wiring, NewRegistry for
// isolated tests. All metric operations are nil-safe and no-op when metrics
// are disabled.
//
// =============================================================================

package metrics

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds metrics configuration.
type Config struct {
	// Enabled turns metrics collection on/off. When disabled, all metric
	// operations are no-ops.
	Enabled bool

	// Namespace is the prefix for all metrics (default: "goregistry").
	Namespace string

	// IncludeGoCollector adds Go runtime metrics (goroutines, GC, memory).
	IncludeGoCollector bool

	// IncludeProcessCollector adds process metrics (CPU, memory, FDs).
	IncludeProcessCollector bool

	// HistogramBuckets for write-latency measurements, in seconds.
	HistogramBuckets []float64
}

// DefaultConfig returns sensible defaults.
//
// Registry writes are human-driven (schema deployments), so the buckets run
// wider than a data-plane service's would: a sequenced write that loses a
// few offset races legitimately takes tens of milliseconds.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Namespace:               "goregistry",
		IncludeGoCollector:      true,
		IncludeProcessCollector: true,
		HistogramBuckets: []float64{
			0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
		},
	}
}

// Registry is the central metrics hub.
type Registry struct {
	promRegistry *prometheus.Registry
	config       Config
	logger       *slog.Logger
	enabled      bool

	Sequencer *SequencerMetrics
	Replay    *ReplayMetrics
}

// SequencerMetrics covers the write path.
type SequencerMetrics struct {
	// Writes counts sequenced writes by operation and outcome
	// (applied | noop | error).
	Writes *prometheus.CounterVec

	// Conflicts counts ordering conflicts (predicted offset not landed).
	// Conflicts are retried internally and never surfaced, so this counter
	// is the only place they are visible.
	Conflicts prometheus.Counter

	// RetriesExhausted counts writes that hit the attempt cap.
	RetriesExhausted prometheus.Counter

	// Tombstones counts tombstone records written by permanent deletes.
	Tombstones prometheus.Counter

	// WriteDuration measures full sequenced-write latency including
	// retries.
	WriteDuration *prometheus.HistogramVec
}

// ReplayMetrics covers catch-up and recovery.
type ReplayMetrics struct {
	// Records counts log entries folded into the store.
	Records prometheus.Counter

	// SkippedRecords counts entries that failed to decode during replay.
	SkippedRecords prometheus.Counter

	// LoadedOffset is the cursor: the highest offset reflected in the
	// store.
	LoadedOffset prometheus.Gauge

	// CatchupRuns counts replay rounds that actually fetched entries.
	CatchupRuns prometheus.Counter
}

// =============================================================================
// GLOBAL REGISTRY
// =============================================================================

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Init initializes the global metrics registry. Call once at startup.
func Init(config Config) *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry(config)
	})
	return globalRegistry
}

// Get returns the global registry, or nil before Init. All consumers are
// nil-tolerant so tests can run without metrics.
func Get() *Registry {
	return globalRegistry
}

// NewRegistry creates an isolated registry (used by tests).
func NewRegistry(config Config) *Registry {
	logger := slog.Default().With("component", "metrics")

	r := &Registry{
		promRegistry: prometheus.NewRegistry(),
		config:       config,
		logger:       logger,
		enabled:      config.Enabled,
	}

	if !config.Enabled {
		logger.Info("metrics collection disabled")
		return r
	}

	if config.IncludeGoCollector {
		r.promRegistry.MustRegister(collectors.NewGoCollector())
	}
	if config.IncludeProcessCollector {
		r.promRegistry.MustRegister(collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		))
	}

	r.Sequencer = newSequencerMetrics(r)
	r.Replay = newReplayMetrics(r)

	logger.Info("metrics registry initialized", "namespace", config.Namespace)
	return r
}

func newSequencerMetrics(r *Registry) *SequencerMetrics {
	m := &SequencerMetrics{
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "sequencer",
			Name:      "writes_total",
			Help:      "Sequenced writes by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "sequencer",
			Name:      "conflicts_total",
			Help:      "Ordering conflicts detected (predicted offset lost to another writer).",
		}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "sequencer",
			Name:      "retries_exhausted_total",
			Help:      "Sequenced writes aborted after hitting the conflict-retry cap.",
		}),
		Tombstones: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "sequencer",
			Name:      "tombstones_total",
			Help:      "Tombstone records written by permanent deletes.",
		}),
		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.config.Namespace,
			Subsystem: "sequencer",
			Name:      "write_duration_seconds",
			Help:      "Full sequenced-write latency including conflict retries.",
			Buckets:   r.config.HistogramBuckets,
		}, []string{"operation"}),
	}
	r.promRegistry.MustRegister(
		m.Writes, m.Conflicts, m.RetriesExhausted, m.Tombstones, m.WriteDuration,
	)
	return m
}

func newReplayMetrics(r *Registry) *ReplayMetrics {
	m := &ReplayMetrics{
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "replay",
			Name:      "records_total",
			Help:      "Log entries folded into the materialized store.",
		}),
		SkippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "replay",
			Name:      "skipped_records_total",
			Help:      "Log entries skipped during replay because they failed to decode.",
		}),
		LoadedOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: r.config.Namespace,
			Subsystem: "replay",
			Name:      "loaded_offset",
			Help:      "Highest log offset reflected in the materialized store.",
		}),
		CatchupRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: r.config.Namespace,
			Subsystem: "replay",
			Name:      "catchup_runs_total",
			Help:      "Catch-up rounds that fetched and applied at least one entry.",
		}),
	}
	r.promRegistry.MustRegister(
		m.Records, m.SkippedRecords, m.LoadedOffset, m.CatchupRuns,
	)
	return m
}

// =============================================================================
// ACCESSORS & HANDLER
// =============================================================================

// Enabled reports whether this registry collects metrics.
func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

// PrometheusRegistry exposes the underlying registry (tests, custom
// collectors).
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.promRegistry
}

// Handler returns the /metrics endpoint handler.
func (r *Registry) Handler() http.Handler {
	if !r.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	return promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{})
}
