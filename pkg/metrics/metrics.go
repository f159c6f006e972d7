// Package metrics counts pipeline activity in a private Prometheus registry
// and exports it as a node_exporter textfile at the end of a run. Every
// method is safe on a nil *Metrics, which is how metrics are disabled.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clipharvest/pkg/models"
)

const namespace = "clipharvest"

// Metrics holds the run's collectors
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched   prometheus.Counter
	clipsFetched   prometheus.Counter
	walksTruncated prometheus.Counter
	outcomes       *prometheus.CounterVec
	messages       *prometheus.CounterVec
	malformed      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	lastRun        prometheus.Gauge
}

// New creates collectors registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Clip listing pages fetched",
		}),
		clipsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_fetched_total",
			Help:      "Clip records returned by the listing",
		}),
		walksTruncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagination_truncated_total",
			Help:      "Pagination walks stopped early after exhausting retries",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_outcomes_total",
			Help:      "Per-item download outcomes",
		}, []string{"kind", "state"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_classified_total",
			Help:      "Chat messages classified, by category",
		}, []string{"category"}),
		malformed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_records_total",
			Help:      "Records rejected during decoding",
		}, []string{"source"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a pipeline stage for one entity",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"stage"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the textfile was written",
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PageFetched(clips int) {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
	m.clipsFetched.Add(float64(clips))
}

func (m *Metrics) WalkTruncated() {
	if m == nil {
		return
	}
	m.walksTruncated.Inc()
}

func (m *Metrics) Outcome(kind, state string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, state).Inc()
}

func (m *Metrics) MessageClassified(category models.Category) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) MalformedRecords(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformed.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile atomically writes every collector in text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	m.lastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
