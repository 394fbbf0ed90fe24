// Package metrics exposes Prometheus collectors for cache and download
// activity.
//
// Metrics is fed by the domain event dispatcher, so the services that raise
// events never import Prometheus. A nil *Metrics is valid and records
// nothing, which keeps the zero-config and test paths free of registries.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
)

const namespace = "cacheable_image"

// Metrics holds the collectors. All methods are safe on a nil receiver.
type Metrics struct {
	ProbesTotal       *prometheus.CounterVec
	DownloadsTotal    *prometheus.CounterVec
	DownloadBytes     prometheus.Counter
	DownloadDuration  *prometheus.HistogramVec
	DownloadsInFlight prometheus.Gauge
	SourcesResolved   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// If reg is nil the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_probes_total",
				Help:      "Cache probes by result (hit, corrupt_hit, miss)",
			},
			[]string{"result"},
		),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Download jobs by outcome",
			},
			[]string{"outcome"},
		),
		DownloadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Bytes written into the cache by completed downloads",
			},
		),
		DownloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Duration of download jobs by outcome",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		DownloadsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "downloads_in_flight",
				Help:      "Download jobs that have begun and not yet finished",
			},
		),
		SourcesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sources_resolved_total",
				Help:      "Image sources that reached a terminal phase, by phase",
			},
			[]string{"phase"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ProbesTotal,
			m.DownloadsTotal,
			m.DownloadBytes,
			m.DownloadDuration,
			m.DownloadsInFlight,
			m.SourcesResolved,
		)
	}
	return m
}

// Outcome labels for downloads
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomeRejected  = "rejected"
	// OutcomeRetryable is a failure the origin marked as transient
	OutcomeRetryable = "retryable"
)

// RecordProbe counts a cache probe
func (m *Metrics) RecordProbe(result string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
}

// RecordDownloadBegan marks a job as in flight
func (m *Metrics) RecordDownloadBegan() {
	if m == nil {
		return
	}
	m.DownloadsInFlight.Inc()
}

// RecordDownloadFinished records the outcome of a job that had begun
func (m *Metrics) RecordDownloadFinished(outcome string, bytes int64, seconds float64) {
	if m == nil {
		return
	}
	m.DownloadsInFlight.Dec()
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
	m.DownloadDuration.WithLabelValues(outcome).Observe(seconds)
	if outcome == OutcomeCompleted && bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
}

// RecordSourceResolved counts a source reaching a terminal phase
func (m *Metrics) RecordSourceResolved(phase string) {
	if m == nil {
		return
	}
	m.SourcesResolved.WithLabelValues(phase).Inc()
}

// Handle records the event. It implements event.EventHandler.
func (m *Metrics) Handle(e event.DomainEvent) error {
	switch e := e.(type) {
	case event.CacheProbed:
		m.RecordProbe(e.Result)
	case event.DownloadBegan:
		m.RecordDownloadBegan()
	case event.DownloadCompleted:
		m.RecordDownloadFinished(OutcomeCompleted, e.Size, e.Duration.Seconds())
	case event.DownloadFailed:
		m.RecordDownloadFinished(failureOutcome(e), e.BytesWritten, e.Duration.Seconds())
	case event.SourceResolved:
		m.RecordSourceResolved(e.Mode)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (m *Metrics) HandledEvents() []string {
	return []string{
		event.NameCacheProbed,
		event.NameDownloadBegan,
		event.NameDownloadCompleted,
		event.NameDownloadFailed,
		event.NameSourceResolved,
	}
}

func failureOutcome(e event.DownloadFailed) string {
	switch {
	case e.Canceled:
		return OutcomeCanceled
	case errors.Is(e.Err, domain.ErrFileTooLarge),
		errors.Is(e.Err, domain.ErrNotAnImage),
		errors.Is(e.Err, domain.ErrInsufficientSpace):
		return OutcomeRejected
	case domain.IsRetryable(e.Err):
		return OutcomeRetryable
	default:
		return OutcomeFailed
	}
}
