package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/event"
)

// gather returns every sample in reg keyed by "name{label=value}"
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += fmt.Sprintf("{%s=%s}", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestMetrics_Handle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	events := []event.DomainEvent{
		event.NewCacheProbed("/c/a.png", "hit", 500, nil),
		event.NewCacheProbed("/c/b.png", "miss", 0, nil),
		event.NewCacheProbed("/c/c.png", "miss", 0, nil),
		event.NewDownloadBegan("j1", "http://x/b.png", "/c/b.png", false),
		event.NewDownloadBegan("j2", "http://x/c.png", "/c/c.png", false),
		event.NewDownloadBegan("j3", "http://x/d.png", "/c/d.png", false),
		event.NewDownloadBegan("j4", "http://x/e.png", "/c/e.png", false),
		event.NewDownloadCompleted("j1", "http://x/b.png", "/c/b.png", 2048, "image/png", time.Second),
		event.NewDownloadFailed("j2", "http://x/c.png", "/c/c.png", 10, domain.ErrDownloadCanceled, true, time.Second),
		event.NewDownloadFailed("j3", "http://x/d.png", "/c/d.png", 0, domain.ErrNotAnImage, false, time.Second),
		event.NewSourceResolved("http://x/a.png", "remote_cached", "/c/a.png"),
	}
	for _, e := range events {
		if err := m.Handle(e); err != nil {
			t.Fatalf("Handle(%s) error = %v", e.EventName(), err)
		}
	}

	got := gather(t, reg)
	want := map[string]float64{
		"cacheable_image_cache_probes_total{result=hit}":               1,
		"cacheable_image_cache_probes_total{result=miss}":              2,
		"cacheable_image_downloads_total{outcome=completed}":           1,
		"cacheable_image_downloads_total{outcome=canceled}":            1,
		"cacheable_image_downloads_total{outcome=rejected}":            1,
		"cacheable_image_download_bytes_total":                         2048,
		"cacheable_image_downloads_in_flight":                          1,
		"cacheable_image_download_duration_seconds{outcome=completed}": 1,
		"cacheable_image_sources_resolved_total{phase=remote_cached}":  1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordProbe("hit")
	m.RecordDownloadBegan()
	m.RecordDownloadFinished(OutcomeCompleted, 10, 1)
	m.RecordSourceResolved("local")
	if err := m.Handle(event.NewCacheProbed("/c/a.png", "hit", 1, nil)); err != nil {
		t.Errorf("Handle() on nil = %v", err)
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordProbe("miss")
	if m.ProbesTotal == nil {
		t.Fatal("collectors not created")
	}
}

func TestFailureOutcome(t *testing.T) {
	tests := []struct {
		name string
		ev   event.DownloadFailed
		want string
	}{
		{"canceled", event.DownloadFailed{Canceled: true, Err: domain.ErrDownloadCanceled}, OutcomeCanceled},
		{"too large", event.DownloadFailed{Err: domain.ErrFileTooLarge}, OutcomeRejected},
		{"no space", event.DownloadFailed{Err: domain.ErrInsufficientSpace}, OutcomeRejected},
		{"http", event.DownloadFailed{Err: domain.NewDownloadError("http://x", 404, nil)}, OutcomeFailed},
		{"unavailable", event.DownloadFailed{Err: domain.NewRetryableError(domain.NewDownloadError("http://x", 503, nil), 0)}, OutcomeRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failureOutcome(tt.ev); got != tt.want {
				t.Errorf("failureOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}
