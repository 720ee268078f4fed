// Package metrics registers the process's prometheus counters/gauges and
// exposes the handler that serves them at GET /admin/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vodcast/internal/domain"
)

// Metrics bundles every collector the core reports.
type Metrics struct {
	DownloadsTotal     *prometheus.CounterVec
	EnqueueErrorsTotal prometheus.Counter
	ActivePasses       prometheus.Gauge
}

// New registers all collectors against reg. Pass prometheus.NewRegistry()
// for an isolated instance (tests), or prometheus.DefaultRegisterer to
// join the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vodcast_downloads_total",
			Help: "Count of downloads that reached each terminal or resting status.",
		}, []string{"status"}),
		EnqueueErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vodcast_enqueue_errors_total",
			Help: "Count of fatal enqueue-phase failures across all feeds.",
		}),
		ActivePasses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vodcast_active_passes",
			Help: "Number of feed passes currently holding the global worker semaphore (0 or 1).",
		}),
	}
}

// RecordStatus increments the downloads_total counter for status.
func (m *Metrics) RecordStatus(status domain.DownloadStatus) {
	m.DownloadsTotal.WithLabelValues(string(status)).Inc()
}

// RecordEnqueueError increments enqueue_errors_total.
func (m *Metrics) RecordEnqueueError() {
	m.EnqueueErrorsTotal.Inc()
}

// PassStarted/PassFinished track active_passes around a semaphore hold.
func (m *Metrics) PassStarted()  { m.ActivePasses.Inc() }
func (m *Metrics) PassFinished() { m.ActivePasses.Dec() }

// Handler returns the http.Handler to mount at GET /admin/metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
