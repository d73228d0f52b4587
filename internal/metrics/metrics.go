// Package metrics exposes Prometheus instruments for apply and backup activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cfgswap"

// Metrics holds the collectors on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	applies         *prometheus.CounterVec
	applyDuration   *prometheus.HistogramVec
	backups         prometheus.Counter
	backupBytes     prometheus.Gauge
	backupsPruned   prometheus.Counter
	cleanupFailures prometheus.Counter
	activeProfile   *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		applies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_total",
				Help:      "Apply and restore attempts by outcome",
			},
			[]string{"outcome"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Wall time of apply and restore operations",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		backups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_created_total",
			Help:      "Backups written before overwriting the target",
		}),
		backupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_last_size_bytes",
			Help:      "Size of the most recent backup",
		}),
		backupsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_pruned_total",
			Help:      "Backups removed by retention cleanup",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_cleanup_failures_total",
			Help:      "Backups that retention cleanup could not remove",
		}),
		activeProfile: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_profile",
				Help:      "1 for the profile whose content matches the target",
			},
			[]string{"profile"},
		),
	}

	m.registry.MustRegister(
		m.applies,
		m.applyDuration,
		m.backups,
		m.backupBytes,
		m.backupsPruned,
		m.cleanupFailures,
		m.activeProfile,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveApply records one apply or restore with its outcome label.
func (m *Metrics) ObserveApply(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.applies.WithLabelValues(outcome).Inc()
	m.applyDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveBackup records a backup of size bytes.
func (m *Metrics) ObserveBackup(size int64) {
	if m == nil {
		return
	}
	m.backups.Inc()
	m.backupBytes.Set(float64(size))
}

// ObserveCleanup records a retention pass.
func (m *Metrics) ObserveCleanup(removed, failed int) {
	if m == nil {
		return
	}
	m.backupsPruned.Add(float64(removed))
	m.cleanupFailures.Add(float64(failed))
}

// SetActive marks name as the only active profile; "" clears the gauge.
func (m *Metrics) SetActive(name string) {
	if m == nil {
		return
	}
	m.activeProfile.Reset()
	if name != "" {
		m.activeProfile.WithLabelValues(name).Set(1)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
