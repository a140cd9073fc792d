// Package metrics exposes Prometheus instrumentation for the monitors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

const namespace = "idlewarden"

// Metrics holds all collectors of the daemon.
type Metrics struct {
	registry *prometheus.Registry

	Connections     prometheus.Gauge
	ArmedMonitors   prometheus.Gauge
	Warnings        prometheus.Counter
	Extensions      prometheus.Counter
	Expiries        *prometheus.CounterVec
	LogoutFailures  prometheus.Counter
	DroppedActivity prometheus.Counter
	AuthFailures    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open console tabs",
		}),
		ArmedMonitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_monitors",
			Help:      "Number of monitors currently counting down",
		}),
		Warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of expiry warnings shown",
		}),
		Extensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extensions_total",
			Help:      "Total number of warnings answered with stay signed in",
		}),
		Expiries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiries_total",
			Help:      "Total number of forced expiries",
		}, []string{"reason"}),
		LogoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logout_failures_total",
			Help:      "Total number of failed logouts during forced expiry",
		}),
		DroppedActivity: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_activity_total",
			Help:      "Activity messages dropped by the rate limiter",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected websocket and admin API tokens",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.ArmedMonitors,
		m.Warnings,
		m.Extensions,
		m.Expiries,
		m.LogoutFailures,
		m.DroppedActivity,
		m.AuthFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe updates the collectors from a monitor lifecycle event.
func (m *Metrics) Observe(ev monitor.Event) {
	switch ev.Type {
	case monitor.EventArmed:
		m.ArmedMonitors.Inc()
	case monitor.EventDisarmed:
		m.ArmedMonitors.Dec()
	case monitor.EventWarning:
		m.Warnings.Inc()
	case monitor.EventExtended:
		m.Extensions.Inc()
	case monitor.EventExpired:
		m.Expiries.WithLabelValues(reasonLabel(ev.Reason)).Inc()
	case monitor.EventLogoutFailed:
		m.LogoutFailures.Inc()
	}
}

// reasonLabel keeps the label set bounded; administrative reasons are free text.
func reasonLabel(reason string) string {
	switch reason {
	case monitor.ReasonIdleTimeout, monitor.ReasonDeclined:
		return reason
	default:
		return "admin"
	}
}
