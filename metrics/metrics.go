package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simpleauth"

// Reload results.
const (
	ReloadSuccess   = "success"
	ReloadFailure   = "failure"
	ReloadForbidden = "forbidden"
)

// Metrics holds the service's collectors.
type Metrics struct {
	verifications *prometheus.CounterVec
	reloads       *prometheus.CounterVec
	credentials   prometheus.Gauge
	lastReload    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Forward-auth verifications by decision.",
		}, []string{"decision"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Credential reload attempts by result.",
		}, []string{"result"}),
		credentials: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_credentials",
			Help:      "Credential entries in the active store.",
		}),
		lastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_load_timestamp_seconds",
			Help:      "Unix time of the last successful credential load.",
		}),
	}
	reg.MustRegister(m.verifications, m.reloads, m.credentials, m.lastReload)
	return m
}

// ObserveVerification counts one /verify decision.
func (m *Metrics) ObserveVerification(allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.verifications.WithLabelValues(decision).Inc()
}

// ObserveReload counts one reload attempt. On success the loaded count is
// recorded too.
func (m *Metrics) ObserveReload(result string, loaded int) {
	m.reloads.WithLabelValues(result).Inc()
	if result == ReloadSuccess {
		m.SetLoaded(loaded)
	}
}

// SetLoaded records a successful load of n credentials.
func (m *Metrics) SetLoaded(n int) {
	m.credentials.Set(float64(n))
	m.lastReload.SetToCurrentTime()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
