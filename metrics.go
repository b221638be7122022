package recoverd

import (
	"net/http"
	"time"

	"github.com/custodyhq/recoverd/build"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "recoverd"

// metrics holds the collectors the HTTP API updates. Each server owns its
// own registry so several servers can live in one process.
type metrics struct {
	registry *prometheus.Registry

	derivations     *prometheus.CounterVec
	derivedKeys     *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	recoveryLatency prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		derivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "derivations_total",
				Help: "Number of derive-keys requests by " +
					"asset and outcome.",
			},
			[]string{"asset", "outcome"},
		),
		derivedKeys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "derived_keys_total",
				Help:      "Number of keys derived by asset.",
			},
			[]string{"asset"},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "recoveries_total",
				Help:      "Number of recoveries by outcome.",
			},
			[]string{"outcome"},
		),
		recoveryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "recovery_duration_seconds",
				Help:      "Time taken by successful recoveries.",
				Buckets: prometheus.ExponentialBuckets(
					0.05, 2, 10,
				),
			},
		),
	}

	versionGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "version",
			Help:      "Version of recoverd running.",
		},
		[]string{"version", "commit"},
	)
	versionGauge.WithLabelValues(build.Version(), build.Commit).Set(1)

	startTime := time.Now()
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "uptime_seconds",
			Help:      "Uptime of recoverd in seconds.",
		},
		func() float64 {
			return time.Since(startTime).Seconds()
		},
	)

	m.registry.MustRegister(
		m.derivations, m.derivedKeys, m.recoveries, m.recoveryLatency,
		versionGauge, uptime,
		collectors.NewGoCollector(),
	)

	return m
}

// outcome labels a request by the class of its error.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}

	return errorcodes.CodeOf(err).Class().String()
}

func (m *metrics) observeDerivation(asset string, keys int, err error) {
	m.derivations.WithLabelValues(asset, outcome(err)).Inc()
	if err == nil {
		m.derivedKeys.WithLabelValues(asset).Add(float64(keys))
	}
}

func (m *metrics) observeRecovery(start time.Time, err error) {
	m.recoveries.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.recoveryLatency.Observe(time.Since(start).Seconds())
	}
}

// handler serves the registry in the Prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
