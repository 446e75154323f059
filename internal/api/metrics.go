package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	simulations *prometheus.CounterVec
	simSteps    prometheus.Counter
	rateLimited prometheus.Counter
}

// NewMetrics registers the colonysim collectors plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colonysim",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "colonysim",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colonysim",
			Name:      "simulations_total",
			Help:      "Simulation runs by outcome (ok, invalid, error).",
		}, []string{"outcome"}),
		simSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colonysim",
			Name:      "simulation_steps_total",
			Help:      "Timesteps simulated across all runs.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colonysim",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.latency, m.simulations, m.simSteps, m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
