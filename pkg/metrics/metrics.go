// Package metrics exposes prometheus collectors for research runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records research activity. A nil *Collector is valid and records nothing.
type Collector struct {
	runs     *prometheus.CounterVec
	steps    *prometheus.CounterVec
	searches *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deep_researcher",
			Name:      "runs_total",
			Help:      "Research runs by terminal status.",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deep_researcher",
			Name:      "steps_total",
			Help:      "State machine steps executed.",
		}, []string{"step"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deep_researcher",
			Name:      "search_requests_total",
			Help:      "Search backend calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deep_researcher",
			Name:      "validation_retries_total",
			Help:      "Searches repeated because no source passed validation.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deep_researcher",
			Name:      "run_duration_seconds",
			Help:      "Wall time of research runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
	reg.MustRegister(c.runs, c.steps, c.searches, c.retries, c.duration)
	return c
}

func (c *Collector) RunFinished(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(status).Inc()
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collector) StepEntered(step string) {
	if c == nil {
		return
	}
	c.steps.WithLabelValues(step).Inc()
}

func (c *Collector) SearchDone(provider string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.searches.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) ValidationRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}
