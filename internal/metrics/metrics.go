// Package metrics exposes workflow and tool metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolflow"

// Recorder receives execution measurements. The executor depends on this
// interface; Nop is used when metrics are disabled.
type Recorder interface {
	RunStarted(workflow string)
	RunFinished(workflow, status string, d time.Duration)
	ToolAttempt(tool, outcome string, d time.Duration)
	ToolFinished(tool, status string)
	ToolRetry(tool string)
	Optimized(tool string, rounds int, gain float64)
	PlanCache(hit bool)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RunStarted(string) {}
func (Nop) RunFinished(string, string, time.Duration) {}
func (Nop) ToolAttempt(string, string, time.Duration) {}
func (Nop) ToolFinished(string, string) {}
func (Nop) ToolRetry(string) {}
func (Nop) Optimized(string, int, float64) {}
func (Nop) PlanCache(bool) {}

// Collector records metrics into its own Prometheus registry, so several
// collectors (one per test, for instance) never clash.
type Collector struct {
	registry *prometheus.Registry

	runsActive      *prometheus.GaugeVec
	runDuration     *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	toolsTotal      *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	optimizerRounds *prometheus.HistogramVec
	optimizerGain   *prometheus.HistogramVec
	planCacheTotal  *prometheus.CounterVec
}

// NewCollector creates a collector with a fresh registry. Go runtime and
// process collectors are registered alongside the toolflow metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of workflow runs currently executing",
		}, []string{"workflow"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of workflow runs in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 1800},
		}, []string{"workflow", "status"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of finished workflow runs",
		}, []string{"workflow", "status"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_attempt_duration_seconds",
			Help:      "Duration of individual tool attempts in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"tool"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_attempts_total",
			Help:      "Total number of tool attempts by outcome",
		}, []string{"tool", "outcome"}), // outcome: ok, retryable, fatal
		toolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tools_total",
			Help:      "Total number of tools reaching a terminal status",
		}, []string{"tool", "status"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_retries_total",
			Help:      "Total number of tool retries",
		}, []string{"tool"}),
		optimizerRounds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimizer_rounds",
			Help:      "Optimization rounds spent per tool input",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}, []string{"tool"}),
		optimizerGain: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimizer_quality_gain",
			Help:      "Quality gained by the input optimizer",
			Buckets:   []float64{0, .05, .1, .2, .3, .5, .75, 1},
		}, []string{"tool"}),
		planCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_cache_lookups_total",
			Help:      "Plan cache lookups by result",
		}, []string{"result"}), // result: hit, miss
	}

	c.registry.MustRegister(
		c.runsActive,
		c.runDuration,
		c.runsTotal,
		c.attemptDuration,
		c.attemptsTotal,
		c.toolsTotal,
		c.retriesTotal,
		c.optimizerRounds,
		c.optimizerGain,
		c.planCacheTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RunStarted records a run start.
func (c *Collector) RunStarted(workflow string) {
	c.runsActive.WithLabelValues(workflow).Inc()
}

// RunFinished records a run completion.
func (c *Collector) RunFinished(workflow, status string, d time.Duration) {
	c.runsActive.WithLabelValues(workflow).Dec()
	c.runDuration.WithLabelValues(workflow, status).Observe(d.Seconds())
	c.runsTotal.WithLabelValues(workflow, status).Inc()
}

// ToolAttempt records one tool attempt and its outcome.
func (c *Collector) ToolAttempt(tool, outcome string, d time.Duration) {
	c.attemptDuration.WithLabelValues(tool).Observe(d.Seconds())
	c.attemptsTotal.WithLabelValues(tool, outcome).Inc()
}

// ToolFinished records a tool's terminal status.
func (c *Collector) ToolFinished(tool, status string) {
	c.toolsTotal.WithLabelValues(tool, status).Inc()
}

// ToolRetry records a retry.
func (c *Collector) ToolRetry(tool string) {
	c.retriesTotal.WithLabelValues(tool).Inc()
}

// Optimized records an optimizer pass.
func (c *Collector) Optimized(tool string, rounds int, gain float64) {
	c.optimizerRounds.WithLabelValues(tool).Observe(float64(rounds))
	if gain < 0 {
		gain = 0
	}
	c.optimizerGain.WithLabelValues(tool).Observe(gain)
}

// PlanCache records a plan cache lookup.
func (c *Collector) PlanCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.planCacheTotal.WithLabelValues(result).Inc()
}
