// Package metrics provides Prometheus metrics for the edge guard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sellerdesk/edgeguard/internal/patterns"
)

const namespace = "edgeguard"

// Reload results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// reasonNone labels allowed decisions, which carry no reason.
const reasonNone = "none"

// Metrics holds the guard's collectors. Create it with New; the zero
// value is not usable.
type Metrics struct {
	DecisionsTotal  *prometheus.CounterVec
	InspectDuration prometheus.Histogram
	PatternReloads  *prometheus.CounterVec
	PatternSetInfo  *prometheus.GaugeVec
	PatternsLoaded  prometheus.Gauge
	BuildInfo       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
// It panics if any collector is already registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total guard decisions by outcome and block reason",
			},
			[]string{"decision", "reason"},
		),
		InspectDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inspect_duration_seconds",
				Help:      "Time spent inspecting one request",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
			},
		),
		PatternReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pattern_reloads_total",
				Help:      "Pattern set reload attempts by source and result",
			},
			[]string{"source", "result"},
		),
		PatternSetInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pattern_set_info",
				Help:      "Active pattern set version (value is always 1)",
			},
			[]string{"version"},
		),
		PatternsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "patterns_loaded",
				Help:      "Number of patterns in the active set",
			},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "goversion"},
		),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.InspectDuration,
		m.PatternReloads,
		m.PatternSetInfo,
		m.PatternsLoaded,
		m.BuildInfo,
	)
	return m
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ObserveDecision records one guard decision.
func (m *Metrics) ObserveDecision(outcome, reason string, elapsed time.Duration) {
	if reason == "" {
		reason = reasonNone
	}
	m.DecisionsTotal.WithLabelValues(outcome, reason).Inc()
	m.InspectDuration.Observe(elapsed.Seconds())
}

// PatternReloaded records a reload attempt. Its signature matches
// patterns.ReloadHook.
func (m *Metrics) PatternReloaded(source string, set *patterns.Set, err error) {
	if err != nil {
		m.PatternReloads.WithLabelValues(source, ResultFailure).Inc()
		return
	}
	m.PatternReloads.WithLabelValues(source, ResultSuccess).Inc()
	m.SetPatternSet(set)
}

// SetPatternSet publishes the active set's version and size.
func (m *Metrics) SetPatternSet(set *patterns.Set) {
	if set == nil {
		return
	}
	m.PatternSetInfo.Reset()
	m.PatternSetInfo.WithLabelValues(set.Version()).Set(1)
	m.PatternsLoaded.Set(float64(set.Len()))
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, goVersion string) {
	m.BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Handler returns the HTTP handler exposing the metrics in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
