// Package metrics exposes prometheus counters for compile runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// Recorder owns one registry of compile metrics. A nil Recorder ignores
// every observation.
type Recorder struct {
	registry *prometheus.Registry

	linesTotal      *prometheus.CounterVec
	filtersTotal    *prometheus.CounterVec
	diagnostics     *prometheus.CounterVec
	rulesEmitted    *prometheus.CounterVec
	rulesDropped    prometheus.Counter
	compileDuration prometheus.Histogram
	rulesLast       prometheus.Gauge
}

// New creates a recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		linesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentblock_lines_total",
			Help: "Filter list lines read, by classification",
		}, []string{"kind"}),
		filtersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentblock_filters_total",
			Help: "Filters seen at each pipeline stage",
		}, []string{"stage"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentblock_diagnostics_total",
			Help: "Diagnostics reported, by kind",
		}, []string{"kind"}),
		rulesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentblock_rules_emitted_total",
			Help: "Content-blocker rules emitted, by action",
		}, []string{"action"}),
		rulesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contentblock_rules_dropped_total",
			Help: "Rules removed by the rule ceiling",
		}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contentblock_compile_duration_seconds",
			Help:    "Wall time of a compile run",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		rulesLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "contentblock_rules",
			Help: "Rules produced by the last compile run",
		}),
	}
	r.registry.MustRegister(
		r.linesTotal,
		r.filtersTotal,
		r.diagnostics,
		r.rulesEmitted,
		r.rulesDropped,
		r.compileDuration,
		r.rulesLast,
	)
	return r
}

// Registry returns the registry the recorder writes to
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// AddLines counts classified lines
func (r *Recorder) AddLines(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.linesTotal.WithLabelValues(kind).Add(float64(n))
}

// AddFilters counts filters at a pipeline stage (parsed, unique, optimized)
func (r *Recorder) AddFilters(stage string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.filtersTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveDiagnostics counts diagnostics by kind
func (r *Recorder) ObserveDiagnostics(diags []models.Diagnostic) {
	if r == nil {
		return
	}
	for _, d := range diags {
		r.diagnostics.WithLabelValues(d.Kind.String()).Inc()
	}
}

// ObserveRules counts emitted rules by action and records the total
func (r *Recorder) ObserveRules(rules []models.WebKitRule, dropped int) {
	if r == nil {
		return
	}
	for _, rule := range rules {
		r.rulesEmitted.WithLabelValues(rule.Action.Type).Inc()
	}
	r.rulesDropped.Add(float64(dropped))
	r.rulesLast.Set(float64(len(rules)))
}

// ObserveDuration records how long a compile run took
func (r *Recorder) ObserveDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.compileDuration.Observe(d.Seconds())
}

// WriteTextfile writes the metrics in the node-exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile, path:%s, err:%w", path, err)
	}
	return nil
}
