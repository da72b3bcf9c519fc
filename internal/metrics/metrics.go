// Package metrics records tidepods run metrics and writes them in the
// Prometheus text format, for collection through a node exporter textfile
// directory.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeNoOutput = "no_output"
)

// Recorder holds the metrics of a run. A nil *Recorder records nothing.
type Recorder struct {
	reg     *prometheus.Registry
	stages  *prometheus.HistogramVec
	points  *prometheus.GaugeVec
	engine  *prometheus.CounterVec
	lastRun *prometheus.GaugeVec
}

// New returns a recorder backed by its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		stages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tidepods_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"mode", "stage"},
		),
		points: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tidepods_points",
				Help: "Number of points tide values were predicted for.",
			},
			[]string{"mode"},
		),
		engine: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tidepods_engine_runs_total",
				Help: "Tide prediction engine invocations by outcome.",
			},
			[]string{"outcome"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tidepods_last_run_timestamp_seconds",
				Help: "Completion time of the last run.",
			},
			[]string{"mode", "status"},
		),
	}
	r.reg.MustRegister(r.stages, r.points, r.engine, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Stage starts timing a stage; call the returned func when it ends.
func (r *Recorder) Stage(mode, stage string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.stages.WithLabelValues(mode, stage).Observe(time.Since(start).Seconds())
	}
}

// Points records the number of sample points of a run.
func (r *Recorder) Points(mode string, n int) {
	if r == nil {
		return
	}
	r.points.WithLabelValues(mode).Set(float64(n))
}

// Engine counts an engine invocation.
func (r *Recorder) Engine(outcome string) {
	if r == nil {
		return
	}
	r.engine.WithLabelValues(outcome).Inc()
}

// Done records the end of a run.
func (r *Recorder) Done(mode string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	r.lastRun.WithLabelValues(mode, status).SetToCurrentTime()
}

// WriteFile writes every metric to path in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
