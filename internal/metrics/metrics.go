// Package metrics exposes run outcomes as Prometheus metrics. The engine is a
// batch job, so the registry is written to a node-exporter textfile after each
// run instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rulehistory/internal/report"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	DecisionsTotal   *prometheus.CounterVec
	ProblemsTotal    *prometheus.CounterVec
	MutationsTotal   *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	LastRunTimestamp prometheus.Gauge
	LastRunSeconds   prometheus.Gauge
	LastRunConflicts prometheus.Gauge
}

// New creates all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulehistory_runs_total",
			Help: "Total number of engine runs",
		},
		[]string{"mode", "status"},
	)

	m.DecisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulehistory_decisions_total",
			Help: "Classifier decisions by kind",
		},
		[]string{"decision"},
	)

	m.ProblemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulehistory_problems_total",
			Help: "Problems reported by kind",
		},
		[]string{"kind"},
	)

	m.MutationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulehistory_mutations_total",
			Help: "Planned mutations by outcome",
		},
		[]string{"outcome"},
	)

	m.RunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rulehistory_run_duration_seconds",
			Help:    "Duration of engine runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"},
	)

	m.LastRunTimestamp = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulehistory_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		},
	)

	m.LastRunSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulehistory_last_run_duration_seconds",
			Help: "Duration of the last run in seconds",
		},
	)

	m.LastRunConflicts = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulehistory_last_run_conflicts",
			Help: "Ordering conflicts awaiting resolution after the last run",
		},
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun folds a finished run summary into the metrics.
func (m *Metrics) RecordRun(s report.Summary) {
	status := "ok"
	switch {
	case s.Fatal != "":
		status = "fatal"
	case s.Counts.Conflicts > 0:
		status = "conflicts"
	}
	m.RunsTotal.WithLabelValues(s.Mode, status).Inc()

	m.DecisionsTotal.WithLabelValues("unchanged").Add(float64(s.Counts.Unchanged))
	m.DecisionsTotal.WithLabelValues("new_version").Add(float64(s.Counts.NewVersions))
	m.DecisionsTotal.WithLabelValues("correction").Add(float64(s.Counts.Corrections))
	m.DecisionsTotal.WithLabelValues("conflict").Add(float64(s.Counts.Conflicts))

	for _, kc := range s.KindCounts() {
		m.ProblemsTotal.WithLabelValues(string(kc.Kind)).Add(float64(kc.Count))
	}

	m.MutationsTotal.WithLabelValues("planned").Add(float64(s.Counts.Planned))
	m.MutationsTotal.WithLabelValues("applied").Add(float64(s.Counts.Applied))
	m.MutationsTotal.WithLabelValues("already_applied").Add(float64(s.Counts.AlreadyApplied))

	d := s.Duration()
	m.RunDuration.WithLabelValues(s.Mode).Observe(d.Seconds())
	m.LastRunSeconds.Set(d.Seconds())
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	m.LastRunConflicts.Set(float64(s.Counts.Conflicts))
}

// WriteTextfile writes the registry in text exposition format, renaming a
// temporary file into place.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
