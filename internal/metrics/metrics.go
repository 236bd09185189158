// Package metrics exposes the outcome of a harness run as Prometheus
// metrics, written to a node-exporter textfile after each run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the metrics of harness runs in a private registry.
type Collector struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
	stageSeconds  *prometheus.GaugeVec
	lockWait      *prometheus.GaugeVec
	minPValue     *prometheus.GaugeVec
	columns       *prometheus.GaugeVec
	perRunSeconds *prometheus.GaugeVec
	slowdown      *prometheus.GaugeVec
}

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simregress_runs_total",
			Help: "Harness runs by test, mode and outcome",
		}, []string{"test", "mode", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_last_run_success",
			Help: "1 if the most recent run of the test passed, else 0",
		}, []string{"test"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_last_run_timestamp_seconds",
			Help: "Unix time the most recent run of the test finished",
		}, []string{"test"}),
		stageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_stage_duration_seconds",
			Help: "Wall time spent in each stage of the most recent run",
		}, []string{"test", "stage"}),
		lockWait: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_lock_wait_seconds",
			Help: "Time spent waiting for the update lock",
		}, []string{"test"}),
		minPValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_min_pvalue",
			Help: "Smallest KS p-value among compared columns",
		}, []string{"test"}),
		columns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_columns_compared",
			Help: "Number of summary columns compared",
		}, []string{"test"}),
		perRunSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_cpu_seconds_per_run",
			Help: "CPU seconds per simulation",
		}, []string{"test", "build"}),
		slowdown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "simregress_slowdown_ratio",
			Help: "Candidate over reference CPU time per run",
		}, []string{"test"}),
	}
	c.registry.MustRegister(
		c.runs,
		c.lastSuccess,
		c.lastRun,
		c.stageSeconds,
		c.lockWait,
		c.minPValue,
		c.columns,
		c.perRunSeconds,
		c.slowdown,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RunFinished records the outcome of one run.
func (c *Collector) RunFinished(test, mode string, err error, at time.Time) {
	outcome := "pass"
	success := 1.0
	if err != nil {
		outcome = "fail"
		success = 0
	}
	c.runs.WithLabelValues(test, mode, outcome).Inc()
	c.lastSuccess.WithLabelValues(test).Set(success)
	c.lastRun.WithLabelValues(test).Set(float64(at.Unix()))
}

// StageDone records how long a stage took.
func (c *Collector) StageDone(test, stage string, d time.Duration) {
	c.stageSeconds.WithLabelValues(test, stage).Set(d.Seconds())
}

// LockWaited records the time spent acquiring the lock.
func (c *Collector) LockWaited(test string, d time.Duration) {
	c.lockWait.WithLabelValues(test).Set(d.Seconds())
}

// Compared records the equivalence outcome.
func (c *Collector) Compared(test string, columns int, minP float64) {
	c.columns.WithLabelValues(test).Set(float64(columns))
	c.minPValue.WithLabelValues(test).Set(minP)
}

// Timed records per-run CPU times and their ratio.
func (c *Collector) Timed(test string, refPerRun, candPerRun, ratio float64) {
	c.perRunSeconds.WithLabelValues(test, "reference").Set(refPerRun)
	c.perRunSeconds.WithLabelValues(test, "candidate").Set(candPerRun)
	c.slowdown.WithLabelValues(test).Set(ratio)
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
