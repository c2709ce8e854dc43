// Package metrics exposes Prometheus collectors for a crawl run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Task outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Recorder owns the run's collectors. A nil Recorder discards observations.
type Recorder struct {
	stageTasks   *prometheus.CounterVec
	storeRows    *prometheus.CounterVec
	diskUsage    prometheus.Gauge
	removedFiles prometheus.Counter
	runDuration  prometheus.Gauge
}

// NewRecorder registers the collectors against reg, or the default registerer when nil.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		stageTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mikan_stage_tasks_total",
			Help: "Pipeline tasks partitioned by stage and outcome.",
		}, []string{"stage", "outcome"}),
		storeRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mikan_store_rows_total",
			Help: "Rows offered to the store partitioned by table and result.",
		}, []string{"table", "result"}),
		diskUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mikan_disk_usage_bytes",
			Help: "Bytes used by the download directories at the last sweep.",
		}),
		removedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mikan_retention_removed_files_total",
			Help: "Files deleted by the retention sweeper.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mikan_run_duration_seconds",
			Help: "Wall time of the last crawl run.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		r.stageTasks,
		r.storeRows,
		r.diskUsage,
		r.removedFiles,
		r.runDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return r, nil
}

// ObserveTask counts one finished task of a stage.
func (r *Recorder) ObserveTask(stage, outcome string) {
	if r == nil {
		return
	}
	r.stageTasks.WithLabelValues(stage, outcome).Inc()
}

// ObserveRows counts n rows written to table with the given result
// ("written", "ignored" or "failed").
func (r *Recorder) ObserveRows(table, result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.storeRows.WithLabelValues(table, result).Add(float64(n))
}

// SetDiskUsage records the measured size of the download directories.
func (r *Recorder) SetDiskUsage(bytes int64) {
	if r == nil {
		return
	}
	r.diskUsage.Set(float64(bytes))
}

// AddRemovedFiles counts files deleted by a sweep.
func (r *Recorder) AddRemovedFiles(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.removedFiles.Add(float64(n))
}

// ObserveRunDuration records the wall time of a run.
func (r *Recorder) ObserveRunDuration(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// Push sends everything in g to a Pushgateway under job. An empty url is a no-op.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "mikan"
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
