package pipeline

import (
	"time"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
	"github.com/JakeFAU/mikan-crawler/internal/metrics"
)

// StageReport counts the tasks of one stage. Skipped tasks were never
// scheduled because their result already exists.
type StageReport struct {
	Scheduled int `json:"scheduled" yaml:"scheduled"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

// Report summarizes a run.
type Report struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	State     State          `json:"state" yaml:"state"`
	Catalog   StageReport    `json:"catalog" yaml:"catalog"`
	Resources StageReport    `json:"resources" yaml:"resources"`
	Images    StageReport    `json:"images" yaml:"images"`
	Torrents  StageReport    `json:"torrents" yaml:"torrents"`
	Counts    crawler.Counts `json:"counts" yaml:"counts"`
	Elapsed   time.Duration  `json:"elapsed" yaml:"elapsed"`
}

// tally updates a StageReport and mirrors every outcome to the recorder.
type tally struct {
	stage    string
	report   *StageReport
	recorder Recorder
}

func (t tally) succeed() {
	t.report.Succeeded++
	t.recorder.ObserveTask(t.stage, metrics.OutcomeSucceeded)
}

func (t tally) fail() {
	t.report.Failed++
	t.recorder.ObserveTask(t.stage, metrics.OutcomeFailed)
}

func (t tally) skip() {
	t.report.Skipped++
	t.recorder.ObserveTask(t.stage, metrics.OutcomeSkipped)
}
