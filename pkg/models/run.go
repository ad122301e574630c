package models

import "time"

type RunMode string

const (
	RunModeSequential RunMode = "sequential"
	RunModeConcurrent RunMode = "concurrent"
	RunModeSingle     RunMode = "single"
)

// Run summarizes one execution pass over a set of tasks.
type Run struct {
	ID             string        `json:"id"`
	Mode           RunMode       `json:"mode"`
	Selected       int           `json:"selected"`
	Completed      int           `json:"completed"`
	Cancelled      int           `json:"cancelled"`
	Skipped        int           `json:"skipped"`
	// Failed counts units whose countdown finished but whose task could
	// not be marked completed.
	Failed         int           `json:"failed"`
	Waves          int           `json:"waves"`
	MaxConcurrency int           `json:"max_concurrency"`
	TaskIDs        []int         `json:"task_ids"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Elapsed        time.Duration `json:"elapsed"`
	Interrupted    bool          `json:"interrupted"`
}
