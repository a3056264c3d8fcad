package driver

import (
	"time"

	"planport/internal/domain"
)

// KindCounts summarizes one entity kind's outcome.
type KindCounts struct {
	Created        int `json:"created"`
	AlreadyPresent int `json:"already_present"`
	Failed         int `json:"failed"`
}

// EntityError is one per-entity failure, kept for the final report.
type EntityError struct {
	Kind     domain.EntityKind `json:"kind"`
	LocalKey string            `json:"local_key"`
	Reason   string            `json:"reason"`
}

// Report is the structured summary of one migration run.
type Report struct {
	RunID       string        `json:"run_id"`
	DryRun      bool          `json:"dry_run,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Projects    KindCounts    `json:"projects"`
	Tasks       KindCounts    `json:"tasks"`
	TimeEntries KindCounts    `json:"time_entries"`
	Errors      []EntityError `json:"errors,omitempty"`
}

// TotalCreated sums creations across all kinds.
func (r *Report) TotalCreated() int {
	return r.Projects.Created + r.Tasks.Created + r.TimeEntries.Created
}

// TotalFailed sums failures across all kinds.
func (r *Report) TotalFailed() int {
	return r.Projects.Failed + r.Tasks.Failed + r.TimeEntries.Failed
}
