// Package verify reconciles a migrated staging set against the target
// system. It is strictly read-only: the ground truth is fetched, never
// touched.
//
// The ground truth is pluggable: the live API and a direct read of the
// target backend's database are both Sources. The two count time-entry
// hours the same way (sum of per-entry hours for the task), so a
// report from either uses the same comparison criteria.
package verify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"planport/internal/domain"
	"planport/internal/remote"
)

// hoursTolerance absorbs float accumulation noise when comparing
// summed hours.
const hoursTolerance = 0.001

// Source is a read path into the target system.
type Source interface {
	// Project returns the project or a remote.NotFoundError.
	Project(ctx context.Context, id int64) (*remote.ProjectRecord, error)
	// Task returns the work package or a remote.NotFoundError.
	Task(ctx context.Context, id int64) (*remote.TaskRecord, error)
	// TaskHours returns the summed time-entry hours logged on the task.
	TaskHours(ctx context.Context, id int64) (float64, error)
}

// Outcome classifies one verified entity.
type Outcome string

const (
	OutcomeMatched    Outcome = "matched"
	OutcomeMismatched Outcome = "mismatched"
	OutcomeMissing    Outcome = "missing"
	OutcomeUnlinked   Outcome = "unlinked"
)

// FieldDiff is one field-level discrepancy on a mismatched task.
type FieldDiff struct {
	Field  string `json:"field"`
	Staged string `json:"staged"`
	Remote string `json:"remote"`
	Diff   string `json:"diff,omitempty"`
}

// TaskResult is the verification outcome for one staged task.
type TaskResult struct {
	LocalKey string      `json:"local_key"`
	Title    string      `json:"title"`
	RemoteID int64       `json:"remote_id,omitempty"`
	Outcome  Outcome     `json:"outcome"`
	Diffs    []FieldDiff `json:"diffs,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// ProjectResult is the verification outcome for one staged project.
type ProjectResult struct {
	LocalKey string  `json:"local_key"`
	Name     string  `json:"name"`
	RemoteID int64   `json:"remote_id,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
}

// Report is the discrepancy report for one verification pass.
type Report struct {
	RunID      string    `json:"run_id"`
	SourceName string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Matched    int `json:"matched"`
	Mismatched int `json:"mismatched"`
	Missing    int `json:"missing"`
	Unlinked   int `json:"unlinked"`

	Projects []ProjectResult `json:"projects"`
	Tasks    []TaskResult    `json:"tasks"`
}

// Engine verifies one staging set against one source.
type Engine struct {
	source     Source
	sourceName string
}

// NewEngine returns an engine reading ground truth from source.
// sourceName is recorded on the report ("api" or "store").
func NewEngine(source Source, sourceName string) *Engine {
	return &Engine{source: source, sourceName: sourceName}
}

// Run verifies every linked project and task in the set. Tasks without
// a remote id are reported as unlinked rather than failed: they were
// never migrated, so there is nothing to compare.
func (e *Engine) Run(ctx context.Context, set *domain.StagingSet) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		SourceName: e.sourceName,
		StartedAt:  time.Now().UTC(),
	}

	for _, project := range set.OrderedProjects() {
		result, err := e.verifyProject(ctx, project)
		if err != nil {
			return nil, err
		}
		report.Projects = append(report.Projects, *result)
		report.tally(result.Outcome)
	}

	for _, task := range set.OrderedTasks() {
		result, err := e.verifyTask(ctx, set, task)
		if err != nil {
			return nil, err
		}
		report.Tasks = append(report.Tasks, *result)
		report.tally(result.Outcome)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func (r *Report) tally(outcome Outcome) {
	switch outcome {
	case OutcomeMatched:
		r.Matched++
	case OutcomeMismatched:
		r.Mismatched++
	case OutcomeMissing:
		r.Missing++
	case OutcomeUnlinked:
		r.Unlinked++
	}
}

func (e *Engine) verifyProject(ctx context.Context, project *domain.StagedProject) (*ProjectResult, error) {
	result := &ProjectResult{LocalKey: project.LocalKey, Name: project.Name}
	if project.RemoteID == nil {
		result.Outcome = OutcomeUnlinked
		return result, nil
	}
	result.RemoteID = *project.RemoteID

	_, err := e.source.Project(ctx, *project.RemoteID)
	if remote.IsNotFound(err) {
		result.Outcome = OutcomeMissing
		result.Reason = "project no longer exists in target"
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify project %q: %w", project.Name, err)
	}
	result.Outcome = OutcomeMatched
	return result, nil
}

func (e *Engine) verifyTask(ctx context.Context, set *domain.StagingSet, task *domain.StagedTask) (*TaskResult, error) {
	result := &TaskResult{LocalKey: task.LocalKey, Title: task.Title}
	if task.RemoteID == nil {
		result.Outcome = OutcomeUnlinked
		return result, nil
	}
	result.RemoteID = *task.RemoteID

	record, err := e.source.Task(ctx, *task.RemoteID)
	if remote.IsNotFound(err) {
		result.Outcome = OutcomeMissing
		result.Reason = "work package no longer exists in target (deleted externally or cache is stale)"
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify task %q: %w", task.Title, err)
	}

	if record.Title != task.Title {
		result.Diffs = append(result.Diffs, FieldDiff{
			Field:  "title",
			Staged: task.Title,
			Remote: record.Title,
			Diff:   unifiedDiff(task.Title, record.Title),
		})
	}
	if task.Status != "" && !domain.StatusEqual(task.Status, record.Status) {
		result.Diffs = append(result.Diffs, FieldDiff{
			Field:  "status",
			Staged: domain.CanonicalStatus(task.Status),
			Remote: record.Status,
		})
	}

	stagedHours := sumStagedHours(set, task.LocalKey)
	remoteHours, err := e.source.TaskHours(ctx, *task.RemoteID)
	if err != nil && !remote.IsNotFound(err) {
		return nil, fmt.Errorf("verify task %q hours: %w", task.Title, err)
	}
	if math.Abs(stagedHours-remoteHours) > hoursTolerance {
		result.Diffs = append(result.Diffs, FieldDiff{
			Field:  "hours",
			Staged: fmt.Sprintf("%.2f", stagedHours),
			Remote: fmt.Sprintf("%.2f", remoteHours),
		})
	}

	if len(result.Diffs) > 0 {
		result.Outcome = OutcomeMismatched
	} else {
		result.Outcome = OutcomeMatched
	}
	return result, nil
}

// sumStagedHours totals the staged time entries for a task. Tasks can
// carry hours without entries (zero-hour rows merged in), so the task's
// own total is the fallback.
func sumStagedHours(set *domain.StagingSet, taskKey string) float64 {
	entries := set.EntriesForTask(taskKey)
	if len(entries) == 0 {
		return set.Tasks[taskKey].TotalHours
	}
	var total float64
	for _, entry := range entries {
		total += entry.Hours
	}
	return total
}

func unifiedDiff(staged, current string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(staged),
		B:        difflib.SplitLines(current),
		FromFile: "staged",
		ToFile:   "remote",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}
