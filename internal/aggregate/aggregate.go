// Package aggregate folds raw workbook rows into a canonical staging
// set. Many legacy rows collapse into one task: rows sharing the
// normalized (project, title) key are merged in row order, so the same
// input always produces the same staging set.
package aggregate

import (
	"fmt"
	"strings"

	"planport/internal/domain"
)

// Build aggregates rows into a staging set with no remote identifiers
// populated. Merge rules: hours are summed, distinct non-empty
// description lines are appended in row order, and the last non-empty
// status and assignee win.
func Build(rows []domain.RawRow) (*domain.StagingSet, error) {
	set := domain.NewStagingSet()

	for _, row := range rows {
		projectKey := ProjectKey(row.Project)
		if _, ok := set.Projects[projectKey]; !ok {
			set.Projects[projectKey] = &domain.StagedProject{
				LocalKey: projectKey,
				Name:     strings.TrimSpace(row.Project),
				State:    domain.StatePending,
			}
			set.ProjectOrder = append(set.ProjectOrder, projectKey)
		}

		taskKey := TaskKey(row.Project, row.Title)
		task, ok := set.Tasks[taskKey]
		if !ok {
			task = &domain.StagedTask{
				LocalKey:   taskKey,
				ProjectKey: projectKey,
				Title:      strings.TrimSpace(row.Title),
				State:      domain.StatePending,
			}
			set.Tasks[taskKey] = task
			set.TaskOrder = append(set.TaskOrder, taskKey)
		}
		mergeRow(task, row)

		if row.Hours > 0 {
			set.TimeEntries = append(set.TimeEntries, &domain.StagedTimeEntry{
				TaskKey:  taskKey,
				Hours:    row.Hours,
				Activity: row.Group,
				LoggedAt: row.Date,
				State:    domain.StatePending,
			})
		}
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("aggregation produced inconsistent staging set: %w", err)
	}
	return set, nil
}

func mergeRow(task *domain.StagedTask, row domain.RawRow) {
	task.TotalHours += row.Hours
	task.SourceRows = append(task.SourceRows, row.Index)

	if desc := strings.TrimSpace(row.Description); desc != "" && !containsLine(task.Description, desc) {
		if task.Description == "" {
			task.Description = desc
		} else {
			task.Description += "\n" + desc
		}
	}
	if status := strings.TrimSpace(row.Status); status != "" {
		task.Status = status
	}
	if assignee := strings.TrimSpace(row.Assignee); assignee != "" {
		task.Assignee = assignee
	}
}

func containsLine(text, line string) bool {
	for _, existing := range strings.Split(text, "\n") {
		if existing == line {
			return true
		}
	}
	return false
}

// ProjectKey returns the cache key for a project name. Keys are
// kind-prefixed so a project and a task with colliding normalized
// names cannot alias in the identity cache.
func ProjectKey(project string) string {
	return "project/" + Normalize(project)
}

// TaskKey returns the aggregation identity for a (project, title) pair.
func TaskKey(project, title string) string {
	return "task/" + Normalize(project) + "|" + Normalize(title)
}

// EntryKey returns the cache key for the i-th time entry of a task.
func EntryKey(taskKey string, i int) string {
	return fmt.Sprintf("entry/%s#%d", strings.TrimPrefix(taskKey, "task/"), i)
}

// Normalize lower-cases and collapses inner whitespace. Two rows whose
// fields differ only in case or spacing describe the same entity.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
