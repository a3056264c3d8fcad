package driver

import (
	"planport/internal/domain"
	"planport/internal/remote"
)

// taskFields builds the remote payload for a staged task. The status
// label is canonicalized; the remote form phase does any further
// coercion.
func taskFields(task *domain.StagedTask) remote.TaskFields {
	return remote.TaskFields{
		Title:          task.Title,
		Description:    task.Description,
		Status:         domain.CanonicalStatus(task.Status),
		Assignee:       task.Assignee,
		EstimatedHours: task.TotalHours,
	}
}

// entryFields builds the remote payload for a staged time entry.
func entryFields(entry *domain.StagedTimeEntry) remote.TimeEntryFields {
	fields := remote.TimeEntryFields{
		Hours:    entry.Hours,
		Activity: entry.Activity,
	}
	if !entry.LoggedAt.IsZero() {
		fields.SpentOn = entry.LoggedAt.Format("2006-01-02")
	}
	return fields
}
