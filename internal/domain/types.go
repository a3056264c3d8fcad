package domain

import (
	"time"
)

// EntityKind distinguishes the three migratable record types.
type EntityKind string

const (
	KindProject   EntityKind = "project"
	KindTask      EntityKind = "task"
	KindTimeEntry EntityKind = "time_entry"
)

// EntityState tracks where a staged entity is in the migration lifecycle.
type EntityState string

const (
	StatePending  EntityState = "pending"
	StateCreating EntityState = "creating"
	StateLinked   EntityState = "linked"
	StateFailed   EntityState = "failed"
)

// RawRow is one parsed workbook line. Immutable once parsed; rows that
// fail parsing never become RawRows.
type RawRow struct {
	Index       int // 1-based workbook row number, for error attribution
	Project     string
	Title       string
	Group       string
	Assignee    string
	Status      string
	Hours       float64
	Description string
	Date        time.Time
}

// StagedProject is one remote project to ensure exists.
type StagedProject struct {
	LocalKey string      `json:"local_key"`
	Name     string      `json:"name"`
	RemoteID *int64      `json:"remote_id,omitempty"`
	State    EntityState `json:"state"`
	Error    string      `json:"error,omitempty"`
}

// StagedTask is one canonical work package, merged from one or more rows.
type StagedTask struct {
	LocalKey    string      `json:"local_key"`
	ProjectKey  string      `json:"project_key"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Assignee    string      `json:"assignee,omitempty"`
	TotalHours  float64     `json:"total_hours"`
	SourceRows  []int       `json:"source_rows,omitempty"`
	RemoteID    *int64      `json:"remote_id,omitempty"`
	LockVersion *int64      `json:"lock_version,omitempty"`
	State       EntityState `json:"state"`
	Error       string      `json:"error,omitempty"`
}

// StagedTimeEntry is one logged-time record for a task. Created remotely
// only after the owning task is linked.
type StagedTimeEntry struct {
	TaskKey  string      `json:"task_key"`
	Hours    float64     `json:"hours"`
	Activity string      `json:"activity,omitempty"`
	LoggedAt time.Time   `json:"logged_at"`
	RemoteID *int64      `json:"remote_id,omitempty"`
	State    EntityState `json:"state"`
	Error    string      `json:"error,omitempty"`
}

// StagingSet is the aggregate root for one migration run. Maps are keyed
// by local key; the ordered slices preserve first-seen row order so that
// identical input always produces identical processing order.
type StagingSet struct {
	Projects    map[string]*StagedProject
	Tasks       map[string]*StagedTask
	TimeEntries []*StagedTimeEntry

	ProjectOrder []string
	TaskOrder    []string
}

// NewStagingSet returns an empty staging set.
func NewStagingSet() *StagingSet {
	return &StagingSet{
		Projects: make(map[string]*StagedProject),
		Tasks:    make(map[string]*StagedTask),
	}
}

// OrderedProjects returns projects in first-seen order.
func (s *StagingSet) OrderedProjects() []*StagedProject {
	out := make([]*StagedProject, 0, len(s.ProjectOrder))
	for _, key := range s.ProjectOrder {
		out = append(out, s.Projects[key])
	}
	return out
}

// OrderedTasks returns tasks in first-seen order.
func (s *StagingSet) OrderedTasks() []*StagedTask {
	out := make([]*StagedTask, 0, len(s.TaskOrder))
	for _, key := range s.TaskOrder {
		out = append(out, s.Tasks[key])
	}
	return out
}

// EntriesForTask returns the time entries owned by the given task key,
// in staging order.
func (s *StagingSet) EntriesForTask(taskKey string) []*StagedTimeEntry {
	var out []*StagedTimeEntry
	for _, entry := range s.TimeEntries {
		if entry.TaskKey == taskKey {
			out = append(out, entry)
		}
	}
	return out
}
