package domain

import (
	"fmt"
)

// Validate checks the staging set's referential invariants: every task
// must reference a known project and every time entry a known task.
// A violation means the aggregator produced an inconsistent set, which
// is a bug rather than bad input.
func (s *StagingSet) Validate() error {
	for _, key := range s.TaskOrder {
		task, ok := s.Tasks[key]
		if !ok {
			return fmt.Errorf("task order references unknown key %q", key)
		}
		if _, ok := s.Projects[task.ProjectKey]; !ok {
			return fmt.Errorf("task %q references unknown project key %q", key, task.ProjectKey)
		}
	}
	for i, entry := range s.TimeEntries {
		if _, ok := s.Tasks[entry.TaskKey]; !ok {
			return fmt.Errorf("time entry %d references unknown task key %q", i, entry.TaskKey)
		}
	}
	if len(s.ProjectOrder) != len(s.Projects) {
		return fmt.Errorf("project order has %d keys, map has %d", len(s.ProjectOrder), len(s.Projects))
	}
	if len(s.TaskOrder) != len(s.Tasks) {
		return fmt.Errorf("task order has %d keys, map has %d", len(s.TaskOrder), len(s.Tasks))
	}
	return nil
}

// ValidateEntityKind validates a cache entity kind.
func ValidateEntityKind(kind string) error {
	switch EntityKind(kind) {
	case KindProject, KindTask, KindTimeEntry:
		return nil
	default:
		return fmt.Errorf("invalid entity kind: must be one of: project, task, time_entry")
	}
}
