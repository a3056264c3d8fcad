package domain

import (
	"testing"
	"time"
)

func TestStagingSetOrdering(t *testing.T) {
	set := NewStagingSet()
	set.Projects["alpha"] = &StagedProject{LocalKey: "alpha", Name: "Alpha", State: StatePending}
	set.Projects["beta"] = &StagedProject{LocalKey: "beta", Name: "Beta", State: StatePending}
	set.ProjectOrder = []string{"beta", "alpha"}

	projects := set.OrderedProjects()
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if projects[0].Name != "Beta" || projects[1].Name != "Alpha" {
		t.Errorf("order not preserved: got %s, %s", projects[0].Name, projects[1].Name)
	}
}

func TestEntriesForTask(t *testing.T) {
	set := NewStagingSet()
	set.TimeEntries = []*StagedTimeEntry{
		{TaskKey: "a", Hours: 1.0, LoggedAt: time.Now()},
		{TaskKey: "b", Hours: 2.0, LoggedAt: time.Now()},
		{TaskKey: "a", Hours: 3.0, LoggedAt: time.Now()},
	}

	entries := set.EntriesForTask("a")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for task a, got %d", len(entries))
	}
	if entries[0].Hours != 1.0 || entries[1].Hours != 3.0 {
		t.Errorf("entry order not preserved: got %v, %v", entries[0].Hours, entries[1].Hours)
	}
}

func TestValidateCatchesDanglingReferences(t *testing.T) {
	set := NewStagingSet()
	set.Projects["p"] = &StagedProject{LocalKey: "p", Name: "P"}
	set.ProjectOrder = []string{"p"}
	set.Tasks["t"] = &StagedTask{LocalKey: "t", ProjectKey: "missing", Title: "T"}
	set.TaskOrder = []string{"t"}

	if err := set.Validate(); err == nil {
		t.Error("expected validation error for dangling project key")
	}

	set.Tasks["t"].ProjectKey = "p"
	if err := set.Validate(); err != nil {
		t.Errorf("expected valid set, got: %v", err)
	}

	set.TimeEntries = append(set.TimeEntries, &StagedTimeEntry{TaskKey: "nope", Hours: 1})
	if err := set.Validate(); err == nil {
		t.Error("expected validation error for dangling task key")
	}
}

func TestValidateEntityKind(t *testing.T) {
	for _, kind := range []string{"project", "task", "time_entry"} {
		if err := ValidateEntityKind(kind); err != nil {
			t.Errorf("kind %q should be valid: %v", kind, err)
		}
	}
	if err := ValidateEntityKind("widget"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
