package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"planport/internal/domain"
)

func tempCachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "identity.json")
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	c, err := Open(tempCachePath(t))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestRecordAndLookupSurviveReopen(t *testing.T) {
	path := tempCachePath(t)
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Record("project/website", 42, domain.KindProject); err != nil {
		t.Fatal(err)
	}
	if err := c.Record("task/website|fix header", 101, domain.KindTask); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, ok := reopened.Lookup("project/website")
	if !ok || id != 42 {
		t.Errorf("expected project id 42 after reopen, got %d (found=%v)", id, ok)
	}
	id, ok = reopened.Lookup("task/website|fix header")
	if !ok || id != 101 {
		t.Errorf("expected task id 101 after reopen, got %d (found=%v)", id, ok)
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	c, err := Open(tempCachePath(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Record("task/x", 7, domain.KindTask); err != nil {
		t.Fatal(err)
	}
	if err := c.Record("task/x", 7, domain.KindTask); err != nil {
		t.Errorf("re-recording the same mapping should be a no-op: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestRecordConflictingIDFails(t *testing.T) {
	c, err := Open(tempCachePath(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Record("task/x", 7, domain.KindTask); err != nil {
		t.Fatal(err)
	}
	if err := c.Record("task/x", 8, domain.KindTask); err == nil {
		t.Error("expected conflict error for differing remote id")
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	path := tempCachePath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Open(path)
	if err != nil {
		t.Fatalf("corrupt cache must not abort the run: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
	// A recovered cache must still be writable.
	if err := c.Record("task/x", 9, domain.KindTask); err != nil {
		t.Errorf("record after corruption recovery failed: %v", err)
	}
}

func TestCorruptEntryIsDroppedNotFatal(t *testing.T) {
	path := tempCachePath(t)
	content := `{
  "version": 1,
  "entries": {
    "task/good": {"remote_id": 5, "kind": "task"},
    "task/bad-id": {"remote_id": 0, "kind": "task"},
    "task/bad-kind": {"remote_id": 6, "kind": "widget"}
  }
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 surviving entry, got %d", c.Len())
	}
	if _, ok := c.Lookup("task/good"); !ok {
		t.Error("good entry should survive")
	}
	if _, ok := c.Lookup("task/bad-id"); ok {
		t.Error("entry with zero remote id should be dropped")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	path := tempCachePath(t)
	content := `{
  "version": 2,
  "generated_by": "future-tool",
  "entries": {
    "project/p": {"remote_id": 3, "kind": "project", "extra": {"a": 1}}
  }
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := c.Lookup("project/p"); !ok || id != 3 {
		t.Errorf("expected forward-compatible load, got id=%d found=%v", id, ok)
	}
}

func TestRemoveForcesRecreation(t *testing.T) {
	path := tempCachePath(t)
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Record("task/x", 7, domain.KindTask); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove("task/x"); err != nil {
		t.Fatal(err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reopened.Lookup("task/x"); ok {
		t.Error("removed entry should not survive reopen")
	}
}

func TestConcurrentRecordsAreSerialized(t *testing.T) {
	c, err := Open(tempCachePath(t))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "task/" + string(rune('a'+n%10))
			// Two goroutines per key record the same mapping; the
			// second must see a no-op, never a conflict.
			if err := c.Record(key, int64(n%10+1), domain.KindTask); err != nil {
				t.Errorf("concurrent record failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 10 {
		t.Errorf("expected 10 distinct entries, got %d", c.Len())
	}
}
