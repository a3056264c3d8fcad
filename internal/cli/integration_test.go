package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"planport/internal/testutil"
)

// fakePM is an in-memory PM server speaking the subset of the API the
// client uses, including the two-phase form protocol.
type fakePM struct {
	mu       sync.Mutex
	nextID   int64
	projects map[int64]string
	tasks    map[int64]map[string]interface{}
	locks    map[int64]int64
	entries  map[int64][]float64

	taskCreates int
}

func newFakePM() *fakePM {
	return &fakePM{
		nextID:   0,
		projects: make(map[int64]string),
		tasks:    make(map[int64]map[string]interface{}),
		locks:    make(map[int64]int64),
		entries:  make(map[int64][]float64),
	}
}

func (f *fakePM) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/projects", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			list := []map[string]interface{}{}
			for id, name := range f.projects {
				list = append(list, map[string]interface{}{"id": id, "name": name})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"projects": list})
		case http.MethodPost:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.nextID++
			f.projects[f.nextID] = body["name"]
			json.NewEncoder(w).Encode(map[string]interface{}{"id": f.nextID})
		}
	})
	mux.HandleFunc("/api/v3/projects/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := strings.TrimPrefix(r.URL.Path, "/api/v3/projects/")
		switch {
		case strings.HasSuffix(path, "/work_packages/form"):
			var fields map[string]interface{}
			json.NewDecoder(r.Body).Decode(&fields)
			if fields["subject"] == "" || fields["subject"] == nil {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"payload":           map[string]interface{}{},
					"validation_errors": map[string]string{"subject": "must not be blank"},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"payload":           fields,
				"validation_errors": map[string]string{},
			})
		case strings.HasSuffix(path, "/work_packages"):
			var payload map[string]interface{}
			json.NewDecoder(r.Body).Decode(&payload)
			f.nextID++
			f.tasks[f.nextID] = payload
			f.locks[f.nextID] = 0
			f.taskCreates++
			json.NewEncoder(w).Encode(map[string]interface{}{"id": f.nextID, "lock_version": 0})
		case r.Method == http.MethodGet:
			var id int64
			fmt.Sscanf(path, "%d", &id)
			name, ok := f.projects[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "name": name})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/api/v3/work_packages/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		path := strings.TrimPrefix(r.URL.Path, "/api/v3/work_packages/")
		var id int64
		fmt.Sscanf(path, "%d", &id)
		task, ok := f.tasks[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch {
		case strings.HasSuffix(path, "/time_entries") && r.Method == http.MethodPost:
			var fields map[string]interface{}
			json.NewDecoder(r.Body).Decode(&fields)
			hours, _ := fields["hours"].(float64)
			f.entries[id] = append(f.entries[id], hours)
			f.nextID++
			json.NewEncoder(w).Encode(map[string]interface{}{"id": f.nextID})
		case strings.HasSuffix(path, "/time_entries") && r.Method == http.MethodGet:
			list := []map[string]interface{}{}
			for i, hours := range f.entries[id] {
				list = append(list, map[string]interface{}{"id": i + 1, "hours": hours})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"time_entries": list})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":           id,
				"subject":      task["subject"],
				"status":       task["status"],
				"lock_version": f.locks[id],
			})
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

// runCLI executes a planport command with captured output.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

const testWorkbook = `project,task,assignee,status,hours,description,date
Website,Fix header,anna,open,3.5,Broken on mobile,2024-03-01
Website,Fix header,anna,done,2.0,Also on tablet,2024-03-02
Backend,Add index,ben,open,1.5,Slow queries,2024-03-03
`

func TestPlanCommand(t *testing.T) {
	workbook := testutil.Workbook(t, testWorkbook)

	stdout, _, err := runCLI(t, "plan", workbook, "--output", "json")
	if err != nil {
		t.Fatal(err)
	}
	var summary map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("plan output is not JSON: %v\n%s", err, stdout)
	}
	if summary["projects"].(float64) != 2 || summary["tasks"].(float64) != 2 {
		t.Errorf("unexpected summary: %v", summary)
	}
	if summary["total_hours"].(float64) != 7.0 {
		t.Errorf("expected 7.0 total hours, got %v", summary["total_hours"])
	}
}

func TestMigrateThenRerunIsIdempotent(t *testing.T) {
	pm := newFakePM()
	server := httptest.NewServer(pm.handler())
	defer server.Close()

	workbook := testutil.Workbook(t, testWorkbook)
	cachePath := filepath.Join(t.TempDir(), "identity.json")
	t.Setenv("PLANPORT_BASE_URL", server.URL)
	t.Setenv("PLANPORT_API_TOKEN", "tok")

	stdout, _, err := runCLI(t, "migrate", workbook, "--cache", cachePath, "--output", "json", "--quiet")
	if err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, stdout)
	}
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("migrate output is not JSON: %v\n%s", err, stdout)
	}
	tasks := report["tasks"].(map[string]interface{})
	if tasks["created"].(float64) != 2 {
		t.Errorf("expected 2 tasks created, got %v", tasks)
	}
	if pm.taskCreates != 2 {
		t.Errorf("expected 2 remote task creates, got %d", pm.taskCreates)
	}

	// Rerun with the same cache: no new creations.
	stdout, _, err = runCLI(t, "migrate", workbook, "--cache", cachePath, "--output", "json", "--quiet")
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatal(err)
	}
	tasks = report["tasks"].(map[string]interface{})
	if created := tasks["created"].(float64); created != 0 {
		t.Errorf("expected 0 created on rerun, got %v", created)
	}
	if pm.taskCreates != 2 {
		t.Errorf("rerun duplicated remote tasks: %d creates", pm.taskCreates)
	}
}

func TestVerifyAgainstAPI(t *testing.T) {
	pm := newFakePM()
	server := httptest.NewServer(pm.handler())
	defer server.Close()

	workbook := testutil.Workbook(t, testWorkbook)
	cachePath := filepath.Join(t.TempDir(), "identity.json")
	t.Setenv("PLANPORT_BASE_URL", server.URL)

	if _, _, err := runCLI(t, "migrate", workbook, "--cache", cachePath, "--quiet"); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	stdout, _, err := runCLI(t, "verify", workbook, "--cache", cachePath, "--source", "api", "--output", "json", "--quiet")
	if err != nil {
		t.Fatalf("verify failed: %v\n%s", err, stdout)
	}
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatal(err)
	}
	// 2 projects + 2 tasks all confirmed.
	if matched := report["matched"].(float64); matched != 4 {
		t.Errorf("expected matched=4, got %v\n%s", matched, stdout)
	}
	if missing := report["missing"].(float64); missing != 0 {
		t.Errorf("expected missing=0, got %v", missing)
	}
}

func TestCacheLsAndRm(t *testing.T) {
	pm := newFakePM()
	server := httptest.NewServer(pm.handler())
	defer server.Close()

	workbook := testutil.Workbook(t, testWorkbook)
	cachePath := filepath.Join(t.TempDir(), "identity.json")
	t.Setenv("PLANPORT_BASE_URL", server.URL)

	if _, _, err := runCLI(t, "migrate", workbook, "--cache", cachePath, "--quiet"); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	stdout, _, err := runCLI(t, "cache", "ls", "--cache", cachePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "project/website") {
		t.Errorf("cache ls missing project entry:\n%s", stdout)
	}

	if _, _, err := runCLI(t, "cache", "rm", "project/website", "--cache", cachePath); err != nil {
		t.Fatal(err)
	}
	stdout, _, err = runCLI(t, "cache", "ls", "--cache", cachePath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stdout, "project/website") {
		t.Errorf("removed entry still listed:\n%s", stdout)
	}

	if _, _, err := runCLI(t, "cache", "rm", "does/not-exist", "--cache", cachePath); err == nil {
		t.Error("expected error removing unknown key")
	}
}

func TestMigrateRequiresBaseURL(t *testing.T) {
	workbook := testutil.Workbook(t, testWorkbook)
	t.Setenv("PLANPORT_BASE_URL", "")
	if _, _, err := runCLI(t, "migrate", workbook, "--cache", filepath.Join(t.TempDir(), "c.json"), "--quiet"); err == nil {
		t.Error("expected error without base URL")
	}
}
