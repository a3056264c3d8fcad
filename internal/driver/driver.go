// Package driver orchestrates one migration run: parser output is
// aggregated into a staging set, and the driver materializes that set
// against the remote API, consulting the identity cache before every
// creation so interrupted runs resume without duplicating work.
//
// Ordering is strict across kinds (all projects, then all tasks, then
// all time entries) because tasks and time entries carry foreign
// references. Within a kind, independent entities are processed by a
// bounded worker pool. A failed entity takes its dependents down with
// it but never the run; only authentication failure aborts everything.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"planport/internal/aggregate"
	"planport/internal/domain"
	"planport/internal/remote"
)

// RemoteAPI is the slice of the remote client the driver needs.
type RemoteAPI interface {
	ListProjects(ctx context.Context) ([]remote.ProjectRecord, error)
	CreateProject(ctx context.Context, name string) (int64, error)
	CreateTask(ctx context.Context, projectID int64, fields remote.TaskFields) (int64, int64, error)
	UpdateTask(ctx context.Context, id int64, lockVersion int64, fields remote.TaskFields) (int64, error)
	CreateTimeEntry(ctx context.Context, taskID int64, fields remote.TimeEntryFields) (int64, error)
	GetTask(ctx context.Context, id int64) (*remote.TaskRecord, error)
}

// IdentityCache is the driver's view of the resumable cache. Record
// must flush durably before returning.
type IdentityCache interface {
	Lookup(localKey string) (int64, bool)
	Record(localKey string, remoteID int64, kind domain.EntityKind) error
}

// Options configures a run.
type Options struct {
	Jobs         int       // worker pool size within a kind; <=1 means sequential
	DryRun       bool      // count work without any remote calls
	UpdateLinked bool      // push staged fields to already-linked tasks
	Progress     io.Writer // human progress stream; nil discards
}

// Driver runs one migration. Construct a fresh driver per run.
type Driver struct {
	api   RemoteAPI
	cache IdentityCache
	opts  Options

	mu       sync.Mutex
	report   *Report
	fatalErr error
}

// New returns a driver owning the given collaborators for one run.
func New(api RemoteAPI, cache IdentityCache, opts Options) *Driver {
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	return &Driver{api: api, cache: cache, opts: opts}
}

// Run migrates the staging set. The returned report is valid even when
// err is non-nil; err is set only for run-fatal conditions
// (authentication failure, cancellation, or an unusable staging set).
func (d *Driver) Run(ctx context.Context, set *domain.StagingSet) (*Report, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	d.report = &Report{
		RunID:     uuid.NewString(),
		DryRun:    d.opts.DryRun,
		StartedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.progressf("migrating %d projects, %d tasks, %d time entries (run %s)",
		len(set.Projects), len(set.Tasks), len(set.TimeEntries), d.report.RunID)

	d.runProjects(ctx, set, cancel)
	d.runTasks(ctx, set, cancel)
	d.runTimeEntries(ctx, set, cancel)

	d.report.FinishedAt = time.Now().UTC()

	d.mu.Lock()
	fatal := d.fatalErr
	d.mu.Unlock()
	if fatal != nil {
		return d.report, fatal
	}
	if err := ctx.Err(); err != nil {
		return d.report, err
	}
	d.progressf("done: %d created, %d already present, %d failed",
		d.report.TotalCreated(),
		d.report.Projects.AlreadyPresent+d.report.Tasks.AlreadyPresent+d.report.TimeEntries.AlreadyPresent,
		d.report.TotalFailed())
	return d.report, nil
}

// runProjects links or creates every staged project. Projects are few
// and other kinds depend on all of them, so this phase is sequential.
func (d *Driver) runProjects(ctx context.Context, set *domain.StagingSet, cancel context.CancelFunc) {
	var existing map[string]int64 // normalized name -> remote id, fetched lazily

	for _, project := range set.OrderedProjects() {
		if ctx.Err() != nil {
			return
		}

		if remoteID, ok := d.cache.Lookup(project.LocalKey); ok {
			d.link(&project.State, &project.RemoteID, remoteID)
			d.count(domain.KindProject, outcomeAlreadyPresent)
			d.progressf("project %q: already present (#%d)", project.Name, remoteID)
			continue
		}

		if d.opts.DryRun {
			project.State = domain.StateLinked
			d.count(domain.KindProject, outcomeCreated)
			d.progressf("project %q: would create", project.Name)
			continue
		}

		if existing == nil {
			listed, err := d.api.ListProjects(ctx)
			if err != nil {
				if d.checkFatal(err, cancel) {
					return
				}
				d.failEntity(domain.KindProject, project.LocalKey, &project.State, err)
				d.setEntityError(&project.Error, err)
				continue
			}
			existing = make(map[string]int64, len(listed))
			for _, record := range listed {
				existing[aggregate.Normalize(record.Name)] = record.ID
			}
		}

		if remoteID, ok := existing[aggregate.Normalize(project.Name)]; ok {
			if err := d.cache.Record(project.LocalKey, remoteID, domain.KindProject); err != nil {
				d.failEntity(domain.KindProject, project.LocalKey, &project.State, err)
				d.setEntityError(&project.Error, err)
				continue
			}
			d.link(&project.State, &project.RemoteID, remoteID)
			d.count(domain.KindProject, outcomeAlreadyPresent)
			d.progressf("project %q: matched existing (#%d)", project.Name, remoteID)
			continue
		}

		project.State = domain.StateCreating
		remoteID, err := d.api.CreateProject(ctx, project.Name)
		if err != nil {
			if d.checkFatal(err, cancel) {
				return
			}
			d.failEntity(domain.KindProject, project.LocalKey, &project.State, err)
			d.setEntityError(&project.Error, err)
			continue
		}
		if err := d.cache.Record(project.LocalKey, remoteID, domain.KindProject); err != nil {
			d.failEntity(domain.KindProject, project.LocalKey, &project.State, err)
			d.setEntityError(&project.Error, err)
			continue
		}
		d.link(&project.State, &project.RemoteID, remoteID)
		d.count(domain.KindProject, outcomeCreated)
		d.progressf("project %q: created (#%d)", project.Name, remoteID)
	}
}

// runTasks processes tasks with the worker pool. A task whose project
// never linked is failed without a network call.
func (d *Driver) runTasks(ctx context.Context, set *domain.StagingSet, cancel context.CancelFunc) {
	tasks := set.OrderedTasks()
	d.forEach(ctx, len(tasks), func(i int) {
		task := tasks[i]
		project := set.Projects[task.ProjectKey]

		if project.State != domain.StateLinked {
			err := fmt.Errorf("project %q was not migrated", project.Name)
			d.failEntity(domain.KindTask, task.LocalKey, &task.State, err)
			d.setEntityError(&task.Error, err)
			return
		}

		if remoteID, ok := d.cache.Lookup(task.LocalKey); ok {
			d.link(&task.State, &task.RemoteID, remoteID)
			if d.opts.UpdateLinked && !d.opts.DryRun {
				if err := d.syncTask(ctx, task); err != nil {
					if d.checkFatal(err, cancel) {
						return
					}
					d.failEntity(domain.KindTask, task.LocalKey, &task.State, err)
					d.setEntityError(&task.Error, err)
					return
				}
			}
			d.count(domain.KindTask, outcomeAlreadyPresent)
			d.progressf("task %q: already present (#%d)", task.Title, remoteID)
			return
		}

		if d.opts.DryRun {
			task.State = domain.StateLinked
			d.count(domain.KindTask, outcomeCreated)
			d.progressf("task %q: would create", task.Title)
			return
		}

		task.State = domain.StateCreating
		remoteID, lockVersion, err := d.api.CreateTask(ctx, *project.RemoteID, taskFields(task))
		if err != nil {
			if d.checkFatal(err, cancel) {
				return
			}
			d.failEntity(domain.KindTask, task.LocalKey, &task.State, err)
			d.setEntityError(&task.Error, err)
			return
		}
		if err := d.cache.Record(task.LocalKey, remoteID, domain.KindTask); err != nil {
			d.failEntity(domain.KindTask, task.LocalKey, &task.State, err)
			d.setEntityError(&task.Error, err)
			return
		}
		d.link(&task.State, &task.RemoteID, remoteID)
		task.LockVersion = &lockVersion
		d.count(domain.KindTask, outcomeCreated)
		d.progressf("task %q: created (#%d)", task.Title, remoteID)
	})
}

// runTimeEntries processes time entries with the worker pool. Entry
// cache keys are positional within the owning task, which is stable
// because aggregation preserves row order.
func (d *Driver) runTimeEntries(ctx context.Context, set *domain.StagingSet, cancel context.CancelFunc) {
	keys := make([]string, len(set.TimeEntries))
	perTask := make(map[string]int)
	for i, entry := range set.TimeEntries {
		keys[i] = aggregate.EntryKey(entry.TaskKey, perTask[entry.TaskKey])
		perTask[entry.TaskKey]++
	}

	d.forEach(ctx, len(set.TimeEntries), func(i int) {
		entry := set.TimeEntries[i]
		localKey := keys[i]
		task := set.Tasks[entry.TaskKey]

		if task.State != domain.StateLinked {
			err := fmt.Errorf("task %q was not migrated", task.Title)
			d.failEntity(domain.KindTimeEntry, localKey, &entry.State, err)
			d.setEntityError(&entry.Error, err)
			return
		}

		if remoteID, ok := d.cache.Lookup(localKey); ok {
			d.link(&entry.State, &entry.RemoteID, remoteID)
			d.count(domain.KindTimeEntry, outcomeAlreadyPresent)
			return
		}

		if d.opts.DryRun {
			entry.State = domain.StateLinked
			d.count(domain.KindTimeEntry, outcomeCreated)
			return
		}

		entry.State = domain.StateCreating
		remoteID, err := d.api.CreateTimeEntry(ctx, *task.RemoteID, entryFields(entry))
		if err != nil {
			if d.checkFatal(err, cancel) {
				return
			}
			d.failEntity(domain.KindTimeEntry, localKey, &entry.State, err)
			d.setEntityError(&entry.Error, err)
			return
		}
		if err := d.cache.Record(localKey, remoteID, domain.KindTimeEntry); err != nil {
			d.failEntity(domain.KindTimeEntry, localKey, &entry.State, err)
			d.setEntityError(&entry.Error, err)
			return
		}
		d.link(&entry.State, &entry.RemoteID, remoteID)
		d.count(domain.KindTimeEntry, outcomeCreated)
	})
}

// syncTask pushes staged fields to an already-linked task. A stale lock
// version is refreshed and retried exactly once before surfacing.
func (d *Driver) syncTask(ctx context.Context, task *domain.StagedTask) error {
	record, err := d.api.GetTask(ctx, *task.RemoteID)
	if err != nil {
		return err
	}
	newLock, err := d.api.UpdateTask(ctx, *task.RemoteID, record.LockVersion, taskFields(task))
	if remote.IsConflict(err) {
		record, err = d.api.GetTask(ctx, *task.RemoteID)
		if err != nil {
			return err
		}
		newLock, err = d.api.UpdateTask(ctx, *task.RemoteID, record.LockVersion, taskFields(task))
	}
	if err != nil {
		return err
	}
	task.LockVersion = &newLock
	return nil
}

// forEach runs fn over [0, n) using the configured pool size. Entities
// are independent within a kind, so order inside the pool is free.
func (d *Driver) forEach(ctx context.Context, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if d.opts.Jobs == 1 {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				return
			}
			fn(i)
		}
		return
	}

	work := make(chan int, n)
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < d.opts.Jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				if ctx.Err() != nil {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// checkFatal aborts the run on authentication failure or cancellation.
func (d *Driver) checkFatal(err error, cancel context.CancelFunc) bool {
	if err == nil {
		return false
	}
	if remote.IsAuth(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		d.mu.Lock()
		if d.fatalErr == nil {
			d.fatalErr = err
		}
		d.mu.Unlock()
		cancel()
		return true
	}
	return false
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeAlreadyPresent
	outcomeFailed
)

func (d *Driver) count(kind domain.EntityKind, o outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var counts *KindCounts
	switch kind {
	case domain.KindProject:
		counts = &d.report.Projects
	case domain.KindTask:
		counts = &d.report.Tasks
	case domain.KindTimeEntry:
		counts = &d.report.TimeEntries
	}
	switch o {
	case outcomeCreated:
		counts.Created++
	case outcomeAlreadyPresent:
		counts.AlreadyPresent++
	case outcomeFailed:
		counts.Failed++
	}
}

func (d *Driver) failEntity(kind domain.EntityKind, localKey string, state *domain.EntityState, err error) {
	*state = domain.StateFailed
	d.count(kind, outcomeFailed)
	d.mu.Lock()
	d.report.Errors = append(d.report.Errors, EntityError{Kind: kind, LocalKey: localKey, Reason: err.Error()})
	d.mu.Unlock()
	d.progressf("%s %q: failed: %v", kind, localKey, err)
}

func (d *Driver) link(state *domain.EntityState, slot **int64, remoteID int64) {
	id := remoteID
	*state = domain.StateLinked
	*slot = &id
}

func (d *Driver) setEntityError(slot *string, err error) {
	*slot = err.Error()
}

func (d *Driver) progressf(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.opts.Progress, format+"\n", args...)
}
