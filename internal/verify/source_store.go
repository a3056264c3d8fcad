package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"planport/internal/remote"
)

// storeSource reads ground truth directly from the target backend's
// SQLite database, bypassing the API. Useful when the API is down or
// when double-checking the API's own answers against its store.
type storeSource struct {
	db *sql.DB
}

// OpenStoreSource opens the target database read-only.
func OpenStoreSource(path string) (Source, func() error, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open target store: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to configure target store: %w", err)
	}
	return &storeSource{db: db}, db.Close, nil
}

func (s *storeSource) Project(ctx context.Context, id int64) (*remote.ProjectRecord, error) {
	var record remote.ProjectRecord
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM projects WHERE id = ?`, id).
		Scan(&record.ID, &record.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &remote.NotFoundError{Op: "store: get project", Resource: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project %d: %w", id, err)
	}
	return &record, nil
}

func (s *storeSource) Task(ctx context.Context, id int64) (*remote.TaskRecord, error) {
	var record remote.TaskRecord
	var status sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, subject, status, lock_version
		FROM work_packages WHERE id = ?
	`, id).Scan(&record.ID, &record.ProjectID, &record.Title, &status, &record.LockVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &remote.NotFoundError{Op: "store: get work package", Resource: "work package", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get work package %d: %w", id, err)
	}
	if status.Valid {
		record.Status = status.String
	}
	return &record, nil
}

func (s *storeSource) TaskHours(ctx context.Context, id int64) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(hours) FROM time_entries WHERE work_package_id = ?
	`, id).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: sum hours for work package %d: %w", id, err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}
