// Package remote is the REST client for the target project-management
// system. It models only the surface the migration needs: projects,
// work packages, and time entries, plus the read-backs verification
// uses.
//
// The server requires a two-phase protocol for work packages: a form
// call that validates and normalizes the payload, then the actual
// commit using the normalized payload. Both phases are hidden behind
// CreateTask/UpdateTask; callers see a single operation.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiPrefix = "/api/v3"

// Options configures a client.
type Options struct {
	BaseURL      string
	Token        string
	HTTPTimeout  time.Duration
	RetryLimit   int           // attempts beyond the first for transient failures
	RetryBase    time.Duration // first backoff delay
	RetryCeiling time.Duration // backoff cap
}

// Client talks to one PM server. It is safe for concurrent use.
type Client struct {
	baseURL      string
	token        string
	http         *http.Client
	retryLimit   int
	retryBase    time.Duration
	retryCeiling time.Duration
}

// NewClient builds a client from options, applying defaults for
// anything unset.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	timeout := opts.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retryLimit := opts.RetryLimit
	if retryLimit == 0 {
		retryLimit = 3
	}
	retryBase := opts.RetryBase
	if retryBase == 0 {
		retryBase = 250 * time.Millisecond
	}
	retryCeiling := opts.RetryCeiling
	if retryCeiling == 0 {
		retryCeiling = 5 * time.Second
	}
	return &Client{
		baseURL:      opts.BaseURL,
		token:        opts.Token,
		http:         &http.Client{Timeout: timeout},
		retryLimit:   retryLimit,
		retryBase:    retryBase,
		retryCeiling: retryCeiling,
	}, nil
}

// ListProjects returns all remote projects, used to link staged
// projects to pre-existing ones before creating duplicates.
func (c *Client) ListProjects(ctx context.Context) ([]ProjectRecord, error) {
	var out struct {
		Projects []ProjectRecord `json:"projects"`
	}
	if err := c.call(ctx, http.MethodGet, apiPrefix+"/projects", nil, &out, target{}); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// CreateProject creates a project and returns its remote id.
func (c *Client) CreateProject(ctx context.Context, name string) (int64, error) {
	body := map[string]string{"name": name}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, apiPrefix+"/projects", body, &out, target{}); err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, fmt.Errorf("create project: server returned no id")
	}
	return out.ID, nil
}

// formResponse is the server's answer to a form (validation) call.
type formResponse struct {
	Payload          json.RawMessage   `json:"payload"`
	ValidationErrors map[string]string `json:"validation_errors"`
}

// CreateTask creates a work package under a project. Internally this is
// the two-phase form protocol: validate, then commit the
// server-normalized payload. Returns the new id and lock version.
func (c *Client) CreateTask(ctx context.Context, projectID int64, fields TaskFields) (int64, int64, error) {
	formPath := fmt.Sprintf("%s/projects/%d/work_packages/form", apiPrefix, projectID)
	payload, err := c.validateForm(ctx, formPath, fields, target{resource: "project", id: projectID})
	if err != nil {
		return 0, 0, err
	}

	commitPath := fmt.Sprintf("%s/projects/%d/work_packages", apiPrefix, projectID)
	var out struct {
		ID          int64 `json:"id"`
		LockVersion int64 `json:"lock_version"`
	}
	if err := c.call(ctx, http.MethodPost, commitPath, payload, &out, target{resource: "project", id: projectID}); err != nil {
		return 0, 0, err
	}
	if out.ID <= 0 {
		return 0, 0, fmt.Errorf("create work package: server returned no id")
	}
	return out.ID, out.LockVersion, nil
}

// UpdateTask updates a work package guarded by its lock version. A
// stale version surfaces as ConflictError; the caller refetches and
// retries. Returns the new lock version.
func (c *Client) UpdateTask(ctx context.Context, id int64, lockVersion int64, fields TaskFields) (int64, error) {
	type updateBody struct {
		TaskFields
		LockVersion int64 `json:"lock_version"`
	}
	body := updateBody{TaskFields: fields, LockVersion: lockVersion}

	formPath := fmt.Sprintf("%s/work_packages/%d/form", apiPrefix, id)
	payload, err := c.validateForm(ctx, formPath, body, target{resource: "work package", id: id})
	if err != nil {
		return 0, err
	}

	path := fmt.Sprintf("%s/work_packages/%d", apiPrefix, id)
	var out struct {
		LockVersion int64 `json:"lock_version"`
	}
	if err := c.call(ctx, http.MethodPatch, path, payload, &out, target{resource: "work package", id: id}); err != nil {
		return 0, err
	}
	return out.LockVersion, nil
}

// CreateTimeEntry logs time against a work package.
func (c *Client) CreateTimeEntry(ctx context.Context, taskID int64, fields TimeEntryFields) (int64, error) {
	path := fmt.Sprintf("%s/work_packages/%d/time_entries", apiPrefix, taskID)
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, path, fields, &out, target{resource: "work package", id: taskID}); err != nil {
		return 0, err
	}
	if out.ID <= 0 {
		return 0, fmt.Errorf("create time entry: server returned no id")
	}
	return out.ID, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id int64) (*ProjectRecord, error) {
	var out ProjectRecord
	path := fmt.Sprintf("%s/projects/%d", apiPrefix, id)
	if err := c.call(ctx, http.MethodGet, path, nil, &out, target{resource: "project", id: id}); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask fetches one work package's current state.
func (c *Client) GetTask(ctx context.Context, id int64) (*TaskRecord, error) {
	var out TaskRecord
	path := fmt.Sprintf("%s/work_packages/%d", apiPrefix, id)
	if err := c.call(ctx, http.MethodGet, path, nil, &out, target{resource: "work package", id: id}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTimeEntries fetches the time entries logged on a work package.
func (c *Client) ListTimeEntries(ctx context.Context, taskID int64) ([]TimeEntryRecord, error) {
	var out struct {
		TimeEntries []TimeEntryRecord `json:"time_entries"`
	}
	path := fmt.Sprintf("%s/work_packages/%d/time_entries", apiPrefix, taskID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out, target{resource: "work package", id: taskID}); err != nil {
		return nil, err
	}
	return out.TimeEntries, nil
}

// validateForm runs the form phase and returns the server-normalized
// payload for the commit phase.
func (c *Client) validateForm(ctx context.Context, path string, body interface{}, tgt target) (json.RawMessage, error) {
	var form formResponse
	if err := c.call(ctx, http.MethodPost, path, body, &form, tgt); err != nil {
		return nil, err
	}
	if len(form.ValidationErrors) > 0 {
		return nil, &ValidationError{Op: "validate " + path, Fields: form.ValidationErrors}
	}
	if len(form.Payload) == 0 {
		return nil, fmt.Errorf("form %s: server returned no normalized payload", path)
	}
	return form.Payload, nil
}

// target identifies the resource a call refers to, for NotFoundError.
type target struct {
	resource string
	id       int64
}

// call issues one logical request with bounded exponential backoff on
// transient failures. Non-transient failures are classified into the
// package taxonomy and returned immediately.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}, tgt target) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
	}

	delay := c.retryBase
	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.retryCeiling {
				delay = c.retryCeiling
			}
		}

		lastErr = c.callOnce(ctx, method, path, encoded, out, tgt)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) callOnce(ctx context.Context, method, path string, body []byte, out interface{}, tgt target) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Op: op, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Op: op, Resource: tgt.resource, ID: tgt.id}
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Op: op, ID: tgt.id}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Op: op, Fields: decodeFieldErrors(data)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientError{Op: op, Err: errors.New(resp.Status)}
	default:
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}
}

// decodeFieldErrors pulls per-field messages out of a 422 body. Servers
// of different versions use either validation_errors or errors; a body
// matching neither yields an empty map rather than a decode failure.
func decodeFieldErrors(data []byte) map[string]string {
	var body struct {
		ValidationErrors map[string]string `json:"validation_errors"`
		Errors           map[string]string `json:"errors"`
		Message          string            `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return map[string]string{}
	}
	if len(body.ValidationErrors) > 0 {
		return body.ValidationErrors
	}
	if len(body.Errors) > 0 {
		return body.Errors
	}
	if body.Message != "" {
		return map[string]string{"base": body.Message}
	}
	return map[string]string{}
}
