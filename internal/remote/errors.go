package remote

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// The failure taxonomy for remote calls. Drivers branch on these with
// errors.As / the Is* helpers:
//
//	TransientError  — timeout, connection reset, 429, 5xx: retried
//	                  inside the client, surfaced only after retries
//	                  are exhausted
//	AuthError       — 401/403: fatal to the whole run
//	NotFoundError   — 404: referenced resource is gone remotely
//	ValidationError — 422 or form-reported field errors: entity-level
//	ConflictError   — 409 lock-version mismatch: refetch and retry once

// TransientError wraps a failure that is expected to clear on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means the credentials were rejected. Nothing else in the
// run can succeed, so the driver aborts.
type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected (HTTP %d)", e.Op, e.Status)
}

// NotFoundError means the referenced remote resource no longer exists.
type NotFoundError struct {
	Op       string
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %d not found", e.Op, e.Resource, e.ID)
}

// ValidationError carries the server's per-field rejection messages.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: validation rejected", e.Op)
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s: validation rejected (%s)", e.Op, strings.Join(parts, "; "))
}

// ConflictError means the supplied lock version is stale.
type ConflictError struct {
	Op string
	ID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: work package %d was modified concurrently (stale lock version)", e.Op, e.ID)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var a *AuthError
	return errors.As(err, &a)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
