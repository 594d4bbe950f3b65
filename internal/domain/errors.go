// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request itself is malformed. Wrapped errors
// carry the field-level detail.
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrNoActiveRun indicates a continue/confirm/modify operation was attempted
// on a project whose agent run has no remote run ID yet.
var ErrNoActiveRun = errors.New("no active agent run for project")
