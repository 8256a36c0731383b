// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrPrecondition indicates a broken precondition: missing task/session/project
// linkage, absent runner credential, disabled runner type. Never retried and
// surfaced before any remote call is made.
var ErrPrecondition = errors.New("precondition failed")

// ErrLocked indicates another worker currently holds the issue lock.
// Callers treat this as a skip, not a failure.
var ErrLocked = errors.New("issue locked by another worker")
