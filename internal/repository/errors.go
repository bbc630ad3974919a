// Package repository defines the persistence contract used by the
// reservation and order services together with its MySQL and in-memory
// implementations.  The sentinel errors below are shared by both
// implementations so that the service layer can react to them without
// knowing which store is in use.
package repository

import "errors"

// ErrNotFound is returned when the requested product, reservation or
// order does not exist.  Handlers translate it into an HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrLockTimeout is returned when a row lock could not be obtained
// within the configured wait.  The unit of work is rolled back and the
// caller may retry with backoff.
var ErrLockTimeout = errors.New("lock wait timeout")

// ErrBusy is returned when the database aborted the unit of work to
// break a deadlock.  Like ErrLockTimeout it is safe to retry.
var ErrBusy = errors.New("resource busy")

// ErrNotLocked is returned when a caller tries to write a row it has
// not locked in the current unit of work.  It indicates a programming
// error in the caller.
var ErrNotLocked = errors.New("row not locked in this transaction")
