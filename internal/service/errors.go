package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
)

// Caller errors.  They are never retried automatically.
var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrEmptyOrder      = errors.New("order needs at least one reservation")
)

// Business conditions surfaced to the caller.
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrReservationInactive = errors.New("reservation is not active")
	ErrReservationExpired  = errors.New("reservation has expired")
)

// ErrInvariantViolation means a stock move would drive a counter
// negative or unbalance the product.  It indicates a bug and is logged
// at error level; the unit of work is always rolled back.
var ErrInvariantViolation = errors.New("stock invariant violation")

// Storage conditions re-exported so callers only import this package.
var (
	ErrNotFound    = repository.ErrNotFound
	ErrLockTimeout = repository.ErrLockTimeout
	ErrBusy        = repository.ErrBusy
)

// TransitionError reports a status change that is not an edge of the
// order state machine.  It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Retryable reports whether err is a contention error that is safe to
// retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrBusy)
}
