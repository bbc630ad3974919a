package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/repository"
)

// Defaults used when ReservationConfig leaves a field zero.
const (
	DefaultHoldDuration   = 10 * time.Minute
	DefaultSweepBatchSize = 500
)

// Scheduler registers a one-shot deferred call to ExpireReservation.
// Delivery is at-least-once; ExpireReservation absorbs duplicates.
type Scheduler interface {
	ScheduleExpiry(ctx context.Context, reservationID string, delay time.Duration) error
}

// ExpireResult tells a fresh expiry apart from the no-op outcomes.
type ExpireResult string

const (
	ExpireExpired         ExpireResult = "expired"
	ExpireAlreadyInactive ExpireResult = "already-inactive"
	ExpireNotFound        ExpireResult = "not-found"
	// ExpireNotDue means the task arrived before expires_at; the hold
	// stays active and the sweep expires it once it is due.
	ExpireNotDue ExpireResult = "not-due"
)

// errNotDue stops an expiry that ran ahead of the reservation's deadline.
var errNotDue = errors.New("reservation not due")

// ReservationConfig tunes the reservation manager.
type ReservationConfig struct {
	HoldDuration   time.Duration
	SweepBatchSize int
	// Now overrides the clock; nil means time.Now in UTC.
	Now func() time.Time
}

// ReservationService creates, tracks and expires time-bound holds
// against the stock ledger.
type ReservationService struct {
	store  repository.Store
	ledger *StockLedger
	sched  Scheduler
	audit  auditor
	cfg    ReservationConfig
	log    *zap.Logger
}

// NewReservationService wires the reservation manager.  sched and rec
// may be nil, in which case expiry relies on the sweep alone and no
// audit entries are written.
func NewReservationService(store repository.Store, ledger *StockLedger, sched Scheduler, rec Recorder, cfg ReservationConfig, log *zap.Logger) *ReservationService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = DefaultHoldDuration
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultSweepBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ReservationService{
		store:  store,
		ledger: ledger,
		sched:  sched,
		audit:  auditor{rec: rec, log: log, now: cfg.Now},
		cfg:    cfg,
		log:    log,
	}
}

// HoldDuration returns the configured hold length.
func (s *ReservationService) HoldDuration() time.Duration { return s.cfg.HoldDuration }

// ReserveStock holds qty units of a product for the hold duration.  It
// fails with ErrInvalidQuantity, ErrInsufficientStock or ErrNotFound and
// leaves the product untouched in that case.
func (s *ReservationService) ReserveStock(ctx context.Context, productID uint64, qty int64) (_ *model.Reservation, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.ReserveStock", trace.WithAttributes(
		attribute.Int64("product.id", int64(productID)),
		attribute.Int64("reservation.quantity", qty),
	))
	defer func() { endSpan(span, err) }()

	if qty <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	now := s.cfg.Now()
	res := model.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.HoldDuration),
		IsActive:  true,
	}
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := s.ledger.Reserve(ctx, tx, productID, qty); err != nil {
			return err
		}
		return tx.CreateReservation(ctx, &res)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.id", res.ID))

	s.audit.emit(ctx, ActionReservationCreated, "Reservation", res.ID, nil, res)
	if s.sched != nil {
		if err := s.sched.ScheduleExpiry(ctx, res.ID, s.cfg.HoldDuration); err != nil {
			// The sweep picks the reservation up once it is due.
			s.log.Warn("schedule reservation expiry failed", zap.String("reservation_id", res.ID), zap.Error(err))
		}
	}
	return &res, nil
}

// GetReservation returns a reservation snapshot.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// ExpireReservation gives the units of an active reservation back to
// available stock and deactivates it.  Missing, already inactive and
// not yet due reservations are reported through the result, not as
// errors, so redelivered or early expiry tasks and overlapping sweeps
// are harmless.
func (s *ReservationService) ExpireReservation(ctx context.Context, id string) (_ ExpireResult, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.ExpireReservation", trace.WithAttributes(
		attribute.String("reservation.id", id),
	))
	defer func() { endSpan(span, err) }()

	before, after, err := s.closeReservation(ctx, id, model.CloseExpired)
	switch {
	case errors.Is(err, ErrNotFound):
		s.log.Debug("expire: reservation not found", zap.String("reservation_id", id))
		return ExpireNotFound, nil
	case errors.Is(err, ErrReservationInactive):
		s.log.Debug("expire: reservation already inactive", zap.String("reservation_id", id))
		return ExpireAlreadyInactive, nil
	case errors.Is(err, errNotDue):
		s.log.Debug("expire: reservation not due yet", zap.String("reservation_id", id))
		return ExpireNotDue, nil
	case err != nil:
		return "", err
	}
	span.SetAttributes(attribute.String("reservation.result", string(ExpireExpired)))
	s.audit.emit(ctx, ActionReservationExpired, "Reservation", id, before, after)
	return ExpireExpired, nil
}

// ReleaseReservation is the customer giving a hold back before it
// expires.  It fails with ErrNotFound or ErrReservationInactive.
func (s *ReservationService) ReleaseReservation(ctx context.Context, id string) (_ *model.Reservation, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.ReleaseReservation", trace.WithAttributes(
		attribute.String("reservation.id", id),
	))
	defer func() { endSpan(span, err) }()

	before, after, err := s.closeReservation(ctx, id, model.CloseReleased)
	if err != nil {
		return nil, err
	}
	s.audit.emit(ctx, ActionReservationReleased, "Reservation", id, before, after)
	return after, nil
}

// closeReservation locks the reservation, then its product, and moves
// the held units back to available.  Expiry is refused before the
// reservation's deadline.
func (s *ReservationService) closeReservation(ctx context.Context, id string, reason model.CloseReason) (before, after *model.Reservation, err error) {
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsActive {
			return fmt.Errorf("reservation %s: %w", id, ErrReservationInactive)
		}
		now := s.cfg.Now()
		if reason == model.CloseExpired && !r.Expired(now) {
			return errNotDue
		}
		old := *r
		if _, err := s.ledger.Release(ctx, tx, r.ProductID, r.Quantity); err != nil {
			return err
		}
		r.IsActive = false
		r.ClosedAt = &now
		r.CloseReason = reason
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		before, after = &old, r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// SweepExpiredReservations expires one batch of active reservations that
// are past their expiry.  A failure on one reservation does not stop the
// others; failures are joined into the returned error.  processed counts
// the reservations this sweep expired.  Rows left over when the batch is
// full are picked up by the next sweep.
func (s *ReservationService) SweepExpiredReservations(ctx context.Context) (processed int, err error) {
	ctx, span := tracer.Start(ctx, "ReservationService.SweepExpiredReservations")
	defer func() { endSpan(span, err) }()

	due, err := s.store.ListExpiredReservations(ctx, s.cfg.Now(), s.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}
	var errs []error
	for _, r := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, ctxErr)
			break
		}
		res, err := s.ExpireReservation(ctx, r.ID)
		if err != nil {
			s.log.Warn("sweep: expire reservation failed", zap.String("reservation_id", r.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("reservation %s: %w", r.ID, err))
			continue
		}
		if res == ExpireExpired {
			processed++
		}
	}
	span.SetAttributes(
		attribute.Int("sweep.due", len(due)),
		attribute.Int("sweep.processed", processed),
	)
	if len(due) > 0 {
		s.log.Info("reservation sweep finished", zap.Int("due", len(due)), zap.Int("expired", processed), zap.Int("failed", len(errs)))
	}
	return processed, errors.Join(errs...)
}
