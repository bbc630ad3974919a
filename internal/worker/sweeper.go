package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepFunc runs one reservation sweep.  It matches
// (*service.ReservationService).SweepExpiredReservations.
type SweepFunc func(ctx context.Context) (int, error)

// Lease elects a single sweeping instance per interval.  Acquire reports
// whether this instance holds the lease for ttl.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// Sweeper triggers the reservation sweep on a fixed interval.  It is the
// safety net for expiry tasks that were lost or rejected.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	lease    Lease
	log      *zap.Logger
}

// NewSweeper returns a sweeper.  lease may be nil, in which case every
// instance sweeps on every tick.
func NewSweeper(sweep SweepFunc, interval time.Duration, lease Lease, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{sweep: sweep, interval: interval, lease: lease, log: log.Named("sweeper")}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.Info("reservation sweeper started", zap.Duration("interval", s.interval))
	t := time.NewTicker(s.interval)
	defer t.Stop()
	defer s.releaseLease()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reservation sweeper stopped")
			return
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep if this instance holds the lease and
// reports whether a sweep ran.  Errors are logged; the next tick retries.
func (s *Sweeper) RunOnce(ctx context.Context) bool {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.interval)
		if err != nil {
			s.log.Warn("sweep lease unavailable; sweeping anyway", zap.Error(err))
		} else if !ok {
			s.log.Debug("sweep lease held elsewhere")
			return false
		}
	}
	n, err := s.sweep(ctx)
	if err != nil {
		s.log.Warn("reservation sweep finished with errors", zap.Int("expired", n), zap.Error(err))
		return true
	}
	if n > 0 {
		s.log.Info("reservation sweep expired reservations", zap.Int("expired", n))
	}
	return true
}

func (s *Sweeper) releaseLease() {
	if s.lease == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.lease.Release(ctx); err != nil {
		s.log.Warn("release sweep lease failed", zap.Error(err))
	}
}
