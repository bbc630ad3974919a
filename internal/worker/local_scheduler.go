// Package worker holds the in-process background jobs: the local expiry
// scheduler and the periodic reservation sweeper.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/service"
)

// ExpireFunc expires one reservation.  It matches
// (*service.ReservationService).ExpireReservation.
type ExpireFunc func(ctx context.Context, id string) (service.ExpireResult, error)

// ErrSchedulerStopped is returned by ScheduleExpiry after Stop.
var ErrSchedulerStopped = errors.New("worker: scheduler stopped")

// expireTimeout bounds a single timer-driven expiry.
const expireTimeout = 30 * time.Second

// LocalScheduler runs deferred expiry on in-process timers.  Pending
// timers are lost on restart; the sweep reclaims those reservations.
type LocalScheduler struct {
	expire ExpireFunc
	log    *zap.Logger

	mu      sync.Mutex
	timers  map[string]*pendingExpiry
	stopped bool
	wg      sync.WaitGroup
}

type pendingExpiry struct{ t *time.Timer }

func NewLocalScheduler(expire ExpireFunc, log *zap.Logger) *LocalScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalScheduler{
		expire: expire,
		log:    log.Named("local-scheduler"),
		timers: make(map[string]*pendingExpiry),
	}
}

// ScheduleExpiry arms a one-shot timer.  Scheduling the same id again
// replaces the earlier timer.
func (s *LocalScheduler) ScheduleExpiry(ctx context.Context, reservationID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if p, ok := s.timers[reservationID]; ok && p.t.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	p := &pendingExpiry{}
	s.timers[reservationID] = p
	p.t = time.AfterFunc(delay, func() { s.fire(reservationID, p) })
	return nil
}

func (s *LocalScheduler) fire(id string, p *pendingExpiry) {
	defer s.wg.Done()
	s.mu.Lock()
	if s.timers[id] == p {
		delete(s.timers, id)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()
	res, err := s.expire(ctx, id)
	if err != nil {
		s.log.Warn("deferred expiry failed", zap.String("reservation_id", id), zap.Error(err))
		return
	}
	s.log.Debug("deferred expiry ran", zap.String("reservation_id", id), zap.String("result", string(res)))
}

// Pending reports how many timers are armed.
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels armed timers and waits for running expiries to finish.
func (s *LocalScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, p := range s.timers {
		if p.t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

var _ service.Scheduler = (*LocalScheduler)(nil)
