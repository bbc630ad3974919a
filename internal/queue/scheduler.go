package queue

import (
	"context"
	"time"
)

// ExpiryScheduler implements deferred expiry with a broker delay queue.
// Each reservation becomes one message in the delay queue whose TTL is
// the hold duration; when it runs out the broker moves the message to
// the expiry queue where StartExpiryConsumer picks it up.
type ExpiryScheduler struct {
	pub *Publisher
	now func() time.Time
}

// NewExpiryScheduler returns a scheduler publishing through pub.
func NewExpiryScheduler(pub *Publisher) *ExpiryScheduler {
	return &ExpiryScheduler{pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

// ScheduleExpiry publishes the expiry task.  A non-positive delay skips
// the delay queue.
func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, reservationID string, delay time.Duration) error {
	now := s.now()
	ev := ReservationExpiryEvent{
		ReservationID: reservationID,
		ScheduledAt:   now,
		DueAt:         now.Add(delay),
	}
	if delay <= 0 {
		return s.pub.Publish(ctx, ExpiryQueue, ev, 0)
	}
	return s.pub.Publish(ctx, ExpiryDelayQueue, ev, delay)
}
