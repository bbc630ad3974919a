package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/service"
)

// Expirer is the part of the reservation manager the expiry consumer needs.
type Expirer interface {
	ExpireReservation(ctx context.Context, id string) (service.ExpireResult, error)
}

// handlerFunc processes one delivery body.  An error rejects the
// message without requeue.
type handlerFunc func(ctx context.Context, body []byte) error

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// StartExpiryConsumer consumes the expiry queue and expires each
// reservation it names.  Failed messages are rejected without requeue to
// avoid tight redelivery loops; the periodic sweep reclaims those
// reservations.  It reconnects with backoff and returns when ctx is done.
func StartExpiryConsumer(ctx context.Context, url string, exp Expirer, log *zap.Logger) error {
	return run(ctx, url, ExpiryQueue, 50, expiryHandler(exp, log), log.Named("expiry-consumer"))
}

// StartAuditConsumer drains the audit queue into sink.
func StartAuditConsumer(ctx context.Context, url string, sink service.Recorder, log *zap.Logger) error {
	return run(ctx, url, AuditQueue, 100, auditHandler(sink), log.Named("audit-consumer"))
}

func expiryHandler(exp Expirer, log *zap.Logger) handlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev ReservationExpiryEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if ev.ReservationID == "" {
			return errors.New("missing reservation_id")
		}
		res, err := exp.ExpireReservation(ctx, ev.ReservationID)
		if err != nil {
			return fmt.Errorf("expire %s: %w", ev.ReservationID, err)
		}
		log.Debug("expiry task handled", zap.String("reservation_id", ev.ReservationID), zap.String("result", string(res)))
		return nil
	}
}

func auditHandler(sink service.Recorder) handlerFunc {
	return func(ctx context.Context, body []byte) error {
		var ev AuditEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if ev.Action == "" {
			return errors.New("missing action")
		}
		return sink.Record(ctx, ev.Entry())
	}
}

func run(ctx context.Context, url, queueName string, prefetch int, h handlerFunc, log *zap.Logger) error {
	backoff := minBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff // reset after successful connect

		err = consumeLoop(ctx, conn, queueName, prefetch, h, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, prefetch int, h handlerFunc, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if err := DeclareTopology(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := h(ctx, d.Body); err != nil {
				log.Warn("handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
