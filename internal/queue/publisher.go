package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("queue: publisher closed")

// Publisher keeps one broker connection and channel open and reopens
// them on the next publish after a failure.  Messages are JSON and
// persistent.  Publish is safe for concurrent use.
type Publisher struct {
	url string
	log *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewPublisher returns a publisher for url.  The connection is opened
// lazily on the first publish.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log}
}

// DeclareTopology declares every queue this service uses.  It is
// idempotent.  The delay queue dead-letters expired messages into the
// expiry queue through the default exchange.
func DeclareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(ExpiryQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ExpiryQueue, err)
	}
	if _, err := ch.QueueDeclare(ExpiryDelayQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": ExpiryQueue,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", ExpiryDelayQueue, err)
	}
	if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", AuditQueue, err)
	}
	return nil
}

// channel returns an open channel, dialing when needed.  Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// reset drops the current channel so the next publish reopens it.
// Callers hold p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Publish sends v as JSON to queueName through the default exchange.  A
// positive ttl becomes the per-message expiration.
func (p *Publisher) Publish(ctx context.Context, queueName string, v any, ttl time.Duration) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if ttl > 0 {
		pub.Expiration = expirationMillis(ttl)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel unavailable", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.reset()
		p.log.Warn("rabbitmq: publish failed", zap.String("queue", queueName), zap.Error(err))
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

// Close closes the channel and connection.  Publish fails afterwards.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	return nil
}

// expirationMillis renders d as the AMQP expiration property, a decimal
// count of milliseconds.  Sub-millisecond delays round up to one.
func expirationMillis(d time.Duration) string {
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%d", ms)
}
