// Package audit provides the Recorder implementations behind the audit
// port of the service layer.
package audit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/model"
	"github.com/iliyamo/inventory-reservation/internal/queue"
	"github.com/iliyamo/inventory-reservation/internal/service"
)

// Inserter persists audit entries.  repository.Store satisfies it.
type Inserter interface {
	InsertAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// SQLRecorder writes entries straight into the audit_logs table.
type SQLRecorder struct {
	store Inserter
}

func NewSQLRecorder(store Inserter) *SQLRecorder { return &SQLRecorder{store: store} }

func (r *SQLRecorder) Record(ctx context.Context, entry model.AuditLog) error {
	return r.store.InsertAuditLog(ctx, &entry)
}

// EventPublisher is the part of queue.Publisher the AMQP recorder needs.
type EventPublisher interface {
	Publish(ctx context.Context, queueName string, v any, ttl time.Duration) error
}

// AMQPRecorder publishes entries to the audit queue; the audit consumer
// writes them to SQL.
type AMQPRecorder struct {
	pub EventPublisher
}

func NewAMQPRecorder(pub EventPublisher) *AMQPRecorder { return &AMQPRecorder{pub: pub} }

func (r *AMQPRecorder) Record(ctx context.Context, entry model.AuditLog) error {
	return r.pub.Publish(ctx, queue.AuditQueue, queue.NewAuditEvent(entry), 0)
}

// LogRecorder writes entries to a zap logger.
type LogRecorder struct {
	log *zap.Logger
}

func NewLogRecorder(log *zap.Logger) *LogRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogRecorder{log: log.Named("audit")}
}

func (r *LogRecorder) Record(ctx context.Context, entry model.AuditLog) error {
	r.log.Info(entry.Action,
		zap.String("actor", entry.Actor),
		zap.String("subject_type", entry.SubjectType),
		zap.String("subject_id", entry.SubjectID),
		zap.ByteString("old_value", entry.OldValue),
		zap.ByteString("new_value", entry.NewValue),
		zap.Time("created_at", entry.CreatedAt),
	)
	return nil
}

// Multi fans an entry out to every recorder.  All recorders are tried;
// their errors are joined.
type Multi []service.Recorder

func (m Multi) Record(ctx context.Context, entry model.AuditLog) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ service.Recorder = (*SQLRecorder)(nil)
	_ service.Recorder = (*AMQPRecorder)(nil)
	_ service.Recorder = (*LogRecorder)(nil)
	_ service.Recorder = Multi(nil)
)
