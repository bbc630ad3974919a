package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// Audit action labels.
const (
	ActionReservationCreated  = "Reservation Created"
	ActionReservationExpired  = "Reservation Expired"
	ActionReservationReleased = "Reservation Released"
	ActionOrderPlaced         = "Order Placed"
	ActionOrderStatusUpdated  = "Order Status Updated"
)

// SystemActor is recorded when no caller identity is attached to ctx,
// for example in the expiry workers.
const SystemActor = "System"

// auditTimeout bounds a single Record call.
const auditTimeout = 3 * time.Second

// Recorder receives before/after snapshots of every mutation.  It is an
// outbound port: errors are logged by the caller and never fail the
// mutation that produced the entry.
type Recorder interface {
	Record(ctx context.Context, entry model.AuditLog) error
}

type actorKey struct{}

// WithActor attaches the identity recorded in audit entries.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the identity attached by WithActor or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}

// auditor emits entries after the protected mutation committed.  It
// never runs while row locks are held.
type auditor struct {
	rec Recorder
	log *zap.Logger
	now func() time.Time
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func (a auditor) emit(ctx context.Context, action, subjectType, subjectID string, oldValue, newValue any) {
	if a.rec == nil {
		return
	}
	entry := model.AuditLog{
		Actor:       ActorFrom(ctx),
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		OldValue:    snapshot(oldValue),
		NewValue:    snapshot(newValue),
		CreatedAt:   a.now(),
	}
	// The request may already be finished; the entry is still written.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := a.rec.Record(rctx, entry); err != nil {
		a.log.Warn("audit record failed",
			zap.String("action", action),
			zap.String("subject_type", subjectType),
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	}
}
