// Package queue defines message payloads exchanged over the message broker
// and the publisher, scheduler and consumers built on them.
package queue

import (
	"encoding/json"
	"time"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// Queue names.  The delay queue has no consumers; messages sit there
// until their per-message TTL runs out and are then dead-lettered into
// the expiry queue.
const (
	ExpiryQueue      = "reservation.expiry"
	ExpiryDelayQueue = "reservation.expiry.delay"
	AuditQueue       = "audit.events"
)

// ReservationExpiryEvent asks the expiry consumer to expire a reservation.
// Delivery is at-least-once; expiring twice is harmless.
type ReservationExpiryEvent struct {
	ReservationID string    `json:"reservation_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	DueAt         time.Time `json:"due_at"`
}

// AuditEvent carries one audit entry to the audit consumer.
type AuditEvent struct {
	Actor       string          `json:"actor"`
	Action      string          `json:"action"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	OldValue    json.RawMessage `json:"old_value,omitempty"`
	NewValue    json.RawMessage `json:"new_value,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewAuditEvent copies an audit entry into its wire form.
func NewAuditEvent(e model.AuditLog) AuditEvent {
	return AuditEvent{
		Actor:       e.Actor,
		Action:      e.Action,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		OldValue:    e.OldValue,
		NewValue:    e.NewValue,
		CreatedAt:   e.CreatedAt,
	}
}

// Entry converts the event back into an audit entry without an ID.
func (e AuditEvent) Entry() model.AuditLog {
	return model.AuditLog{
		Actor:       e.Actor,
		Action:      e.Action,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		OldValue:    e.OldValue,
		NewValue:    e.NewValue,
		CreatedAt:   e.CreatedAt,
	}
}
