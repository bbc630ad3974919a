package model

import (
	"encoding/json"
	"time"
)

// AuditLog is a write-only record of a mutation.  OldValue and NewValue
// hold JSON snapshots of the subject before and after the change; either
// may be empty when the subject did not exist on that side.
type AuditLog struct {
	ID          uint64          `json:"id,omitempty"`
	Actor       string          `json:"actor"`
	Action      string          `json:"action"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	OldValue    json.RawMessage `json:"old_value,omitempty"`
	NewValue    json.RawMessage `json:"new_value,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
