package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/inventory-reservation/internal/model"
)

// AuditRepo appends rows to audit_logs.  The table is write-only from
// the point of view of this service.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns a new AuditRepo bound to the given database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// nullJSON turns an empty snapshot into SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Insert writes one audit entry and populates its ID.
func (r *AuditRepo) Insert(ctx context.Context, e *model.AuditLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO audit_logs (actor, action, subject_type, subject_id, old_value, new_value, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.Actor, e.Action, e.SubjectType, e.SubjectID, nullJSON(e.OldValue), nullJSON(e.NewValue), e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = uint64(id)
	}
	return nil
}
