package repository

import (
	"context"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository is append-only: Create and reads, nothing else.
type AuditRepository interface {
	Create(ctx context.Context, e *model.AuditEntry) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.AuditEntry, error)
}

type auditRepo struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &auditRepo{db: db} }

func (r *auditRepo) Create(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(e).Error
	// A replayed entry (retry worker) that already landed is not a failure.
	if IsUniqueViolation(err) {
		return nil
	}
	return Classify(err)
}

func (r *auditRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, Classify(err)
}
