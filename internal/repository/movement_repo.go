package repository

import (
	"context"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MovementRepository persists ledger events. There is no Update or Delete:
// the ledger is append-only and a closed session's movements are frozen.
type MovementRepository interface {
	CreateTx(tx *gorm.DB, m *model.Movement) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Movement, error)
	ListBySessionTx(tx *gorm.DB, sessionID uuid.UUID) ([]model.Movement, error)
}

type movementRepo struct{ db *gorm.DB }

func NewMovementRepository(db *gorm.DB) MovementRepository { return &movementRepo{db: db} }

func (r *movementRepo) CreateTx(tx *gorm.DB, m *model.Movement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return Classify(tx.Create(m).Error)
}

func (r *movementRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Movement, error) {
	return r.ListBySessionTx(r.db.WithContext(ctx), sessionID)
}

func (r *movementRepo) ListBySessionTx(tx *gorm.DB, sessionID uuid.UUID) ([]model.Movement, error) {
	var movs []model.Movement
	err := tx.Where("session_id = ?", sessionID).
		Order("recorded_at ASC").
		Order("seq ASC").
		Find(&movs).Error
	return movs, Classify(err)
}
