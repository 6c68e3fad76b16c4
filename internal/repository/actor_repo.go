package repository

import (
	"context"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActorRepository interface {
	Upsert(ctx context.Context, a *model.Actor) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Actor, error)
}

type actorRepo struct{ db *gorm.DB }

func NewActorRepository(db *gorm.DB) ActorRepository { return &actorRepo{db: db} }

// Upsert inserts a or updates the actor with the same username, then reloads
// a from the stored row. An existing username keeps its original id.
func (r *actorRepo) Upsert(ctx context.Context, a *model.Actor) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "role", "location_id", "active", "updated_at"}),
	}).Create(a).Error
	if err != nil {
		return Classify(err)
	}
	var stored model.Actor
	if err := db.Where("username = ?", a.Username).Take(&stored).Error; err != nil {
		return Classify(err)
	}
	*a = stored
	return nil
}

func (r *actorRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Actor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var actors []model.Actor
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&actors).Error
	return actors, Classify(err)
}
