package repository

import (
	"context"
	"errors"
	"time"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionFilter narrows History queries. Zero values mean "no filter".
type SessionFilter struct {
	LocationID string
	Status     model.SessionStatus
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

// SessionRepository is the durable store of till sessions. The one-open-per-
// location rule lives in the schema (partial unique index), so Create is a
// single conditional write and never a read-then-insert.
type SessionRepository interface {
	DB() *gorm.DB
	Create(ctx context.Context, s *model.CashSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	FindOpenByLocation(ctx context.Context, locationID string) (*model.CashSession, error)
	List(ctx context.Context, f SessionFilter) ([]model.CashSession, int64, error)

	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.CashSession, error)
	// MarkClosedTx flips OPEN→CLOSED and holds the row lock until the
	// surrounding transaction ends. Returns false when no OPEN row matched.
	MarkClosedTx(tx *gorm.DB, id, closedBy uuid.UUID, closedAt time.Time) (bool, error)
	SaveReconciliationTx(tx *gorm.DB, id uuid.UUID, r model.Reconciliation, notes *string) error
	// NextMovementSeqTx bumps movement_seq on an OPEN session and returns the
	// new value. ok is false when the session is missing or not OPEN.
	NextMovementSeqTx(tx *gorm.DB, id uuid.UUID) (seq int64, ok bool, err error)
}

type sessionRepo struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepo{db: db} }

func (r *sessionRepo) DB() *gorm.DB { return r.db }

func (r *sessionRepo) Create(ctx context.Context, s *model.CashSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(s).Error
	if IsUniqueViolation(err) {
		return model.ErrAlreadyOpen
	}
	return Classify(err)
}

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *sessionRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	if err := tx.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, Classify(err)
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenByLocation(ctx context.Context, locationID string) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("location_id = ? AND status = ?", locationID, model.SessionOpen).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify(err)
	}
	return &s, nil
}

func (r *sessionRepo) List(ctx context.Context, f SessionFilter) ([]model.CashSession, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.CashSession{})
	if f.LocationID != "" {
		q = q.Where("location_id = ?", f.LocationID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("opened_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("opened_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, Classify(err)
	}

	var sessions []model.CashSession
	err := q.Order("opened_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, Classify(err)
	}
	return sessions, total, nil
}

func (r *sessionRepo) MarkClosedTx(tx *gorm.DB, id, closedBy uuid.UUID, closedAt time.Time) (bool, error) {
	res := tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", id, model.SessionOpen).
		Updates(map[string]interface{}{
			"status":    model.SessionClosed,
			"closed_by": closedBy,
			"closed_at": closedAt,
		})
	if res.Error != nil {
		return false, Classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepo) SaveReconciliationTx(tx *gorm.DB, id uuid.UUID, rec model.Reconciliation, notes *string) error {
	err := tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", id, model.SessionClosed).
		Updates(map[string]interface{}{
			"counted_close_amount":  rec.CountedCloseAmount,
			"expected_close_amount": rec.ExpectedCloseAmount,
			"variance":              rec.Variance,
			"sum_sales":             rec.SumSales,
			"sum_deposits":          rec.SumDeposits,
			"sum_withdrawals":       rec.SumWithdrawals,
			"variance_pct":          rec.VariancePct,
			"variance_class":        rec.VarianceClass,
			"notes":                 notes,
		}).Error
	return Classify(err)
}

func (r *sessionRepo) NextMovementSeqTx(tx *gorm.DB, id uuid.UUID) (int64, bool, error) {
	res := tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", id, model.SessionOpen).
		UpdateColumn("movement_seq", gorm.Expr("movement_seq + 1"))
	if res.Error != nil {
		return 0, false, Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	var seq int64
	err := tx.Model(&model.CashSession{}).
		Select("movement_seq").
		Where("id = ?", id).
		Row().Scan(&seq)
	if err != nil {
		return 0, false, Classify(err)
	}
	return seq, true, nil
}
