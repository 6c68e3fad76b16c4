package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// VarianceClass: "normal" | "warning" | "critical"
type VarianceClass string

const (
	VarianceNormal   VarianceClass = "normal"
	VarianceWarning  VarianceClass = "warning"
	VarianceCritical VarianceClass = "critical"
)

// CashSession is the accountable period of one physical till.
// At most one OPEN row per LocationID exists at any time; the partial unique
// index uniq_cash_sessions_open_location enforces it. A session is written
// twice: INSERT on open and the OPEN→CLOSED update on close.
type CashSession struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey"`
	LocationID   string        `gorm:"type:varchar(64);not null;index"`
	OpenedBy     uuid.UUID     `gorm:"type:uuid;not null"`
	OpenedAt     time.Time     `gorm:"not null"`
	OpeningFloat Cents         `gorm:"not null"`
	OpeningNotes *string       `gorm:"type:text"`
	Status       SessionStatus `gorm:"type:varchar(10);not null"`

	ClosedBy            *uuid.UUID `gorm:"type:uuid"`
	ClosedAt            *time.Time
	CountedCloseAmount  *Cents
	ExpectedCloseAmount *Cents
	Variance            *Cents
	SumSales            *Cents
	SumDeposits         *Cents
	SumWithdrawals      *Cents
	VariancePct         *decimal.Decimal `gorm:"type:decimal(9,2)"`
	VarianceClass       *VarianceClass   `gorm:"type:varchar(10)"`
	Notes               *string          `gorm:"type:text"`

	// MovementSeq is bumped under the row lock by every ledger insert. It
	// orders movements with identical timestamps.
	MovementSeq int64 `gorm:"not null;default:0"`
}

func (CashSession) TableName() string { return "cash_sessions" }

// Reconciliation rebuilds the persisted close result; nil while OPEN.
func (s *CashSession) Reconciliation() *Reconciliation {
	if s.Status != SessionClosed || s.ExpectedCloseAmount == nil || s.CountedCloseAmount == nil {
		return nil
	}
	r := &Reconciliation{
		OpeningFloat:        s.OpeningFloat,
		ExpectedCloseAmount: *s.ExpectedCloseAmount,
		CountedCloseAmount:  *s.CountedCloseAmount,
	}
	if s.SumSales != nil {
		r.SumSales = *s.SumSales
	}
	if s.SumDeposits != nil {
		r.SumDeposits = *s.SumDeposits
	}
	if s.SumWithdrawals != nil {
		r.SumWithdrawals = *s.SumWithdrawals
	}
	if s.Variance != nil {
		r.Variance = *s.Variance
	}
	if s.VariancePct != nil {
		r.VariancePct = *s.VariancePct
	}
	if s.VarianceClass != nil {
		r.VarianceClass = *s.VarianceClass
	}
	return r
}

// MovementKind: SALE_SETTLEMENT adds, DEPOSIT (suprimento) adds,
// WITHDRAWAL (sangria) subtracts.
type MovementKind string

const (
	KindSaleSettlement MovementKind = "SALE_SETTLEMENT"
	KindWithdrawal     MovementKind = "WITHDRAWAL"
	KindDeposit        MovementKind = "DEPOSIT"
)

func (k MovementKind) Valid() bool {
	switch k {
	case KindSaleSettlement, KindWithdrawal, KindDeposit:
		return true
	}
	return false
}

// Movement is an immutable ledger event. Amount is always positive; the sign
// comes from Kind. Movements are never updated or deleted.
type Movement struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey"`
	SessionID   uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:uniq_cash_movements_session_seq,priority:1"`
	Seq         int64        `gorm:"not null;uniqueIndex:uniq_cash_movements_session_seq,priority:2"`
	Kind        MovementKind `gorm:"type:varchar(20);not null"`
	Amount      Cents        `gorm:"not null"`
	Description string       `gorm:"type:text;not null"`
	ActorID     uuid.UUID    `gorm:"type:uuid;not null"`
	// ReferenceID links a SALE_SETTLEMENT to the sale in the sales subsystem.
	ReferenceID *string   `gorm:"type:varchar(64)"`
	RecordedAt  time.Time `gorm:"not null;index"`
}

func (Movement) TableName() string { return "cash_movements" }

// Reconciliation is the close-time computation persisted onto the session.
type Reconciliation struct {
	OpeningFloat        Cents
	SumSales            Cents
	SumDeposits         Cents
	SumWithdrawals      Cents
	ExpectedCloseAmount Cents
	CountedCloseAmount  Cents
	Variance            Cents
	VariancePct         decimal.Decimal
	VarianceClass       VarianceClass
}
