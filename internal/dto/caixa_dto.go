package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	// LocationID may be omitted when the caller's token is bound to a location.
	LocationID   string           `json:"location_id"   validate:"omitempty,max=64"`
	OpeningFloat *decimal.Decimal `json:"opening_float" validate:"required,min=0"`
	Notes        *string          `json:"notes"         validate:"omitempty,max=500"`
}

// CountedCloseAmount is the blind count; zero is a valid count, absent is not.
type CloseSessionRequest struct {
	CountedCloseAmount *decimal.Decimal `json:"counted_close_amount" validate:"required,min=0"`
	Notes              *string          `json:"notes"                validate:"omitempty,max=500"`
}

type MovementRequest struct {
	Kind        string          `json:"kind"        validate:"required,oneof=WITHDRAWAL DEPOSIT"`
	Amount      decimal.Decimal `json:"amount"      validate:"required,gt=0"`
	Description string          `json:"description" validate:"required,min=3,max=500"`
}

type SaleSettlementRequest struct {
	Amount      decimal.Decimal `json:"amount"       validate:"required,gt=0"`
	Description string          `json:"description"  validate:"omitempty,max=500"`
	ReferenceID *string         `json:"reference_id" validate:"omitempty,max=64"`
}

type HistoryQuery struct {
	LocationID string `form:"location_id" validate:"omitempty,max=64"`
	From       string `form:"from"        validate:"omitempty,datetime=2006-01-02"`
	To         string `form:"to"          validate:"omitempty,datetime=2006-01-02"`
	Status     string `form:"status"      validate:"omitempty,oneof=OPEN CLOSED"`
	Page       int    `form:"page"        validate:"omitempty,min=1"`
	Limit      int    `form:"limit"       validate:"omitempty,min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

// Money fields render as fixed two-decimal strings, e.g. "140.00".
type SessionResponse struct {
	SessionID    string     `json:"session_id"`
	LocationID   string     `json:"location_id"`
	Status       string     `json:"status"`
	OpenedBy     ActorRef   `json:"opened_by"`
	OpenedAt     time.Time  `json:"opened_at"`
	OpeningFloat string     `json:"opening_float"`
	OpeningNotes *string    `json:"opening_notes,omitempty"`
	ClosedBy     *ActorRef  `json:"closed_by,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	// Reconciliation is present only once the session is CLOSED.
	Reconciliation *ReconciliationResponse `json:"reconciliation,omitempty"`
	Notes          *string                 `json:"notes,omitempty"`
}

type ActorRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

type ReconciliationResponse struct {
	SessionID           string `json:"session_id"`
	OpeningFloat        string `json:"opening_float"`
	SumSales            string `json:"sum_sales"`
	SumDeposits         string `json:"sum_deposits"`
	SumWithdrawals      string `json:"sum_withdrawals"`
	ExpectedCloseAmount string `json:"expected_close_amount"`
	CountedCloseAmount  string `json:"counted_close_amount"`
	Variance            string `json:"variance"`
	VariancePct         string `json:"variance_pct"`
	VarianceClass       string `json:"variance_class"` // normal | warning | critical
}

type MovementResponse struct {
	MovementID  string    `json:"movement_id"`
	SessionID   string    `json:"session_id"`
	Seq         int64     `json:"seq"`
	Kind        string    `json:"kind"`
	Amount      string    `json:"amount"`
	Description string    `json:"description"`
	ActorID     string    `json:"actor_id"`
	ReferenceID *string   `json:"reference_id,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type StatusResponse struct {
	Session *SessionResponse `json:"session"`
}

type HistoryResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	Total    int64             `json:"total"`
}

// SessionDetailResponse is the supervisor view of one session. For an OPEN
// session ExpectedSoFar is the live expected amount.
type SessionDetailResponse struct {
	SessionResponse
	Movements     []MovementResponse `json:"movements"`
	ExpectedSoFar *string            `json:"expected_so_far,omitempty"`
}

type AuditEntryResponse struct {
	ID         string    `json:"id"`
	SessionID  *string   `json:"session_id"`
	LocationID string    `json:"location_id"`
	EventType  string    `json:"event_type"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload"`
}
