package service

import (
	"context"
	"strings"
	"time"

	"farmacaixa/internal/model"
	"farmacaixa/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const maxDescriptionLen = 500

// RecordInput is one ledger event to append to an OPEN session.
type RecordInput struct {
	SessionID   uuid.UUID
	Kind        model.MovementKind
	Amount      model.Cents
	Description string
	ActorID     uuid.UUID
	ReferenceID *string
	// Scope is the caller's bound location; empty means any location.
	Scope string
}

type LedgerService interface {
	Record(ctx context.Context, in RecordInput) (*model.Movement, error)
	ListForSession(ctx context.Context, sessionID uuid.UUID, scope string) ([]model.Movement, error)
}

type ledgerService struct {
	sessions  repository.SessionRepository
	movements repository.MovementRepository
	audit     *AuditRecorder
	timeout   time.Duration
	now       func() time.Time
}

func NewLedgerService(
	sessions repository.SessionRepository,
	movements repository.MovementRepository,
	audit *AuditRecorder,
	timeout time.Duration,
) LedgerService {
	return &ledgerService{
		sessions:  sessions,
		movements: movements,
		audit:     audit,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ── Record ───────────────────────────────────────────────────────────────────
// Append-only. The session row is bumped (movement_seq + 1, status = OPEN) in
// the same transaction as the insert, so a concurrent close either sees this
// movement or this insert sees CLOSED and fails.

func (s *ledgerService) Record(ctx context.Context, in RecordInput) (*model.Movement, error) {
	if err := validateRecord(&in); err != nil {
		return nil, err
	}

	ctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()

	var (
		mov        *model.Movement
		locationID string
	)
	err := runTx(ctx, s.sessions.DB(), func(tx *gorm.DB) error {
		sess, err := s.sessions.FindByIDTx(tx, in.SessionID)
		if err != nil {
			return err
		}
		if !inScope(in.Scope, sess.LocationID) {
			return model.ErrNotFound
		}
		locationID = sess.LocationID

		seq, ok, err := s.sessions.NextMovementSeqTx(tx, in.SessionID)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrInvalidState
		}

		mov = &model.Movement{
			ID:          uuid.New(),
			SessionID:   in.SessionID,
			Seq:         seq,
			Kind:        in.Kind,
			Amount:      in.Amount,
			Description: in.Description,
			ActorID:     in.ActorID,
			ReferenceID: in.ReferenceID,
			RecordedAt:  s.now(),
		}
		return s.movements.CreateTx(tx, mov)
	})

	sid := in.SessionID
	ev := AuditEvent{SessionID: &sid, LocationID: locationID, ActorID: in.ActorID}
	if err != nil {
		ev.Payload = map[string]any{"op": "record_movement", "kind": in.Kind, "amount": in.Amount}
		s.audit.RecordFailure(ctx, ev, err)
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("session_id", sid.String()).
		Str("movement_id", mov.ID.String()).
		Str("kind", string(mov.Kind)).
		Str("amount", mov.Amount.String()).
		Msg("movement recorded")

	ev.EventType = model.AuditMovement
	ev.Payload = map[string]any{
		"movement_id":  mov.ID,
		"seq":          mov.Seq,
		"kind":         mov.Kind,
		"amount":       mov.Amount,
		"description":  mov.Description,
		"reference_id": mov.ReferenceID,
	}
	s.audit.Record(ctx, ev)
	return mov, nil
}

func validateRecord(in *RecordInput) error {
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.SessionID == uuid.Nil:
		return model.Validation("session_id", "session id is required")
	case in.ActorID == uuid.Nil:
		return model.Validation("actor_id", "actor id is required")
	case !in.Kind.Valid():
		return model.Validation("kind", "kind must be SALE_SETTLEMENT, WITHDRAWAL or DEPOSIT")
	case in.Amount <= 0:
		return model.Validation("amount", "amount must be greater than zero")
	case len(in.Description) > maxDescriptionLen:
		return model.Validation("description", "description is too long")
	}
	if in.Kind != model.KindSaleSettlement && in.Description == "" {
		return model.Validation("description", "a description is required for withdrawals and deposits")
	}
	if in.Kind == model.KindSaleSettlement && in.Description == "" {
		in.Description = "sale settlement"
	}
	return nil
}

// ── ListForSession ───────────────────────────────────────────────────────────

func (s *ledgerService) ListForSession(ctx context.Context, sessionID uuid.UUID, scope string) ([]model.Movement, error) {
	ctx, cancel := storeCtx(ctx, s.timeout)
	defer cancel()

	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !inScope(scope, sess.LocationID) {
		return nil, model.ErrNotFound
	}
	return s.movements.ListBySession(ctx, sessionID)
}
