package service

import (
	"context"
	"strings"
	"time"

	"farmacaixa/internal/infra"
	"farmacaixa/internal/model"
	"farmacaixa/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	maxLocationIDLen = 64
	maxNotesLen      = 500
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type OpenInput struct {
	LocationID   string
	ActorID      uuid.UUID
	OpeningFloat model.Cents
	Notes        *string
}

type CloseInput struct {
	SessionID          uuid.UUID
	ActorID            uuid.UUID
	CountedCloseAmount model.Cents
	Notes              *string
	// Scope is the caller's bound location; empty means any location.
	Scope string
}

type HistoryFilter struct {
	LocationID string
	From       *time.Time
	To         *time.Time
	Status     model.SessionStatus
	Page       int
	Limit      int
}

// SessionView is a session with its operators' display names resolved.
type SessionView struct {
	Session      model.CashSession
	OpenedByName string
	ClosedByName string
}

type HistoryPage struct {
	Sessions []SessionView
	Page     int
	Limit    int
	Total    int64
}

// SessionDetail is the supervisor view of one session. ExpectedSoFar is set
// only while the session is OPEN.
type SessionDetail struct {
	SessionView
	Movements     []model.Movement
	ExpectedSoFar *model.Cents
}

// ReportNotifier queues the closing report email; *worker.Dispatcher implements it.
type ReportNotifier interface {
	EnqueueReportEmail(ctx context.Context, sessionID uuid.UUID, to []string) error
}

type SessionManager interface {
	Open(ctx context.Context, in OpenInput) (*model.CashSession, error)
	Close(ctx context.Context, in CloseInput) (*model.Reconciliation, error)
	Status(ctx context.Context, locationID string) (*model.CashSession, error)
	History(ctx context.Context, f HistoryFilter) (*HistoryPage, error)
	Detail(ctx context.Context, sessionID uuid.UUID, scope string) (*SessionDetail, error)
	ReportPDF(ctx context.Context, sessionID uuid.UUID, scope string) ([]byte, error)
	AuditTrail(ctx context.Context, sessionID uuid.UUID, scope string) ([]model.AuditEntry, error)
}

// SessionManagerConfig carries the tunables of the lifecycle service.
type SessionManagerConfig struct {
	StoreTimeout time.Duration
	Thresholds   VarianceThresholds
	// ReportEmailTo receives the closing report of critical closes.
	ReportEmailTo []string
}

type sessionManager struct {
	sessions  repository.SessionRepository
	movements repository.MovementRepository
	audits    repository.AuditRepository
	recorder  *AuditRecorder
	actors    *ActorDirectory
	notifier  ReportNotifier
	cfg       SessionManagerConfig
	now       func() time.Time
}

func NewSessionManager(
	sessions repository.SessionRepository,
	movements repository.MovementRepository,
	audits repository.AuditRepository,
	recorder *AuditRecorder,
	actors *ActorDirectory,
	notifier ReportNotifier,
	cfg SessionManagerConfig,
) SessionManager {
	if cfg.Thresholds.Warning.IsZero() && cfg.Thresholds.Critical.IsZero() {
		cfg.Thresholds = DefaultVarianceThresholds()
	}
	return &sessionManager{
		sessions:  sessions,
		movements: movements,
		audits:    audits,
		recorder:  recorder,
		actors:    actors,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ── Open ─────────────────────────────────────────────────────────────────────
// A single INSERT. The partial unique index on (location_id) WHERE
// status = 'OPEN' turns a concurrent or repeated open into ALREADY_OPEN.

func (s *sessionManager) Open(ctx context.Context, in OpenInput) (*model.CashSession, error) {
	in.LocationID = strings.TrimSpace(in.LocationID)
	if err := validateOpen(in); err != nil {
		return nil, err
	}

	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()

	sess := &model.CashSession{
		ID:           uuid.New(),
		LocationID:   in.LocationID,
		OpenedBy:     in.ActorID,
		OpenedAt:     s.now(),
		OpeningFloat: in.OpeningFloat,
		OpeningNotes: in.Notes,
		Status:       model.SessionOpen,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.recorder.RecordFailure(ctx, AuditEvent{
			LocationID: in.LocationID,
			ActorID:    in.ActorID,
			Payload:    map[string]any{"op": "open", "opening_float": in.OpeningFloat},
		}, err)
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("session_id", sess.ID.String()).
		Str("location_id", sess.LocationID).
		Str("opening_float", sess.OpeningFloat.String()).
		Msg("cash session opened")

	sid := sess.ID
	s.recorder.Record(ctx, AuditEvent{
		SessionID:  &sid,
		LocationID: sess.LocationID,
		EventType:  model.AuditOpen,
		ActorID:    in.ActorID,
		Payload: map[string]any{
			"opening_float": sess.OpeningFloat,
			"opened_at":     sess.OpenedAt,
			"notes":         sess.OpeningNotes,
		},
	})
	return sess, nil
}

func validateOpen(in OpenInput) error {
	switch {
	case in.LocationID == "":
		return model.Validation("location_id", "location id is required")
	case len(in.LocationID) > maxLocationIDLen:
		return model.Validation("location_id", "location id is too long")
	case in.ActorID == uuid.Nil:
		return model.Validation("actor_id", "actor id is required")
	case in.OpeningFloat < 0:
		return model.Validation("opening_float", "opening float cannot be negative")
	case in.Notes != nil && len(*in.Notes) > maxNotesLen:
		return model.Validation("notes", "notes are too long")
	}
	return nil
}

// ── Close ────────────────────────────────────────────────────────────────────
// One transaction: flip OPEN→CLOSED (row lock held from here), read the frozen
// ledger, reconcile, store the result. A second close finds no OPEN row and
// gets ALREADY_CLOSED without recomputing anything.

func (s *sessionManager) Close(ctx context.Context, in CloseInput) (*model.Reconciliation, error) {
	switch {
	case in.SessionID == uuid.Nil:
		return nil, model.Validation("session_id", "session id is required")
	case in.ActorID == uuid.Nil:
		return nil, model.Validation("actor_id", "actor id is required")
	case in.CountedCloseAmount < 0:
		return nil, model.Validation("counted_close_amount", "counted amount cannot be negative")
	case in.Notes != nil && len(*in.Notes) > maxNotesLen:
		return nil, model.Validation("notes", "notes are too long")
	}

	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()

	var (
		rec        model.Reconciliation
		locationID string
		closedAt   = s.now()
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

		ok, err := s.sessions.MarkClosedTx(tx, in.SessionID, in.ActorID, closedAt)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrAlreadyClosed
		}

		movs, err := s.movements.ListBySessionTx(tx, in.SessionID)
		if err != nil {
			return err
		}
		rec = Reconcile(sess.OpeningFloat, movs, in.CountedCloseAmount, s.cfg.Thresholds)
		return s.sessions.SaveReconciliationTx(tx, in.SessionID, rec, in.Notes)
	})

	sid := in.SessionID
	ev := AuditEvent{SessionID: &sid, LocationID: locationID, ActorID: in.ActorID}
	if err != nil {
		ev.Payload = map[string]any{"op": "close", "counted_close_amount": in.CountedCloseAmount}
		s.recorder.RecordFailure(ctx, ev, err)
		return nil, err
	}

	logEvt := log.Ctx(ctx).Info()
	if rec.VarianceClass == model.VarianceCritical {
		logEvt = log.Ctx(ctx).Warn()
	}
	logEvt.
		Str("session_id", sid.String()).
		Str("expected", rec.ExpectedCloseAmount.String()).
		Str("counted", rec.CountedCloseAmount.String()).
		Str("variance", rec.Variance.String()).
		Str("variance_class", string(rec.VarianceClass)).
		Msg("cash session closed")

	ev.EventType = model.AuditClose
	ev.Payload = map[string]any{
		"closed_at":             closedAt,
		"opening_float":         rec.OpeningFloat,
		"sum_sales":             rec.SumSales,
		"sum_deposits":          rec.SumDeposits,
		"sum_withdrawals":       rec.SumWithdrawals,
		"expected_close_amount": rec.ExpectedCloseAmount,
		"counted_close_amount":  rec.CountedCloseAmount,
		"variance":              rec.Variance,
		"variance_pct":          rec.VariancePct,
		"variance_class":        rec.VarianceClass,
		"notes":                 in.Notes,
	}
	s.recorder.Record(ctx, ev)

	if rec.VarianceClass == model.VarianceCritical {
		s.notifyCritical(ctx, sid)
	}
	return &rec, nil
}

func (s *sessionManager) notifyCritical(ctx context.Context, sessionID uuid.UUID) {
	if s.notifier == nil || len(s.cfg.ReportEmailTo) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := s.notifier.EnqueueReportEmail(nctx, sessionID, s.cfg.ReportEmailTo); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to enqueue closing report email")
	}
}

// ── Status ───────────────────────────────────────────────────────────────────

// Status returns the OPEN session at locationID, or nil when the till is closed.
func (s *sessionManager) Status(ctx context.Context, locationID string) (*model.CashSession, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, model.Validation("location_id", "location id is required")
	}
	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.sessions.FindOpenByLocation(ctx, locationID)
}

// ── History ──────────────────────────────────────────────────────────────────

func (s *sessionManager) History(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if f.Status != "" && f.Status != model.SessionOpen && f.Status != model.SessionClosed {
		return nil, model.Validation("status", "status must be OPEN or CLOSED")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, model.Validation("from", "from must be before to")
	}

	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()

	sessions, total, err := s.sessions.List(ctx, repository.SessionFilter{
		LocationID: strings.TrimSpace(f.LocationID),
		Status:     f.Status,
		From:       f.From,
		To:         f.To,
		Page:       f.Page,
		Limit:      f.Limit,
	})
	if err != nil {
		return nil, err
	}

	return &HistoryPage{
		Sessions: s.views(ctx, sessions),
		Page:     f.Page,
		Limit:    f.Limit,
		Total:    total,
	}, nil
}

func (s *sessionManager) views(ctx context.Context, sessions []model.CashSession) []SessionView {
	ids := make([]uuid.UUID, 0, 2*len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.OpenedBy)
		if sess.ClosedBy != nil {
			ids = append(ids, *sess.ClosedBy)
		}
	}
	var names map[uuid.UUID]string
	if s.actors != nil {
		names = s.actors.Names(ctx, ids)
	}
	out := make([]SessionView, len(sessions))
	for i, sess := range sessions {
		out[i] = SessionView{Session: sess, OpenedByName: names[sess.OpenedBy]}
		if sess.ClosedBy != nil {
			out[i].ClosedByName = names[*sess.ClosedBy]
		}
	}
	return out
}

// ── Detail / report / audit trail ────────────────────────────────────────────

func (s *sessionManager) load(ctx context.Context, sessionID uuid.UUID, scope string) (*model.CashSession, []model.Movement, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !inScope(scope, sess.LocationID) {
		return nil, nil, model.ErrNotFound
	}
	movs, err := s.movements.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, movs, nil
}

func (s *sessionManager) Detail(ctx context.Context, sessionID uuid.UUID, scope string) (*SessionDetail, error) {
	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()

	sess, movs, err := s.load(ctx, sessionID, scope)
	if err != nil {
		return nil, err
	}
	d := &SessionDetail{
		SessionView: s.views(ctx, []model.CashSession{*sess})[0],
		Movements:   movs,
	}
	if sess.Status == model.SessionOpen {
		d.ExpectedSoFar = ExpectedSoFar(sess.OpeningFloat, movs).Ptr()
	}
	return d, nil
}

// ReportPDF renders the closing report; only CLOSED sessions have one.
func (s *sessionManager) ReportPDF(ctx context.Context, sessionID uuid.UUID, scope string) ([]byte, error) {
	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()

	sess, movs, err := s.load(ctx, sessionID, scope)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionClosed {
		return nil, model.ErrInvalidState
	}
	view := s.views(ctx, []model.CashSession{*sess})[0]
	names := map[uuid.UUID]string{sess.OpenedBy: view.OpenedByName}
	if sess.ClosedBy != nil {
		names[*sess.ClosedBy] = view.ClosedByName
	}
	return infra.GenerateSessionReportPDF(infra.SessionReport{
		Session:    sess,
		Movements:  movs,
		ActorNames: names,
	})
}

func (s *sessionManager) AuditTrail(ctx context.Context, sessionID uuid.UUID, scope string) ([]model.AuditEntry, error) {
	ctx, cancel := storeCtx(ctx, s.cfg.StoreTimeout)
	defer cancel()

	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !inScope(scope, sess.LocationID) {
		return nil, model.ErrNotFound
	}
	return s.audits.ListBySession(ctx, sessionID)
}
