package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"farmacaixa/internal/model"
	"farmacaixa/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

const auditWriteTimeout = 3 * time.Second

// AuditEvent is one fact to append to the trail.
type AuditEvent struct {
	SessionID  *uuid.UUID
	LocationID string
	EventType  model.AuditEventType
	ActorID    uuid.UUID
	Payload    any
}

// AuditQueue receives entries whose synchronous insert failed;
// *worker.Dispatcher implements it.
type AuditQueue interface {
	EnqueueAudit(ctx context.Context, entry *model.AuditEntry) error
}

// AuditRecorder appends entries on a best-effort basis. A failed write never
// fails the business operation that triggered it: it is logged as an audit
// gap and handed to the retry queue when one is configured.
type AuditRecorder struct {
	repo  repository.AuditRepository
	queue AuditQueue
	now   func() time.Time
}

func NewAuditRecorder(repo repository.AuditRepository, queue AuditQueue) *AuditRecorder {
	return &AuditRecorder{repo: repo, queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends ev. Failures are logged and queued, never returned.
func (r *AuditRecorder) Record(ctx context.Context, ev AuditEvent) {
	entry := &model.AuditEntry{
		ID:         uuid.New(),
		SessionID:  ev.SessionID,
		LocationID: ev.LocationID,
		EventType:  ev.EventType,
		ActorID:    ev.ActorID,
		Timestamp:  r.now(),
	}
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
		}
		entry.Payload = datatypes.JSON(raw)
	}

	// the caller's request may already be cancelled; the trail must not be
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	err := r.repo.Create(wctx, entry)
	if err == nil {
		return
	}

	logger := log.Ctx(ctx).Warn().
		Err(err).
		Bool("audit_gap", true).
		Str("audit_id", entry.ID.String()).
		Str("event_type", string(entry.EventType)).
		Str("location_id", entry.LocationID)
	if entry.SessionID != nil {
		logger = logger.Str("session_id", entry.SessionID.String())
	}
	logger.Msg("audit write failed")

	if r.queue == nil {
		return
	}
	qctx, qcancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer qcancel()
	if qerr := r.queue.EnqueueAudit(qctx, entry); qerr != nil {
		log.Ctx(ctx).Warn().
			Err(qerr).
			Bool("audit_gap", true).
			Str("audit_id", entry.ID.String()).
			Msg("audit entry could not be queued for retry")
	}
}

// RecordFailure writes an ERROR entry for a failed lifecycle or ledger call.
// Validation failures are the caller's mistake, not an incident, and are skipped.
func (r *AuditRecorder) RecordFailure(ctx context.Context, ev AuditEvent, opErr error) {
	if opErr == nil || errors.Is(opErr, model.ErrValidation) {
		return
	}
	code := model.CodeOf(opErr)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	ev.EventType = model.AuditError
	ev.Payload = map[string]any{
		"operation": ev.Payload,
		"code":      code,
		"error":     opErr.Error(),
	}
	r.Record(ctx, ev)
}
