package worker

// audit_worker.go
// Replays audit entries whose synchronous insert failed. The insert goes
// through the circuit breaker so a struggling audit store is left alone
// until it recovers; the retry cron also skips ticks while it is open.

import (
	"context"
	"encoding/json"
	"fmt"

	"farmacaixa/internal/infra"
	"farmacaixa/internal/model"
	"farmacaixa/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type AuditWorker struct {
	repo repository.AuditRepository
	cb   *infra.CircuitBreaker
}

func NewAuditWorker(repo repository.AuditRepository, cb *infra.CircuitBreaker) *AuditWorker {
	return &AuditWorker{repo: repo, cb: cb}
}

// Process stores one queued entry. Create is idempotent on the entry id, so
// a replay of an entry that eventually landed is harmless.
func (w *AuditWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var entry model.AuditEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Error().Err(err).Msg("audit_worker: invalid payload")
		return Permanent(fmt.Errorf("audit_worker: invalid payload: %w", err))
	}
	if entry.ID == uuid.Nil {
		return Permanent(fmt.Errorf("audit_worker: entry without id"))
	}

	err := w.cb.Execute(func() error {
		return w.repo.Create(ctx, &entry)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("audit_id", entry.ID.String()).
		Str("event_type", string(entry.EventType)).
		Msg("audit_worker: audit entry replayed")
	return nil
}
