package worker

// email_worker.go
// Processes email jobs from QueueEmail.
// Renders the closing report PDF of a session and mails it to the
// configured recipients (critical variance notification).

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

// ReportEmailPayload is the job envelope sent to QueueEmail.
type ReportEmailPayload struct {
	SessionID string   `json:"session_id"`
	To        []string `json:"to"`
}

// ReportSender delivers a rendered report; *infra.Mailer implements it.
type ReportSender interface {
	SendReport(to []string, subject, body, fileName string, attachment []byte) error
}

// EmailWorker processes email jobs from QueueEmail.
type EmailWorker struct {
	sender    ReportSender
	sessions  repository.SessionRepository
	movements repository.MovementRepository
	actors    repository.ActorRepository
}

// NewEmailWorker creates an EmailWorker with the provided sender and stores.
func NewEmailWorker(
	sender ReportSender,
	sessions repository.SessionRepository,
	movements repository.MovementRepository,
	actors repository.ActorRepository,
) *EmailWorker {
	return &EmailWorker{sender: sender, sessions: sessions, movements: movements, actors: actors}
}

// Process sends an email with the closing report as attachment.
func (w *EmailWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReportEmailPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("email_worker: invalid payload")
		return Permanent(err)
	}
	if len(payload.To) == 0 {
		log.Warn().Msg("email_worker: no recipients, skipping")
		return nil
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		return Permanent(fmt.Errorf("email_worker: invalid session_id: %w", err))
	}

	session, err := w.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if model.CodeOf(err) == model.CodeNotFound {
			return Permanent(err)
		}
		return err
	}
	movs, err := w.movements.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	names := map[uuid.UUID]string{}
	ids := []uuid.UUID{session.OpenedBy}
	if session.ClosedBy != nil {
		ids = append(ids, *session.ClosedBy)
	}
	// names are cosmetic; a lookup failure still sends the report
	if actors, err := w.actors.FindByIDs(ctx, ids); err == nil {
		for _, a := range actors {
			names[a.ID] = a.DisplayName
		}
	}

	pdf, err := infra.GenerateSessionReportPDF(infra.SessionReport{
		Session:    session,
		Movements:  movs,
		ActorNames: names,
	})
	if err != nil {
		return Permanent(err)
	}

	subject := fmt.Sprintf("[Caixa %s] Fechamento com diferença crítica", session.LocationID)
	body := fmt.Sprintf("Sessão %s fechada com diferença classificada como crítica. Relatório em anexo.", session.ID)
	if rec := session.Reconciliation(); rec != nil {
		body = fmt.Sprintf("Sessão %s\nEsperado: %s\nContado: %s\nDiferença: %s (%s%%)\n",
			session.ID, rec.ExpectedCloseAmount, rec.CountedCloseAmount, rec.Variance, rec.VariancePct.StringFixed(2))
	}
	fileName := fmt.Sprintf("fechamento_%s.pdf", session.ID)

	if err := w.sender.SendReport(payload.To, subject, body, fileName, pdf); err != nil {
		log.Error().Err(err).Strs("to", payload.To).Msg("email_worker: failed to send email")
		return err
	}
	log.Info().Strs("to", payload.To).Str("session_id", session.ID.String()).Msg("email_worker: closing report sent")
	return nil
}
