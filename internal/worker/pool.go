package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueAudit = "jobs:audit"
	QueueEmail = "jobs:email"

	jobTypeAudit       = "audit"
	jobTypeReportEmail = "report_email"

	// delayedSuffix names the sorted set holding jobs waiting for a retry;
	// the score is the unix time at which the job becomes due.
	delayedSuffix = ":delayed"

	defaultMaxRetries = 5
)

// Job is the generic envelope for all async tasks.
type Job struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// DelayedKey returns the retry sorted set of a queue.
func DelayedKey(queue string) string { return queue + delayedSuffix }

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueAudit hands an audit entry that could not be stored synchronously
// to the replay workers.
func (d *Dispatcher) EnqueueAudit(ctx context.Context, entry *model.AuditEntry) error {
	return d.enqueue(ctx, QueueAudit, jobTypeAudit, entry)
}

// EnqueueReportEmail asks the email worker to send the closing report of a session.
func (d *Dispatcher) EnqueueReportEmail(ctx context.Context, sessionID uuid.UUID, to []string) error {
	return d.enqueue(ctx, QueueEmail, jobTypeReportEmail, ReportEmailPayload{
		SessionID: sessionID.String(),
		To:        to,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{ID: uuid.NewString(), Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handlers are the job processors the pool dispatches to. A nil handler
// drops jobs of its type with an error log.
type Handlers struct {
	Audit           *AuditWorker
	Email           *EmailWorker
	MaxAuditRetries int
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP, zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, h Handlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, h, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

// popErrorBackoff is how long a worker waits after BRPOP fails for any
// reason other than an empty queue.
var popErrorBackoff = time.Second

func runWorker(ctx context.Context, rdb *redis.Client, h Handlers, id int) {
	queues := []string{QueueAudit, QueueEmail}
	failing := false
	for {
		if ctx.Err() != nil {
			log.Info().Msgf("worker %d shutting down", id)
			return
		}
		// Blocking pop: waits up to 5s then loops to check ctx
		result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			if !failing {
				failing = true
				log.Error().Err(err).Int("worker", id).Msg("queue unavailable, backing off")
			}
			select {
			case <-ctx.Done():
			case <-time.After(popErrorBackoff):
			}
			continue
		}
		if failing {
			failing = false
			log.Info().Int("worker", id).Msg("queue reachable again")
		}
		if len(result) < 2 {
			continue
		}
		processJob(ctx, rdb, h, result[0], result[1])
	}
}

func processJob(ctx context.Context, rdb *redis.Client, h Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	var (
		err        error
		maxRetries = defaultMaxRetries
	)
	switch job.Type {
	case jobTypeAudit:
		if h.Audit == nil {
			err = fmt.Errorf("no audit handler configured")
			break
		}
		if h.MaxAuditRetries > 0 {
			maxRetries = h.MaxAuditRetries
		}
		err = h.Audit.Process(ctx, job.Payload)
	case jobTypeReportEmail:
		if h.Email == nil {
			err = fmt.Errorf("no email handler configured")
			break
		}
		err = h.Email.Process(ctx, job.Payload)
	default:
		log.Error().Str("type", job.Type).Str("queue", queue).Msg("unknown job type, dropping")
		return
	}
	if err == nil {
		return
	}
	if IsPermanent(err) {
		job.Attempts++
		if dlqErr := deadLetter(ctx, rdb, queue, job, err.Error()); dlqErr != nil {
			log.Error().Err(dlqErr).Str("queue", queue).Str("job_id", job.ID).Msg("failed to dead-letter job")
		}
		return
	}
	scheduleRetry(ctx, rdb, queue, job, err, maxRetries)
}

// scheduleRetry parks a failed job on the queue's delayed set with
// exponential backoff, or dead-letters it once maxRetries is reached.
func scheduleRetry(ctx context.Context, rdb *redis.Client, queue string, job Job, cause error, maxRetries int) {
	job.Attempts++
	if job.Attempts >= maxRetries {
		reason := fmt.Sprintf("max retries (%d) exceeded: %s", maxRetries, cause)
		if err := deadLetter(ctx, rdb, queue, job, reason); err != nil {
			log.Error().Err(err).Str("queue", queue).Str("job_id", job.ID).Msg("failed to dead-letter job")
		}
		return
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("failed to marshal job for retry")
		return
	}
	due := time.Now().Add(computeRetryBackoff(job.Attempts))
	if err := rdb.ZAdd(ctx, DelayedKey(queue), redis.Z{
		Score:  float64(due.Unix()),
		Member: encoded,
	}).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Str("job_id", job.ID).Msg("failed to schedule retry")
		return
	}
	log.Warn().
		Err(cause).
		Str("queue", queue).
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Time("next_retry_at", due).
		Msg("job failed, scheduled next attempt")
}

// computeRetryBackoff: 5s, 10s, 20s, ... capped at 10 minutes.
func computeRetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 8 {
		return 10 * time.Minute
	}
	d := 5 * time.Second << (attempts - 1)
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}

// permanentError marks a job that can never succeed (bad payload).
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the pool dead-letters the job without retrying.
func Permanent(err error) error { return permanentError{err: err} }

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}
