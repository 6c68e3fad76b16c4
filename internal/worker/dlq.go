package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DLQPrefix namespaces dead-letter lists: dlq:<queue>.
const DLQPrefix = "dlq:"

// dlqMaxLen bounds each dead-letter list; the oldest entries fall off.
const dlqMaxLen = 10000

// DeadLetter is a job that will not be retried again, kept for an operator
// to inspect and replay by hand.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	JobID    string          `json:"job_id"`
	JobType  string          `json:"job_type"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// DLQKey returns the dead-letter list of a queue.
func DLQKey(queue string) string { return DLQPrefix + queue }

// deadLetter parks job on the queue's dead-letter list. A lost audit job is
// an audit gap, so the log line carries audit_gap for that queue.
func deadLetter(ctx context.Context, rdb *redis.Client, queue string, job Job, reason string) error {
	data, err := json.Marshal(DeadLetter{
		Queue:    queue,
		JobID:    job.ID,
		JobType:  job.Type,
		Payload:  job.Payload,
		Reason:   reason,
		Attempts: job.Attempts,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	key := DLQKey(queue)
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, dlqMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}

	log.Warn().
		Str("queue", queue).
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("attempts", job.Attempts).
		Str("reason", reason).
		Bool("audit_gap", queue == QueueAudit).
		Msg("job dead-lettered")
	return nil
}

// DLQLength reports how many jobs of queue are dead-lettered.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQKey(queue)).Result()
}
