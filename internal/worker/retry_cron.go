package worker

// retry_cron.go
// Background goroutine that periodically moves due jobs from the delayed
// sorted sets back onto their queues. Uses the Circuit Breaker to leave
// audit jobs parked while the audit store is down.

import (
	"context"
	"strconv"
	"time"

	"farmacaixa/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRetryInterval = 30 * time.Second
	retryBatchSize       = 50
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	RDB      *redis.Client
	CB       *infra.CircuitBreaker // guards the audit store
	Interval time.Duration
}

// StartRetryCron launches a background goroutine that ticks every Interval
// and requeues due jobs. It respects the context for graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg, time.Now())
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig, now time.Time) {
	// If CB is open, leave audit jobs parked; don't hammer a downed store
	if cfg.CB != nil && cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping audit queue")
	} else {
		requeueDue(ctx, cfg.RDB, QueueAudit, now)
	}
	requeueDue(ctx, cfg.RDB, QueueEmail, now)
}

// requeueDue moves up to retryBatchSize due members of the queue's delayed
// set back onto the queue and returns how many were moved. ZREM decides
// ownership, so concurrent crons on several replicas never double-enqueue.
func requeueDue(ctx context.Context, rdb *redis.Client, queue string, now time.Time) int {
	key := DelayedKey(queue)
	due, err := rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: retryBatchSize,
	}).Result()
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("retry_cron: failed to query delayed jobs")
		return 0
	}

	moved := 0
	for _, member := range due {
		removed, err := rdb.ZRem(ctx, key, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := rdb.LPush(ctx, queue, member).Err(); err != nil {
			log.Error().Err(err).Str("queue", queue).Msg("retry_cron: failed to requeue job")
			// put it back so it is not lost
			_ = rdb.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: member}).Err()
			continue
		}
		moved++
	}
	if moved > 0 {
		log.Info().Int("count", moved).Str("queue", queue).Msg("retry_cron: requeued delayed jobs")
	}
	return moved
}
