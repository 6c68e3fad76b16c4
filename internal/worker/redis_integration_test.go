//go:build integration

package worker

// Queue mechanics against a real Redis.
// Run with: go test -tags integration ./internal/worker/... -v

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"farmacaixa/internal/infra"
	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	url, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestDispatcher_EnqueueAudit(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	_, raw := auditPayload(t)
	var entry model.AuditEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	require.NoError(t, NewDispatcher(rdb).EnqueueAudit(ctx, &entry))

	n, err := rdb.LLen(ctx, QueueAudit).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	encoded, err := rdb.RPop(ctx, QueueAudit).Result()
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(encoded), &job))
	assert.Equal(t, jobTypeAudit, job.Type)
	assert.Equal(t, 0, job.Attempts)
}

func TestProcessJob_RetryThenDeadLetter(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	repo := &flakyAuditRepo{fail: true}
	h := Handlers{
		Audit:           NewAuditWorker(repo, infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 100})),
		MaxAuditRetries: 2,
	}
	_, payload := auditPayload(t)
	job := Job{ID: uuid.NewString(), Type: jobTypeAudit, Payload: payload}
	raw, _ := json.Marshal(job)

	// first failure parks it on the delayed set
	processJob(ctx, rdb, h, QueueAudit, string(raw))
	delayed, err := rdb.ZRange(ctx, DelayedKey(QueueAudit), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, delayed, 1)

	// not due yet
	assert.Equal(t, 0, requeueDue(ctx, rdb, QueueAudit, time.Now()))
	// due after the backoff
	assert.Equal(t, 1, requeueDue(ctx, rdb, QueueAudit, time.Now().Add(time.Minute)))

	requeued, err := rdb.RPop(ctx, QueueAudit).Result()
	require.NoError(t, err)

	// second failure reaches the retry limit
	processJob(ctx, rdb, h, QueueAudit, requeued)
	dlq, err := DLQLength(ctx, rdb, QueueAudit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlq)

	left, err := rdb.ZCard(ctx, DelayedKey(QueueAudit)).Result()
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestProcessJob_PermanentGoesStraightToDLQ(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	h := Handlers{Audit: NewAuditWorker(&flakyAuditRepo{}, infra.NewCircuitBreaker(infra.DefaultCBConfig()))}
	jobID := uuid.NewString()
	raw, _ := json.Marshal(Job{ID: jobID, Type: jobTypeAudit, Payload: json.RawMessage(`{}`)})

	processJob(ctx, rdb, h, QueueAudit, string(raw))

	dlq, err := DLQLength(ctx, rdb, QueueAudit)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlq)

	stored, err := rdb.LIndex(ctx, DLQKey(QueueAudit), 0).Result()
	require.NoError(t, err)
	var dl DeadLetter
	require.NoError(t, json.Unmarshal([]byte(stored), &dl))
	assert.Equal(t, jobID, dl.JobID)
	assert.Equal(t, QueueAudit, dl.Queue)
	assert.Equal(t, 1, dl.Attempts)
}

func TestProcessRetries_SkipsAuditWhileCircuitOpen(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour})
	_ = cb.Execute(func() error { return assert.AnError })
	require.Equal(t, infra.CBOpen, cb.State())

	past := float64(time.Now().Add(-time.Minute).Unix())
	require.NoError(t, rdb.ZAdd(ctx, DelayedKey(QueueAudit), redis.Z{Score: past, Member: `{"id":"a"}`}).Err())
	require.NoError(t, rdb.ZAdd(ctx, DelayedKey(QueueEmail), redis.Z{Score: past, Member: `{"id":"e"}`}).Err())

	processRetries(ctx, RetryCronConfig{RDB: rdb, CB: cb}, time.Now())

	audit, _ := rdb.LLen(ctx, QueueAudit).Result()
	email, _ := rdb.LLen(ctx, QueueEmail).Result()
	assert.Zero(t, audit, "audit jobs stay parked")
	assert.Equal(t, int64(1), email)
}
