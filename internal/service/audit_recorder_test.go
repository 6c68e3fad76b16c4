package service

import (
	"context"
	"errors"
	"testing"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecorder_RecordFailureSkipsValidation(t *testing.T) {
	q := &fakeQueue{}
	r := NewAuditRecorder(failingAuditRepo{}, q)

	r.RecordFailure(context.Background(), AuditEvent{LocationID: "PHARM-1", ActorID: uuid.New()},
		model.Validation("amount", "amount must be greater than zero"))
	r.RecordFailure(context.Background(), AuditEvent{LocationID: "PHARM-1", ActorID: uuid.New()}, nil)

	assert.Equal(t, 0, q.len())
}

func TestAuditRecorder_RecordFailurePayload(t *testing.T) {
	q := &fakeQueue{}
	r := NewAuditRecorder(failingAuditRepo{}, q)

	r.RecordFailure(context.Background(), AuditEvent{
		LocationID: "PHARM-1",
		ActorID:    uuid.New(),
		Payload:    map[string]any{"op": "close"},
	}, errors.New("disk full"))

	require.Equal(t, 1, q.len())
	e := q.entries[0]
	assert.Equal(t, model.AuditError, e.EventType)
	assert.JSONEq(t, `{"operation":{"op":"close"},"code":"INTERNAL_ERROR","error":"disk full"}`, string(e.Payload))
}

func TestAuditRecorder_SurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	r := NewAuditRecorder(f.audits, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sid := uuid.New()
	r.Record(ctx, AuditEvent{SessionID: &sid, LocationID: "PHARM-1", EventType: model.AuditOpen, ActorID: uuid.New()})

	trail, err := f.audits.ListBySession(context.Background(), sid)
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestAuditRecorder_QueueFailureIsSwallowed(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	r := NewAuditRecorder(failingAuditRepo{}, q)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), AuditEvent{LocationID: "PHARM-1", EventType: model.AuditOpen, ActorID: uuid.New()})
	})

	// no queue at all is fine too
	assert.NotPanics(t, func() {
		NewAuditRecorder(failingAuditRepo{}, nil).Record(context.Background(), AuditEvent{EventType: model.AuditOpen})
	})
}
