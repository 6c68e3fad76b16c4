package service

import (
	"context"
	"strings"
	"testing"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_Record_Validation(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "PHARM-1", 10000)
	ctx := context.Background()

	cases := map[string]RecordInput{
		"zero amount":            {SessionID: s.ID, Kind: model.KindDeposit, Amount: 0, Description: "troco", ActorID: uuid.New()},
		"negative amount":        {SessionID: s.ID, Kind: model.KindDeposit, Amount: -100, Description: "troco", ActorID: uuid.New()},
		"unknown kind":           {SessionID: s.ID, Kind: "REFUND", Amount: 100, Description: "x", ActorID: uuid.New()},
		"withdrawal without why": {SessionID: s.ID, Kind: model.KindWithdrawal, Amount: 100, Description: "  ", ActorID: uuid.New()},
		"description too long":   {SessionID: s.ID, Kind: model.KindDeposit, Amount: 100, Description: strings.Repeat("a", 501), ActorID: uuid.New()},
		"missing actor":          {SessionID: s.ID, Kind: model.KindDeposit, Amount: 100, Description: "troco"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ledger.Record(ctx, in)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	movs, err := f.ledger.ListForSession(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Empty(t, movs)
	assert.Empty(t, f.auditEvents(t, model.AuditError))
}

func TestLedgerService_Record_AfterCloseRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "PHARM-1", 10000)

	_, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 10000})
	require.NoError(t, err)

	_, err = f.ledger.Record(ctx, RecordInput{
		SessionID: s.ID, Kind: model.KindDeposit, Amount: 100, Description: "tarde demais", ActorID: uuid.New(),
	})
	require.ErrorIs(t, err, model.ErrInvalidState)

	movs, err := f.ledger.ListForSession(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Empty(t, movs)

	failures := f.auditEvents(t, model.AuditError)
	require.Len(t, failures, 1)
	assert.Contains(t, string(failures[0].Payload), model.CodeInvalidState)
}

func TestLedgerService_Record_UnknownOrForeignSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "PHARM-1", 10000)

	_, err := f.ledger.Record(ctx, RecordInput{
		SessionID: uuid.New(), Kind: model.KindDeposit, Amount: 100, Description: "troco", ActorID: uuid.New(),
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.ledger.Record(ctx, RecordInput{
		SessionID: s.ID, Kind: model.KindDeposit, Amount: 100, Description: "troco", ActorID: uuid.New(), Scope: "PHARM-2",
	})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.ledger.ListForSession(ctx, s.ID, "PHARM-2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLedgerService_ListForSession_Ordered(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "PHARM-1", 0)

	for i := 1; i <= 5; i++ {
		f.record(t, s.ID, model.KindSaleSettlement, model.Cents(i*100), "")
	}
	ref := "VENDA-42"
	m, err := f.ledger.Record(context.Background(), RecordInput{
		SessionID: s.ID, Kind: model.KindSaleSettlement, Amount: 999, ActorID: uuid.New(), ReferenceID: &ref,
	})
	require.NoError(t, err)
	require.NotNil(t, m.ReferenceID)

	movs, err := f.ledger.ListForSession(context.Background(), s.ID, "PHARM-1")
	require.NoError(t, err)
	require.Len(t, movs, 6)
	for i := 1; i < len(movs); i++ {
		assert.False(t, movs[i].RecordedAt.Before(movs[i-1].RecordedAt))
		assert.Greater(t, movs[i].Seq, movs[i-1].Seq)
	}
	assert.Equal(t, "VENDA-42", *movs[5].ReferenceID)
}
