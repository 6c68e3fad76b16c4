package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"farmacaixa/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_Open(t *testing.T) {
	f := newFixture(t)
	notes := "troco do cofre"

	s, err := f.mgr.Open(context.Background(), OpenInput{
		LocationID:   "  PHARM-1 ",
		ActorID:      uuid.New(),
		OpeningFloat: 10000,
		Notes:        &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, "PHARM-1", s.LocationID)
	assert.Equal(t, model.SessionOpen, s.Status)
	assert.Equal(t, model.Cents(10000), s.OpeningFloat)

	status, err := f.mgr.Status(context.Background(), "PHARM-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, s.ID, status.ID)

	opens := f.auditEvents(t, model.AuditOpen)
	require.Len(t, opens, 1)
	require.NotNil(t, opens[0].SessionID)
	assert.Equal(t, s.ID, *opens[0].SessionID)
}

func TestSessionManager_Open_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]OpenInput{
		"empty location": {LocationID: " ", ActorID: uuid.New()},
		"negative float": {LocationID: "PHARM-1", ActorID: uuid.New(), OpeningFloat: -1},
		"missing actor":  {LocationID: "PHARM-1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.mgr.Open(ctx, in)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
	// validation failures are not incidents
	assert.Empty(t, f.auditEvents(t, model.AuditError))
}

func TestSessionManager_Open_SecondOpenRejected(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, "PHARM-1", 10000)

	_, err := f.mgr.Open(context.Background(), OpenInput{LocationID: "PHARM-1", ActorID: uuid.New(), OpeningFloat: 5000})
	require.ErrorIs(t, err, model.ErrAlreadyOpen)

	status, err := f.mgr.Status(context.Background(), "PHARM-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, status.ID, "the original session is untouched")

	failures := f.auditEvents(t, model.AuditError)
	require.Len(t, failures, 1)
	assert.Nil(t, failures[0].SessionID)
	assert.Contains(t, string(failures[0].Payload), model.CodeAlreadyOpen)
}

func TestSessionManager_Open_ConcurrentCallsYieldOneSession(t *testing.T) {
	f := newFixture(t)
	const n = 12

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		opened  int
		already int
		other   []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.mgr.Open(context.Background(), OpenInput{LocationID: "PHARM-1", ActorID: uuid.New(), OpeningFloat: 10000})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case model.CodeOf(err) == model.CodeAlreadyOpen:
				already++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, opened)
	assert.Equal(t, n-1, already)

	var count int64
	require.NoError(t, f.db.Model(&model.CashSession{}).
		Where("location_id = ? AND status = ?", "PHARM-1", model.SessionOpen).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSessionManager_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := f.open(t, "PHARM-1", 10000)
	m1 := f.record(t, s1.ID, model.KindSaleSettlement, 4550, "")
	m2 := f.record(t, s1.ID, model.KindWithdrawal, 2000, "sangria teste")
	assert.Equal(t, int64(1), m1.Seq)
	assert.Equal(t, int64(2), m2.Seq)
	assert.Equal(t, "sale settlement", m1.Description)

	// concurrent open while S1 is OPEN
	_, err := f.mgr.Open(ctx, OpenInput{LocationID: "PHARM-1", ActorID: uuid.New()})
	require.ErrorIs(t, err, model.ErrAlreadyOpen)

	rec, err := f.mgr.Close(ctx, CloseInput{SessionID: s1.ID, ActorID: uuid.New(), CountedCloseAmount: 12500})
	require.NoError(t, err)
	assert.Equal(t, model.Cents(12550), rec.ExpectedCloseAmount)
	assert.Equal(t, model.Cents(-50), rec.Variance)
	assert.Equal(t, "125.50", rec.ExpectedCloseAmount.String())
	assert.Equal(t, "-0.50", rec.Variance.String())
	assert.Equal(t, model.VarianceNormal, rec.VarianceClass)

	status, err := f.mgr.Status(ctx, "PHARM-1")
	require.NoError(t, err)
	assert.Nil(t, status, "no open session after close")

	stored, err := f.sessions.FindByID(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionClosed, stored.Status)
	assertSameReconciliation(t, *rec, stored.Reconciliation())

	trail, err := f.mgr.AuditTrail(ctx, s1.ID, "")
	require.NoError(t, err)
	var kinds []model.AuditEventType
	for _, e := range trail {
		kinds = append(kinds, e.EventType)
	}
	assert.Equal(t, []model.AuditEventType{model.AuditOpen, model.AuditMovement, model.AuditMovement, model.AuditClose}, kinds)

	// the location can open a new session
	s2 := f.open(t, "PHARM-1", 12500)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestSessionManager_Close_RetryIsRejectedWithoutRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, "PHARM-1", 10000)
	f.record(t, s.ID, model.KindSaleSettlement, 1000, "")

	first, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 11000})
	require.NoError(t, err)

	_, err = f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 99999})
	require.ErrorIs(t, err, model.ErrAlreadyClosed)

	stored, err := f.sessions.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assertSameReconciliation(t, *first, stored.Reconciliation())
	assert.Equal(t, model.Cents(11000), *stored.CountedCloseAmount)
}

func TestSessionManager_Close_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "PHARM-1", 10000)

	t.Run("negative counted amount", func(t *testing.T) {
		_, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: -1})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := f.mgr.Close(ctx, CloseInput{SessionID: uuid.New(), ActorID: uuid.New()})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("session of another location", func(t *testing.T) {
		_, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), Scope: "PHARM-2"})
		assert.ErrorIs(t, err, model.ErrNotFound)

		stored, err := f.sessions.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionOpen, stored.Status)
	})
}

func TestSessionManager_Close_CriticalVarianceNotifies(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "PHARM-1", 10000)

	rec, err := f.mgr.Close(context.Background(), CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 8000})
	require.NoError(t, err)
	assert.Equal(t, model.VarianceCritical, rec.VarianceClass)
	assert.Equal(t, []uuid.UUID{s.ID}, f.notifier.calls)
}

func TestSessionManager_RecordRacingClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.open(t, "PHARM-1", 0)

	const writers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted model.Cents
		rejected int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Record(ctx, RecordInput{
				SessionID: s.ID, Kind: model.KindSaleSettlement, Amount: 100, ActorID: uuid.New(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted += 100
				return
			}
			assert.ErrorIs(t, err, model.ErrInvalidState)
			rejected++
		}()
	}

	time.Sleep(time.Millisecond)
	rec, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 0})
	require.NoError(t, err)
	wg.Wait()

	// every accepted movement is in the reconciliation, none after it
	assert.Equal(t, accepted, rec.SumSales)
	assert.Equal(t, writers, int(accepted/100)+rejected)

	movs, err := f.ledger.ListForSession(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Len(t, movs, int(accepted/100))
}

func TestSessionManager_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := f.open(t, "PHARM-1", 10000)
		_, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 10000})
		require.NoError(t, err)
	}
	f.open(t, "PHARM-2", 5000)

	page, err := f.mgr.History(ctx, HistoryFilter{LocationID: "PHARM-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, defaultPageLimit, page.Limit)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Sessions, 3)
	for _, v := range page.Sessions {
		assert.Equal(t, model.SessionClosed, v.Session.Status)
		assert.NotNil(t, v.Session.Reconciliation())
	}

	capped, err := f.mgr.History(ctx, HistoryFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageLimit, capped.Limit)
	assert.Equal(t, int64(4), capped.Total)

	_, err = f.mgr.History(ctx, HistoryFilter{Status: "PAUSED"})
	assert.ErrorIs(t, err, model.ErrValidation)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = f.mgr.History(ctx, HistoryFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSessionManager_Detail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, "PHARM-1", 10000)
	f.record(t, s.ID, model.KindSaleSettlement, 4550, "")
	f.record(t, s.ID, model.KindDeposit, 500, "troco")

	d, err := f.mgr.Detail(ctx, s.ID, "")
	require.NoError(t, err)
	require.NotNil(t, d.ExpectedSoFar)
	assert.Equal(t, model.Cents(15050), *d.ExpectedSoFar)
	assert.Len(t, d.Movements, 2)

	_, err = f.mgr.Detail(ctx, s.ID, "PHARM-9")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 15050})
	require.NoError(t, err)
	closed, err := f.mgr.Detail(ctx, s.ID, "PHARM-1")
	require.NoError(t, err)
	assert.Nil(t, closed.ExpectedSoFar)
}

func TestSessionManager_ReportPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.open(t, "PHARM-1", 10000)
	f.record(t, s.ID, model.KindWithdrawal, 2000, "sangria teste")

	_, err := f.mgr.ReportPDF(ctx, s.ID, "")
	require.ErrorIs(t, err, model.ErrInvalidState)

	_, err = f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 8000})
	require.NoError(t, err)

	pdf, err := f.mgr.ReportPDF(ctx, s.ID, "")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestSessionManager_AuditFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, withAuditRepo(failingAuditRepo{}))
	ctx := context.Background()

	s := f.open(t, "PHARM-1", 10000)
	f.record(t, s.ID, model.KindSaleSettlement, 1000, "")
	_, err := f.mgr.Close(ctx, CloseInput{SessionID: s.ID, ActorID: uuid.New(), CountedCloseAmount: 11000})
	require.NoError(t, err)

	// every lost entry went to the retry queue
	require.Equal(t, 3, f.queue.len())
	assert.Equal(t, model.AuditOpen, f.queue.entries[0].EventType)
	assert.Equal(t, model.AuditMovement, f.queue.entries[1].EventType)
	assert.Equal(t, model.AuditClose, f.queue.entries[2].EventType)
}
