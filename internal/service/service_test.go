package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"farmacaixa/internal/model"
	"farmacaixa/internal/repository"
	"farmacaixa/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeQueue struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
	err     error
}

func (q *fakeQueue) EnqueueAudit(_ context.Context, e *model.AuditEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.entries = append(q.entries, e)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type failingAuditRepo struct{}

func (failingAuditRepo) Create(context.Context, *model.AuditEntry) error {
	return model.Transient(errors.New("connection refused"))
}

func (failingAuditRepo) ListBySession(context.Context, uuid.UUID) ([]model.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (n *fakeNotifier) EnqueueReportEmail(_ context.Context, id uuid.UUID, _ []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, id)
	return nil
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	db        *gorm.DB
	sessions  repository.SessionRepository
	movements repository.MovementRepository
	audits    repository.AuditRepository
	queue     *fakeQueue
	notifier  *fakeNotifier
	mgr       SessionManager
	ledger    LedgerService
}

type fixtureOption func(*fixture)

func withAuditRepo(r repository.AuditRepository) fixtureOption {
	return func(f *fixture) { f.audits = r }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &fixture{
		db:        db,
		sessions:  repository.NewSessionRepository(db),
		movements: repository.NewMovementRepository(db),
		audits:    repository.NewAuditRepository(db),
		queue:     &fakeQueue{},
		notifier:  &fakeNotifier{},
	}
	for _, o := range opts {
		o(f)
	}
	recorder := NewAuditRecorder(f.audits, f.queue)
	actors := NewActorDirectory(repository.NewActorRepository(db), nil)
	f.mgr = NewSessionManager(f.sessions, f.movements, f.audits, recorder, actors, f.notifier, SessionManagerConfig{
		Thresholds:    DefaultVarianceThresholds(),
		ReportEmailTo: []string{"gerencia@farmacia.test"},
	})
	f.ledger = NewLedgerService(f.sessions, f.movements, recorder, 0)
	return f
}

func (f *fixture) open(t *testing.T, location string, float model.Cents) *model.CashSession {
	t.Helper()
	s, err := f.mgr.Open(context.Background(), OpenInput{
		LocationID:   location,
		ActorID:      uuid.New(),
		OpeningFloat: float,
	})
	if err != nil {
		t.Fatalf("open %s: %v", location, err)
	}
	return s
}

func (f *fixture) record(t *testing.T, sid uuid.UUID, kind model.MovementKind, amount model.Cents, desc string) *model.Movement {
	t.Helper()
	m, err := f.ledger.Record(context.Background(), RecordInput{
		SessionID:   sid,
		Kind:        kind,
		Amount:      amount,
		Description: desc,
		ActorID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("record %s: %v", kind, err)
	}
	return m
}

func (f *fixture) auditEvents(t *testing.T, eventType model.AuditEventType) []model.AuditEntry {
	t.Helper()
	var out []model.AuditEntry
	if err := f.db.Where("event_type = ?", eventType).Order("timestamp ASC").Find(&out).Error; err != nil {
		t.Fatalf("load audit entries: %v", err)
	}
	return out
}

// assertSameReconciliation compares amounts exactly and the percentage by value,
// since a decimal read back from the store may carry a different exponent.
func assertSameReconciliation(t *testing.T, want model.Reconciliation, got *model.Reconciliation) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.OpeningFloat, got.OpeningFloat)
	assert.Equal(t, want.SumSales, got.SumSales)
	assert.Equal(t, want.SumDeposits, got.SumDeposits)
	assert.Equal(t, want.SumWithdrawals, got.SumWithdrawals)
	assert.Equal(t, want.ExpectedCloseAmount, got.ExpectedCloseAmount)
	assert.Equal(t, want.CountedCloseAmount, got.CountedCloseAmount)
	assert.Equal(t, want.Variance, got.Variance)
	assert.True(t, want.VariancePct.Equal(got.VariancePct), "variance pct %s != %s", want.VariancePct, got.VariancePct)
	assert.Equal(t, want.VarianceClass, got.VarianceClass)
}
