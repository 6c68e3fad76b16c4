package service

import (
	"testing"

	"farmacaixa/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mov(kind model.MovementKind, amount model.Cents) model.Movement {
	return model.Movement{Kind: kind, Amount: amount}
}

func TestReconcile_Arithmetic(t *testing.T) {
	movs := []model.Movement{
		mov(model.KindSaleSettlement, 5000),
		mov(model.KindDeposit, 2000),
		mov(model.KindWithdrawal, 3000),
	}
	r := Reconcile(10000, movs, 13500, DefaultVarianceThresholds())

	assert.Equal(t, model.Cents(5000), r.SumSales)
	assert.Equal(t, model.Cents(2000), r.SumDeposits)
	assert.Equal(t, model.Cents(3000), r.SumWithdrawals)
	assert.Equal(t, model.Cents(14000), r.ExpectedCloseAmount)
	assert.Equal(t, model.Cents(13500), r.CountedCloseAmount)
	assert.Equal(t, model.Cents(-500), r.Variance)
	assert.Equal(t, "-3.57", r.VariancePct.StringFixed(2))
	assert.Equal(t, model.VarianceWarning, r.VarianceClass)
}

func TestReconcile_NoMovements(t *testing.T) {
	r := Reconcile(10000, nil, 10000, DefaultVarianceThresholds())
	assert.Equal(t, model.Cents(10000), r.ExpectedCloseAmount)
	assert.Equal(t, model.Cents(0), r.Variance)
	assert.True(t, r.VariancePct.IsZero())
	assert.Equal(t, model.VarianceNormal, r.VarianceClass)
}

func TestReconcile_MinorUnitsAreExact(t *testing.T) {
	r := Reconcile(1999, []model.Movement{mov(model.KindDeposit, 1)}, 2000, DefaultVarianceThresholds())
	assert.Equal(t, model.Cents(2000), r.ExpectedCloseAmount)
	assert.Equal(t, model.Cents(0), r.Variance)

	// ten 0.10 sales add up to exactly 1.00
	var movs []model.Movement
	for i := 0; i < 10; i++ {
		movs = append(movs, mov(model.KindSaleSettlement, 10))
	}
	assert.Equal(t, model.Cents(100), ExpectedSoFar(0, movs))
}

func TestReconcile_WithdrawalsBeyondFloat(t *testing.T) {
	// a negative expected amount is reported, not rejected
	r := Reconcile(1000, []model.Movement{mov(model.KindWithdrawal, 1500)}, 0, DefaultVarianceThresholds())
	assert.Equal(t, model.Cents(-500), r.ExpectedCloseAmount)
	assert.Equal(t, model.Cents(500), r.Variance)
}

func TestVariancePct(t *testing.T) {
	assert.Equal(t, "0.00", VariancePct(0, 0).StringFixed(2))
	assert.Equal(t, "100.00", VariancePct(500, 0).StringFixed(2))
	assert.Equal(t, "-0.40", VariancePct(-50, 12550).StringFixed(2))
	assert.Equal(t, "10.00", VariancePct(1000, 10000).StringFixed(2))
}

func TestClassifyVariance(t *testing.T) {
	th := DefaultVarianceThresholds()
	cases := []struct {
		pct  string
		want model.VarianceClass
	}{
		{"0", model.VarianceNormal},
		{"1", model.VarianceNormal},
		{"-1", model.VarianceNormal},
		{"1.01", model.VarianceWarning},
		{"-5", model.VarianceWarning},
		{"5.01", model.VarianceCritical},
		{"-100", model.VarianceCritical},
	}
	for _, tc := range cases {
		t.Run(tc.pct, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyVariance(decimal.RequireFromString(tc.pct), th))
		})
	}
}

func TestNewVarianceThresholds(t *testing.T) {
	th := NewVarianceThresholds(2, 10)
	assert.True(t, th.Warning.Equal(decimal.NewFromInt(2)))
	assert.True(t, th.Critical.Equal(decimal.NewFromInt(10)))

	def := NewVarianceThresholds(0, -1)
	assert.True(t, def.Warning.Equal(decimal.NewFromInt(1)))
	assert.True(t, def.Critical.Equal(decimal.NewFromInt(5)))

	inverted := NewVarianceThresholds(8, 3)
	assert.True(t, inverted.Critical.Equal(inverted.Warning))
}
