package service

import (
	"farmacaixa/internal/model"

	"github.com/shopspring/decimal"
)

// VarianceThresholds bounds the variance classes, in percent of expected.
// normal: |pct| <= Warning, warning: <= Critical, critical: above.
type VarianceThresholds struct {
	Warning  decimal.Decimal
	Critical decimal.Decimal
}

// DefaultVarianceThresholds: 1% and 5%.
func DefaultVarianceThresholds() VarianceThresholds {
	return VarianceThresholds{
		Warning:  decimal.NewFromInt(1),
		Critical: decimal.NewFromInt(5),
	}
}

// NewVarianceThresholds builds thresholds from config percentages, falling
// back to the defaults for non-positive or inverted values.
func NewVarianceThresholds(warningPct, criticalPct float64) VarianceThresholds {
	t := DefaultVarianceThresholds()
	if warningPct > 0 {
		t.Warning = decimal.NewFromFloat(warningPct)
	}
	if criticalPct > 0 {
		t.Critical = decimal.NewFromFloat(criticalPct)
	}
	if t.Critical.LessThan(t.Warning) {
		t.Critical = t.Warning
	}
	return t
}

// ── Reconcile ────────────────────────────────────────────────────────────────

// Reconcile computes the close result from the opening float, the full
// ledger of the session and the counted amount. Pure integer arithmetic:
//
//	expected = opening + sales + deposits - withdrawals
//	variance = counted - expected
func Reconcile(openingFloat model.Cents, movements []model.Movement, counted model.Cents, th VarianceThresholds) model.Reconciliation {
	r := model.Reconciliation{
		OpeningFloat:       openingFloat,
		CountedCloseAmount: counted,
	}
	for _, m := range movements {
		switch m.Kind {
		case model.KindSaleSettlement:
			r.SumSales += m.Amount
		case model.KindDeposit:
			r.SumDeposits += m.Amount
		case model.KindWithdrawal:
			r.SumWithdrawals += m.Amount
		}
	}
	r.ExpectedCloseAmount = openingFloat + r.SumSales + r.SumDeposits - r.SumWithdrawals
	r.Variance = counted - r.ExpectedCloseAmount
	r.VariancePct = VariancePct(r.Variance, r.ExpectedCloseAmount)
	r.VarianceClass = ClassifyVariance(r.VariancePct, th)
	return r
}

// ExpectedSoFar is the running expected amount of an OPEN session.
func ExpectedSoFar(openingFloat model.Cents, movements []model.Movement) model.Cents {
	return Reconcile(openingFloat, movements, 0, DefaultVarianceThresholds()).ExpectedCloseAmount
}

var hundred = decimal.NewFromInt(100)

// VariancePct is variance/expected*100 rounded to 2 places. With nothing
// expected any variance counts as 100%.
func VariancePct(variance, expected model.Cents) decimal.Decimal {
	if expected == 0 {
		if variance == 0 {
			return decimal.Zero
		}
		return hundred
	}
	return decimal.NewFromInt(int64(variance)).
		Div(decimal.NewFromInt(int64(expected))).
		Mul(hundred).
		Round(2)
}

// ClassifyVariance buckets |pct| into normal | warning | critical.
func ClassifyVariance(pct decimal.Decimal, th VarianceThresholds) model.VarianceClass {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(th.Warning):
		return model.VarianceNormal
	case abs.LessThanOrEqual(th.Critical):
		return model.VarianceWarning
	default:
		return model.VarianceCritical
	}
}
