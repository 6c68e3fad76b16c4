package model

import (
	"github.com/shopspring/decimal"
)

// Cents is a monetary amount in integer minor units. All ledger and
// reconciliation arithmetic happens on Cents; decimal values only exist at
// the HTTP boundary.
type Cents int64

// maxAmount caps accepted inputs well below int64 overflow even after summing
// a very large session.
const maxAmount = Cents(1_000_000_000_000) // 10 billion in major units

var hundred = decimal.NewFromInt(100)

// CentsFromDecimal converts a major-unit decimal (e.g. 45.50) into Cents.
// Values with more than two fractional digits are rejected instead of rounded.
func CentsFromDecimal(d decimal.Decimal) (Cents, bool) {
	scaled := d.Mul(hundred)
	if !scaled.IsInteger() {
		return 0, false
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(int64(maxAmount))) {
		return 0, false
	}
	return Cents(scaled.IntPart()), true
}

// Decimal renders c in major units with two fractional digits.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Ptr returns a pointer to a copy of c.
func (c Cents) Ptr() *Cents { return &c }
