// Package money gives Credit and Debit their own types so a sign
// inversion is a compile error instead of a runtime bug. Both are
// always non-negative; callers that need a signed P/L convert
// explicitly with Signed().
package money

import "github.com/shopspring/decimal"

// Credit is a non-negative amount received (e.g. opening a credit
// spread, or the mid-price of a spread about to be sold).
type Credit struct{ v decimal.Decimal }

// Debit is a non-negative amount paid.
type Debit struct{ v decimal.Decimal }

// NewCredit takes the absolute value of amount, so a negative input
// yields a positive Credit; it never panics.
func NewCredit(amount decimal.Decimal) Credit {
	if amount.IsNegative() {
		amount = amount.Neg()
	}
	return Credit{v: amount}
}

// NewDebit panics-free; mirrors NewCredit.
func NewDebit(amount decimal.Decimal) Debit {
	if amount.IsNegative() {
		amount = amount.Neg()
	}
	return Debit{v: amount}
}

// ZeroCredit is the additive identity.
var ZeroCredit = Credit{v: decimal.Zero}

// ZeroDebit is the additive identity.
var ZeroDebit = Debit{v: decimal.Zero}

func (c Credit) Decimal() decimal.Decimal { return c.v }
func (d Debit) Decimal() decimal.Decimal  { return d.v }

// Signed returns the credit as a positive signed decimal, matching the
// convention that a credit increases account value.
func (c Credit) Signed() decimal.Decimal { return c.v }

// Signed returns the debit as a negative signed decimal, matching the
// convention that a debit decreases account value.
func (d Debit) Signed() decimal.Decimal { return d.v.Neg() }

// FromMid derives a signed net premium from a short leg's mid price
// and a long leg's mid price: positive is Credit, negative is Debit.
// It returns whichever of Credit/Debit applies along with a flag.
func FromMid(shortMid, longMid decimal.Decimal) (Credit, Debit, bool) {
	net := shortMid.Sub(longMid)
	if net.IsNegative() {
		return ZeroCredit, NewDebit(net), false
	}
	return NewCredit(net), ZeroDebit, true
}

func (c Credit) Add(other Credit) Credit { return Credit{v: c.v.Add(other.v)} }
func (c Credit) Mul(f decimal.Decimal) Credit { return Credit{v: c.v.Mul(f)} }
func (c Credit) GreaterThan(other Credit) bool { return c.v.GreaterThan(other.v) }
func (c Credit) LessThanOrEqual(other Credit) bool { return c.v.LessThanOrEqual(other.v) }
func (c Credit) IsZero() bool { return c.v.IsZero() }

func (d Debit) Add(other Debit) Debit { return Debit{v: d.v.Add(other.v)} }
func (d Debit) GreaterThan(other Debit) bool { return d.v.GreaterThan(other.v) }
