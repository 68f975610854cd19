// Package pricing computes option Greeks, in particular Vanna, the
// cross-sensitivity of delta to implied volatility (SPEC_FULL.md §4.6).
// European contracts price off a closed-form Black-Scholes formula;
// American contracts (the common case for single-stock options) use a
// binomial lattice and central-difference vol bumping since American
// Vanna has no closed form. No example in the reference corpus prices
// options, so this package is grounded directly on the standard
// Black-Scholes / Cox-Ross-Rubinstein formulas named in SPEC_FULL.md
// rather than on a teacher file.
package pricing

import (
	"math"
)

// EuropeanInputs are the five standard Black-Scholes inputs.
type EuropeanInputs struct {
	Spot        float64
	Strike      float64
	TimeToExpiry float64 // years
	RiskFreeRate float64
	Vol          float64 // implied volatility, decimal (0.20 = 20%)
	IsCall       bool
}

func d1d2(in EuropeanInputs) (d1, d2 float64) {
	if in.TimeToExpiry <= 0 || in.Vol <= 0 {
		return 0, 0
	}
	sqrtT := math.Sqrt(in.TimeToExpiry)
	d1 = (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate+0.5*in.Vol*in.Vol)*in.TimeToExpiry) / (in.Vol * sqrtT)
	d2 = d1 - in.Vol*sqrtT
	return d1, d2
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// EuropeanPrice returns the Black-Scholes price of a European option.
func EuropeanPrice(in EuropeanInputs) float64 {
	if in.TimeToExpiry <= 0 {
		if in.IsCall {
			return math.Max(in.Spot-in.Strike, 0)
		}
		return math.Max(in.Strike-in.Spot, 0)
	}
	d1, d2 := d1d2(in)
	disc := math.Exp(-in.RiskFreeRate * in.TimeToExpiry)
	if in.IsCall {
		return in.Spot*normCDF(d1) - in.Strike*disc*normCDF(d2)
	}
	return in.Strike*disc*normCDF(-d2) - in.Spot*normCDF(-d1)
}

// EuropeanDelta returns analytical Black-Scholes delta.
func EuropeanDelta(in EuropeanInputs) float64 {
	d1, _ := d1d2(in)
	if in.IsCall {
		return normCDF(d1)
	}
	return normCDF(d1) - 1
}

// EuropeanVanna returns the closed-form Vanna, ∂²V/∂S∂σ, equivalently
// ∂Δ/∂σ — identical for calls and puts under Black-Scholes.
func EuropeanVanna(in EuropeanInputs) float64 {
	if in.TimeToExpiry <= 0 || in.Vol <= 0 {
		return 0
	}
	d1, d2 := d1d2(in)
	return -normPDF(d1) * d2 / in.Vol
}

// EuropeanGamma returns analytical Black-Scholes gamma.
func EuropeanGamma(in EuropeanInputs) float64 {
	if in.TimeToExpiry <= 0 || in.Vol <= 0 {
		return 0
	}
	d1, _ := d1d2(in)
	return normPDF(d1) / (in.Spot * in.Vol * math.Sqrt(in.TimeToExpiry))
}

// EuropeanVega returns analytical Black-Scholes vega, per unit (not
// per 1% vol point).
func EuropeanVega(in EuropeanInputs) float64 {
	if in.TimeToExpiry <= 0 {
		return 0
	}
	d1, _ := d1d2(in)
	return in.Spot * normPDF(d1) * math.Sqrt(in.TimeToExpiry)
}

// EuropeanTheta returns analytical Black-Scholes theta, per year
// (callers divide by 365 for a daily figure).
func EuropeanTheta(in EuropeanInputs) float64 {
	if in.TimeToExpiry <= 0 {
		return 0
	}
	d1, d2 := d1d2(in)
	sqrtT := math.Sqrt(in.TimeToExpiry)
	disc := math.Exp(-in.RiskFreeRate * in.TimeToExpiry)
	term1 := -in.Spot * normPDF(d1) * in.Vol / (2 * sqrtT)
	if in.IsCall {
		return term1 - in.RiskFreeRate*in.Strike*disc*normCDF(d2)
	}
	return term1 + in.RiskFreeRate*in.Strike*disc*normCDF(-d2)
}
