package pricing

import "math"

// AmericanSteps is the lattice depth used for American-option pricing
// (SPEC_FULL.md §4.6): 801 steps balances lattice-discretization error
// against the cost of a full Greeks recompute every quote cycle.
const AmericanSteps = 801

// vanBumpH is the central-difference step used to bump volatility
// when estimating American Vanna (no closed form exists once early
// exercise is possible).
const vanBumpH = 0.001

// AmericanInputs mirrors EuropeanInputs; American contracts add no
// extra input, only a different pricing method.
type AmericanInputs = EuropeanInputs

// AmericanPrice prices an American option with a Cox-Ross-Rubinstein
// binomial tree of AmericanSteps steps, allowing early exercise at
// every node.
func AmericanPrice(in AmericanInputs) float64 {
	return americanPriceN(in, AmericanSteps)
}

func americanPriceN(in AmericanInputs, steps int) float64 {
	if in.TimeToExpiry <= 0 {
		if in.IsCall {
			return math.Max(in.Spot-in.Strike, 0)
		}
		return math.Max(in.Strike-in.Spot, 0)
	}
	dt := in.TimeToExpiry / float64(steps)
	u := math.Exp(in.Vol * math.Sqrt(dt))
	d := 1 / u
	disc := math.Exp(-in.RiskFreeRate * dt)
	p := (math.Exp(in.RiskFreeRate*dt) - d) / (u - d)

	// terminal payoffs
	values := make([]float64, steps+1)
	for i := 0; i <= steps; i++ {
		spot := in.Spot * math.Pow(u, float64(steps-i)) * math.Pow(d, float64(i))
		values[i] = payoff(spot, in.Strike, in.IsCall)
	}

	for step := steps - 1; step >= 0; step-- {
		for i := 0; i <= step; i++ {
			continuation := disc * (p*values[i] + (1-p)*values[i+1])
			spot := in.Spot * math.Pow(u, float64(step-i)) * math.Pow(d, float64(i))
			exercise := payoff(spot, in.Strike, in.IsCall)
			values[i] = math.Max(continuation, exercise)
		}
	}
	return values[0]
}

func payoff(spot, strike float64, isCall bool) float64 {
	if isCall {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// AmericanDelta estimates delta by central-difference bumping spot by
// 0.5% of itself (a standard finite-difference greek on the lattice).
func AmericanDelta(in AmericanInputs) float64 {
	h := in.Spot * 0.005
	up := in
	up.Spot = in.Spot + h
	down := in
	down.Spot = in.Spot - h
	return (americanPriceN(up, AmericanSteps) - americanPriceN(down, AmericanSteps)) / (2 * h)
}

// AmericanVanna estimates ∂Δ/∂σ for an American option by central-
// difference bumping volatility by vanBumpH and re-deriving delta from
// the bumped lattice at each side (SPEC_FULL.md §4.6 "Vanna via
// binomial bumping").
func AmericanVanna(in AmericanInputs) float64 {
	up := in
	up.Vol = in.Vol + vanBumpH
	down := in
	down.Vol = in.Vol - vanBumpH
	if down.Vol <= 0 {
		down.Vol = in.Vol
	}
	deltaUp := AmericanDelta(up)
	deltaDown := AmericanDelta(down)
	denom := up.Vol - down.Vol
	if denom == 0 {
		return 0
	}
	return (deltaUp - deltaDown) / denom
}

// AmericanGamma estimates gamma via a three-point central difference
// on spot.
func AmericanGamma(in AmericanInputs) float64 {
	h := in.Spot * 0.005
	up := in
	up.Spot = in.Spot + h
	down := in
	down.Spot = in.Spot - h
	mid := americanPriceN(in, AmericanSteps)
	return (americanPriceN(up, AmericanSteps) - 2*mid + americanPriceN(down, AmericanSteps)) / (h * h)
}
