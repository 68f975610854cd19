package pricing

import "testing"

func TestAmericanPriceConvergesTowardEuropeanForCall(t *testing.T) {
	// American calls on a non-dividend-paying underlying are never
	// early-exercised, so American and European prices should match
	// closely.
	in := AmericanInputs{Spot: 100, Strike: 100, TimeToExpiry: 0.25, RiskFreeRate: 0.05, Vol: 0.20, IsCall: true}
	am := AmericanPrice(in)
	eu := EuropeanPrice(in)
	if !approxEqual(am, eu, 0.05) {
		t.Fatalf("expected American call ~= European call, got american=%f european=%f", am, eu)
	}
}

func TestAmericanPriceExceedsEuropeanForDeepITMPut(t *testing.T) {
	in := AmericanInputs{Spot: 60, Strike: 100, TimeToExpiry: 1.0, RiskFreeRate: 0.05, Vol: 0.25, IsCall: false}
	am := AmericanPrice(in)
	eu := EuropeanPrice(in)
	if am < eu {
		t.Fatalf("expected American put >= European put due to early exercise value, got american=%f european=%f", am, eu)
	}
}

func TestAmericanVannaFiniteForReasonableInputs(t *testing.T) {
	in := AmericanInputs{Spot: 455, Strike: 455, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.045, Vol: 0.18, IsCall: true}
	v := AmericanVanna(in)
	if v != v { // NaN check
		t.Fatalf("expected finite vanna, got NaN")
	}
	if v < -10 || v > 10 {
		t.Fatalf("vanna magnitude implausible: %f", v)
	}
}

func TestAmericanDeltaCallBounds(t *testing.T) {
	in := AmericanInputs{Spot: 100, Strike: 100, TimeToExpiry: 0.25, RiskFreeRate: 0.05, Vol: 0.20, IsCall: true}
	d := AmericanDelta(in)
	if d <= 0 || d >= 1 {
		t.Fatalf("expected American call delta in (0,1), got %f", d)
	}
}
