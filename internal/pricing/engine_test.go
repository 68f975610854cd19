package pricing

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeYielder struct {
	yield float64
	err   error
}

func (f fakeYielder) TreasuryYield(ctx context.Context) (float64, error) {
	return f.yield, f.err
}

func TestRiskFreeRateFallsBackOnFetchError(t *testing.T) {
	e := NewEngine(zap.NewNop(), fakeYielder{err: errors.New("no connection")})
	if rate := e.RiskFreeRate(context.Background()); rate != defaultRiskFreeRate {
		t.Fatalf("expected fallback rate %f, got %f", defaultRiskFreeRate, rate)
	}
}

func TestRiskFreeRateNilBrokerUsesFallback(t *testing.T) {
	e := NewEngine(zap.NewNop(), nil)
	if rate := e.RiskFreeRate(context.Background()); rate != defaultRiskFreeRate {
		t.Fatalf("expected fallback rate with nil broker, got %f", rate)
	}
}

func TestAmericanGreeksCachesVanna(t *testing.T) {
	e := NewEngine(zap.NewNop(), nil)
	in := AmericanInputs{Spot: 455, Strike: 455, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.045, Vol: 0.18, IsCall: true}

	first := e.AmericanGreeks(context.Background(), in)
	e.mu.Lock()
	entry, ok := e.vannaCache[vannaCacheKey(in)]
	e.mu.Unlock()
	if !ok {
		t.Fatalf("expected cache entry after first computation")
	}
	second := e.AmericanGreeks(context.Background(), in)
	if second != entry.greeks || second != first {
		t.Fatalf("expected cached result to be reused")
	}
}

func TestAmericanGreeksCacheMissesOnSpotMove(t *testing.T) {
	e := NewEngine(zap.NewNop(), nil)
	in := AmericanInputs{Spot: 455, Strike: 455, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.045, Vol: 0.18, IsCall: true}
	e.AmericanGreeks(context.Background(), in)

	moved := in
	moved.Spot = 460
	e.AmericanGreeks(context.Background(), moved)

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.vannaCache) != 2 {
		t.Fatalf("expected a separate cache entry for the moved spot, got %d entries", len(e.vannaCache))
	}
}

func TestStressTestFlagsUnsafeWhenDeltaBlowsOut(t *testing.T) {
	legs := []AmericanInputs{
		{Spot: 455, Strike: 455, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.045, Vol: 0.18, IsCall: true},
	}
	quantities := []float64{10} // large quantity to force an unsafe scenario
	results := StressTest(legs, quantities)
	if len(results) != 3 {
		t.Fatalf("expected 3 scenarios, got %d", len(results))
	}
	if AllScenariosSafe(results) {
		t.Fatalf("expected at least one unsafe scenario with an exaggerated quantity")
	}
}

func TestStressTestAllSafeForSmallHedgedPosition(t *testing.T) {
	legs := []AmericanInputs{
		{Spot: 455, Strike: 455, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.045, Vol: 0.18, IsCall: true},
		{Spot: 455, Strike: 455, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.045, Vol: 0.18, IsCall: false},
	}
	quantities := []float64{0.01, -0.01}
	results := StressTest(legs, quantities)
	if !AllScenariosSafe(results) {
		t.Fatalf("expected a nearly-flat straddle to remain safe under all scenarios")
	}
}
