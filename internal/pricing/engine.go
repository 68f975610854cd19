package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// defaultRiskFreeRate is used whenever the broker's Treasury-yield
// feed is unavailable (SPEC_FULL.md §4.6).
const defaultRiskFreeRate = 0.045

const (
	vannaCacheTTL = 60 * time.Second
	quoteCacheTTL = 5 * time.Second
)

// treasuryYielder is the narrow slice of broker.Broker the engine
// needs for its risk-free rate cache.
type treasuryYielder interface {
	TreasuryYield(ctx context.Context) (float64, error)
}

// Greeks bundles the per-leg outputs the rest of the system consumes.
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Vanna float64
}

type cacheEntry struct {
	greeks Greeks
	at     time.Time
}

// Engine computes Greeks for option legs, caching Vanna results (the
// most expensive computation, since American Vanna requires four full
// binomial tree evaluations) and the risk-free rate.
type Engine struct {
	logger *zap.Logger
	broker treasuryYielder

	mu          sync.Mutex
	vannaCache  map[string]cacheEntry
	rate        float64
	rateFetched time.Time
}

// NewEngine constructs a pricing engine. broker may be nil, in which
// case the risk-free rate always falls back to defaultRiskFreeRate.
func NewEngine(logger *zap.Logger, broker treasuryYielder) *Engine {
	return &Engine{
		logger:     logger.Named("pricing"),
		broker:     broker,
		vannaCache: make(map[string]cacheEntry),
		rate:       defaultRiskFreeRate,
	}
}

// RiskFreeRate returns the cached Treasury yield, refreshing at most
// once per hour; on fetch failure it keeps the last known good value
// (or the static fallback if none has ever been fetched).
func (e *Engine) RiskFreeRate(ctx context.Context) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.broker == nil || time.Since(e.rateFetched) < time.Hour {
		return e.rate
	}
	y, err := e.broker.TreasuryYield(ctx)
	if err != nil {
		e.logger.Warn("treasury yield fetch failed, keeping cached rate", zap.Error(err), zap.Float64("rate", e.rate))
		return e.rate
	}
	e.rate = y
	e.rateFetched = time.Now()
	return e.rate
}

// vannaCacheKey identifies a Greeks computation by the actual inputs
// that determine it — spot, strike, time to expiry, vol and option
// type (SPEC_FULL.md §4.6) — rather than the contract symbol, so a
// spot or vol move invalidates the cache instead of returning stale
// Greeks for the same contract within the TTL.
func vannaCacheKey(in AmericanInputs) string {
	return fmt.Sprintf("%.4f|%.4f|%.6f|%.6f|%v", in.Spot, in.Strike, in.TimeToExpiry, in.Vol, in.IsCall)
}

// AmericanGreeks computes the full Greeks set for one American
// contract, serving a cached Vanna value when the (spot, strike,
// time-to-expiry, vol, type) key was computed within vannaCacheTTL.
func (e *Engine) AmericanGreeks(ctx context.Context, in AmericanInputs) Greeks {
	cacheKey := vannaCacheKey(in)
	e.mu.Lock()
	if entry, ok := e.vannaCache[cacheKey]; ok && time.Since(entry.at) < vannaCacheTTL {
		e.mu.Unlock()
		return entry.greeks
	}
	e.mu.Unlock()

	g := Greeks{
		Delta: AmericanDelta(in),
		Gamma: AmericanGamma(in),
		Vega:  EuropeanVega(in), // vega is not exercise-sensitive enough to warrant the lattice
		Theta: EuropeanTheta(in) / 365,
		Vanna: AmericanVanna(in),
	}

	e.mu.Lock()
	e.vannaCache[cacheKey] = cacheEntry{greeks: g, at: time.Now()}
	e.mu.Unlock()
	return g
}

// EuropeanGreeksOf computes the full Greeks set analytically.
func EuropeanGreeksOf(in EuropeanInputs) Greeks {
	return Greeks{
		Delta: EuropeanDelta(in),
		Gamma: EuropeanGamma(in),
		Vega:  EuropeanVega(in),
		Theta: EuropeanTheta(in) / 365,
		Vanna: EuropeanVanna(in),
	}
}

// StressScenario is one of the three fixed vol shocks used in the
// pre-trade stress test.
type StressScenario struct {
	Name     string
	DeltaVol float64
}

// StressScenarios are the three fixed shocks from SPEC_FULL.md §4.6:
// +5, +10 and -5 volatility points.
var StressScenarios = []StressScenario{
	{Name: "vol_up_5", DeltaVol: 0.05},
	{Name: "vol_up_10", DeltaVol: 0.10},
	{Name: "vol_down_5", DeltaVol: -0.05},
}

// StressResult is the projected position delta under one scenario.
type StressResult struct {
	Scenario      string
	ProjectedDelta float64
	Safe          bool
}

// StressTest projects each leg's delta under every fixed scenario and
// sums them (weighted by quantity and sign) into a position-level
// delta. A position is safe only if all three scenarios keep the
// projected absolute delta under 0.40 (SPEC_FULL.md §4.6).
func StressTest(legs []AmericanInputs, quantities []float64) []StressResult {
	results := make([]StressResult, 0, len(StressScenarios))
	for _, sc := range StressScenarios {
		total := 0.0
		for i, leg := range legs {
			bumped := leg
			bumped.Vol = leg.Vol + sc.DeltaVol
			if bumped.Vol <= 0 {
				bumped.Vol = leg.Vol
			}
			total += AmericanDelta(bumped) * quantities[i]
		}
		results = append(results, StressResult{
			Scenario:       sc.Name,
			ProjectedDelta: total,
			Safe:           absf(total) < 0.40,
		})
	}
	return results
}

// AllScenariosSafe reports whether every stress scenario passed.
func AllScenariosSafe(results []StressResult) bool {
	for _, r := range results {
		if !r.Safe {
			return false
		}
	}
	return true
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
