package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/config"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/external"
	"github.com/atlas-desktop/options-engine/internal/pricing"
	"github.com/atlas-desktop/options-engine/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ShadowStore is the narrow persistence slice EvaluateAndRecord needs
// to log a rejected candidate for later outcome evaluation.
type ShadowStore interface {
	LogShadowTrade(ctx context.Context, st domain.ShadowTrade) error
}

// EarningsInfo is the earnings-blackout gate's input (§4.10 item 3).
type EarningsInfo struct {
	Upcoming     bool
	HoursUntil   decimal.Decimal
	ExpectedMove decimal.Decimal
}

// DividendInfo is the dividend-blackout gate's input (§4.10 item 4).
type DividendInfo struct {
	HasExDividend bool
	DaysUntil     int
}

// BetaSource resolves a symbol's beta against SPY, used by the
// portfolio beta-weighted-delta gate.
type BetaSource interface {
	Beta(ctx context.Context, symbol string) (float64, error)
}

// MarketContext carries the gate inputs that are not properties of
// the proposal itself: VIX/term-structure, blackout lookups, and the
// portfolio's existing beta-weighted delta before this trade.
type MarketContext struct {
	VIX              decimal.Decimal
	TermStructure    domain.TermStructure
	Earnings         EarningsInfo
	Dividend         DividendInfo
	Spot             decimal.Decimal
	PortfolioBWDelta decimal.Decimal
	Beta             float64
}

// Rejection names which gate failed and why; callers persist it as a
// ShadowTrade (SPEC_FULL.md §4.10 "Rejected candidates are recorded as
// ShadowTrades for later evaluation").
type Rejection struct {
	Gate   string
	Reason string
}

func (r *Rejection) Error() string { return fmt.Sprintf("risk: %s: %s", r.Gate, r.Reason) }

// Gates runs the nine ordered risk gates from SPEC_FULL.md §4.10.
// Grounded on the teacher's internal/execution/risk_manager.go
// ordered-checks-returning-a-reason-tag shape, built fresh here since
// the teacher's own RiskConfig/CheckOrder signatures are inconsistent
// between executor.go and main.go.
type Gates struct {
	logger          *zap.Logger
	breaker         *CircuitBreaker
	cfg             *config.Config
	pricingEngine   *pricing.Engine
}

func NewGates(logger *zap.Logger, breaker *CircuitBreaker, cfg *config.Config, pricingEngine *pricing.Engine) *Gates {
	return &Gates{logger: logger.Named("risk.gates"), breaker: breaker, cfg: cfg, pricingEngine: pricingEngine}
}

// Evaluate runs every gate in order and stops at the first failure.
// advisor is nil if the AI advisor could not be reached (silent mode
// or transport failure) — per SPEC_FULL.md §7, a missing mandatory AI
// gate rejects the candidate rather than auto-approving it.
func (g *Gates) Evaluate(ctx context.Context, p *strategy.Proposal, chain strategy.Chain, mc MarketContext, advisor *external.AdvisorResponse) *Rejection {
	if err := g.breaker.Check(ctx); err != nil {
		return &Rejection{Gate: "circuit_breaker", Reason: err.Error()}
	}
	if r := g.vixGate(p, mc); r != nil {
		return r
	}
	if r := g.earningsBlackout(p, mc); r != nil {
		return r
	}
	if r := g.dividendBlackout(p, mc); r != nil {
		return r
	}
	if r := g.liquidity(p); r != nil {
		return r
	}
	if p.Strategy.IsCredit() {
		if r := g.creditGreeks(p, mc.Spot); r != nil {
			return r
		}
	} else {
		if r := g.debitGreeks(p); r != nil {
			return r
		}
	}
	if r := g.betaWeightedDelta(p, mc); r != nil {
		return r
	}
	if r := g.aiSanity(p, chain, advisor); r != nil {
		return r
	}
	return nil
}

// vixGate blocks all credit strategies at/above panic, and blocks
// short-vega strategies in backwardation (§4.10 item 2).
func (g *Gates) vixGate(p *strategy.Proposal, mc MarketContext) *Rejection {
	if p.Strategy.IsCredit() && mc.VIX.GreaterThanOrEqual(g.cfg.VIX.Panic) {
		return &Rejection{Gate: "vix", Reason: "credit strategies blocked: VIX at or above panic threshold"}
	}
	if isShortVega(p.Strategy) && mc.TermStructure == domain.TermBackwardation {
		return &Rejection{Gate: "vix", Reason: "short-vega strategy blocked: term structure in backwardation"}
	}
	return nil
}

func isShortVega(k domain.StrategyKind) bool {
	switch k {
	case domain.StrategyIronCondor, domain.StrategyIronButterfly, domain.StrategyVerticalCreditCall,
		domain.StrategyVerticalCreditPut, domain.StrategyJadeLizard:
		return true
	}
	return false
}

// earningsBlackout rejects unless the short strike is far enough from
// spot to clear the expected move (§4.10 item 3).
func (g *Gates) earningsBlackout(p *strategy.Proposal, mc MarketContext) *Rejection {
	if !mc.Earnings.Upcoming {
		return nil
	}
	if mc.Earnings.HoursUntil.GreaterThan(decimal.NewFromInt(int64(g.cfg.Safety.EarningsBlackoutHours))) {
		return nil
	}
	shortStrike, ok := shortLegStrike(p)
	if !ok {
		return &Rejection{Gate: "earnings_blackout", Reason: "earnings within blackout window and no short leg to test"}
	}
	deviation := absDec(shortStrike.Sub(mc.Spot))
	if deviation.GreaterThan(mc.Earnings.ExpectedMove) {
		return nil
	}
	return &Rejection{Gate: "earnings_blackout", Reason: "earnings within blackout window and short strike inside expected move"}
}

// dividendBlackout rejects any structure with a short CALL leg when
// ex-dividend falls within the configured window (§4.10 item 4).
func (g *Gates) dividendBlackout(p *strategy.Proposal, mc MarketContext) *Rejection {
	if !mc.Dividend.HasExDividend || mc.Dividend.DaysUntil > g.cfg.DividendBlackoutDays {
		return nil
	}
	for _, leg := range p.Legs {
		if leg.Action == domain.ActionSell && leg.Quote.Right == domain.OptionCall {
			return &Rejection{Gate: "dividend_blackout", Reason: "short call within dividend blackout window"}
		}
	}
	return nil
}

// liquidity requires positive bid/ask, a bounded spread and a minimum
// volume/OI ratio on every leg (§4.10 item 5).
func (g *Gates) liquidity(p *strategy.Proposal) *Rejection {
	for _, leg := range p.Legs {
		q := leg.Quote
		if !q.Bid.GreaterThan(decimal.Zero) || !q.Ask.GreaterThan(decimal.Zero) {
			return &Rejection{Gate: "liquidity", Reason: fmt.Sprintf("%s: non-positive bid/ask", q.Symbol)}
		}
		spread := q.Spread()
		spreadPct := decimal.Zero
		if mid := q.Mid(); mid.GreaterThan(decimal.Zero) {
			spreadPct = spread.Div(mid)
		}
		withinAbsolute := spread.LessThanOrEqual(g.cfg.Liquidity.MaxBidAskSpread)
		withinPercent := spreadPct.LessThanOrEqual(decimal.NewFromFloat(0.02))
		if !withinAbsolute && !withinPercent {
			return &Rejection{Gate: "liquidity", Reason: fmt.Sprintf("%s: bid/ask spread %s exceeds limits", q.Symbol, spread.String())}
		}
		if q.OpenInterest <= 0 {
			return &Rejection{Gate: "liquidity", Reason: fmt.Sprintf("%s: zero open interest", q.Symbol)}
		}
		ratio := decimal.NewFromInt(100).Mul(decimal.NewFromInt(q.Volume)).Div(decimal.NewFromInt(q.OpenInterest))
		if ratio.LessThan(g.cfg.Liquidity.MinVolumeOIRatioPct) {
			return &Rejection{Gate: "liquidity", Reason: fmt.Sprintf("%s: volume/OI ratio %s%% below minimum", q.Symbol, ratio.String())}
		}
	}
	return nil
}

// creditGreeks validates |delta|, daily theta, gamma and the
// three-scenario Vanna stress test (§4.10 item 6).
func (g *Gates) creditGreeks(p *strategy.Proposal, spot decimal.Decimal) *Rejection {
	shortLeg, ok := firstShortLeg(p)
	if !ok {
		return &Rejection{Gate: "greeks_credit", Reason: "no short leg to validate"}
	}
	absDelta := absDec(shortLeg.Delta)
	if absDelta.LessThan(g.cfg.Greeks.CreditDeltaMin) || absDelta.GreaterThan(g.cfg.Greeks.CreditDeltaMax) {
		return &Rejection{Gate: "greeks_credit", Reason: "short leg delta outside configured range"}
	}
	theta := absDec(shortLeg.Theta)
	if theta.LessThan(g.cfg.Greeks.MinDailyTheta) {
		return &Rejection{Gate: "greeks_credit", Reason: "daily theta below minimum"}
	}
	if absDec(shortLeg.Gamma).GreaterThan(g.cfg.Greeks.MaxGamma) {
		return &Rejection{Gate: "greeks_credit", Reason: "gamma exceeds maximum"}
	}

	inputs, quantities := stressInputsFor(p, spot)
	results := pricing.StressTest(inputs, quantities)
	if !pricing.AllScenariosSafe(results) {
		return &Rejection{Gate: "greeks_credit", Reason: "vanna stress test projects |delta| >= 0.40 in at least one scenario"}
	}
	return nil
}

// debitGreeks validates the long leg's delta against the debit band
// (§4.10 item 7).
func (g *Gates) debitGreeks(p *strategy.Proposal) *Rejection {
	longLeg, ok := firstLongLeg(p)
	if !ok {
		return &Rejection{Gate: "greeks_debit", Reason: "no long leg to validate"}
	}
	absDelta := absDec(longLeg.Delta)
	if absDelta.LessThan(g.cfg.Greeks.DebitDeltaMin) || absDelta.GreaterThan(g.cfg.Greeks.DebitDeltaMax) {
		return &Rejection{Gate: "greeks_debit", Reason: "long leg delta outside configured debit range"}
	}
	return nil
}

// betaWeightedDelta enforces the portfolio-level net and directional
// beta-weighted delta caps (§4.10 item 8). BWD aggregation is linear:
// BWD(P u Q) = BWD(P) + BWD(Q) (SPEC_FULL.md §8 round-trip law).
func (g *Gates) betaWeightedDelta(p *strategy.Proposal, mc MarketContext) *Rejection {
	proposedBWD := ProposalDelta(p).Mul(decimal.NewFromFloat(mc.Beta))
	net := mc.PortfolioBWDelta.Add(proposedBWD)
	if absDec(net).GreaterThan(g.cfg.Greeks.MaxBWDelta) {
		return &Rejection{Gate: "beta_weighted_delta", Reason: "net beta-weighted delta would exceed configured cap"}
	}
	directionalCap := g.cfg.Greeks.MaxBWDelta.Mul(decimal.NewFromFloat(0.80))
	if net.IsPositive() && net.GreaterThan(directionalCap) {
		return &Rejection{Gate: "beta_weighted_delta", Reason: "bullish beta-weighted exposure would exceed 80% of cap"}
	}
	if net.IsNegative() && absDec(net).GreaterThan(directionalCap) {
		return &Rejection{Gate: "beta_weighted_delta", Reason: "bearish beta-weighted exposure would exceed 80% of cap"}
	}
	return nil
}

// aiSanity validates the advisor's recommendation against the
// observed chain (§4.10 item 9). A nil advisor (silent mode or
// transport failure) rejects: the gate is mandatory and never
// auto-approves in its absence (SPEC_FULL.md §7).
func (g *Gates) aiSanity(p *strategy.Proposal, chain strategy.Chain, advisor *external.AdvisorResponse) *Rejection {
	if advisor == nil {
		return &Rejection{Gate: "ai_sanity", Reason: "ai advisor unavailable; mandatory gate cannot auto-approve"}
	}
	if advisor.Verdict != domain.VerdictApprove {
		return &Rejection{Gate: "ai_sanity", Reason: fmt.Sprintf("advisor verdict %s", advisor.Verdict)}
	}

	short := decimal.NewFromFloat(advisor.ShortStrike)
	long := decimal.NewFromFloat(advisor.LongStrike)
	if _, ok := findStrikeInChain(chain, short); !ok {
		return &Rejection{Gate: "ai_sanity", Reason: "advisor short strike NOT FOUND in option chain"}
	}
	if advisor.LongStrike != 0 {
		if _, ok := findStrikeInChain(chain, long); !ok {
			return &Rejection{Gate: "ai_sanity", Reason: "advisor long strike NOT FOUND in option chain"}
		}
	}

	deviation := absDec(short.Sub(chain.Price)).Div(chain.Price)
	if deviation.GreaterThan(decimal.NewFromFloat(0.20)) {
		return &Rejection{Gate: "ai_sanity", Reason: "advisor strike deviates more than 20% from spot"}
	}

	switch p.Strategy {
	case domain.StrategyVerticalCreditCall:
		if !short.LessThan(long) {
			return &Rejection{Gate: "ai_sanity", Reason: "credit call spread requires short strike below long strike"}
		}
	case domain.StrategyVerticalCreditPut:
		if !short.GreaterThan(long) {
			return &Rejection{Gate: "ai_sanity", Reason: "credit put spread requires short strike above long strike"}
		}
	case domain.StrategyVerticalDebitCall:
		if !long.LessThan(short) {
			return &Rejection{Gate: "ai_sanity", Reason: "debit call spread requires long strike below short strike"}
		}
	case domain.StrategyVerticalDebitPut:
		if !long.GreaterThan(short) {
			return &Rejection{Gate: "ai_sanity", Reason: "debit put spread requires long strike above short strike"}
		}
	}

	width := absDec(short.Sub(long))
	if advisor.LongStrike != 0 && width.LessThan(decimal.NewFromInt(1)) {
		return &Rejection{Gate: "ai_sanity", Reason: "spread width below 1.0"}
	}

	exp, err := time.Parse("2006-01-02", advisor.Expiration)
	if err == nil {
		dte := int(time.Until(exp).Hours() / 24)
		if dte < 0 {
			return &Rejection{Gate: "ai_sanity", Reason: "advisor expiration already passed"}
		}
	}

	if shortLeg, ok := firstShortLeg(p); ok {
		absDelta := absDec(shortLeg.Delta)
		if p.Strategy.IsCredit() {
			if absDelta.LessThan(g.cfg.Greeks.CreditDeltaMin) || absDelta.GreaterThan(g.cfg.Greeks.CreditDeltaMax) {
				return &Rejection{Gate: "ai_sanity", Reason: "short leg delta outside configured range"}
			}
		}
		if absDec(shortLeg.Vega).GreaterThan(g.cfg.Greeks.MaxVegaPostVanna) {
			return &Rejection{Gate: "ai_sanity", Reason: "vega exceeds maximum"}
		}
		if p.Strategy.IsCredit() && !shortLeg.Theta.IsPositive() {
			return &Rejection{Gate: "ai_sanity", Reason: "short-premium strategy requires positive theta"}
		}
	}
	return nil
}

// EvaluateAndRecord runs Evaluate and, on rejection, persists a
// ShadowTrade carrying the gate name and reason so the daily 16:15
// shadow-evaluation job can later label the rejection (SPEC_FULL.md §4.10 "Rejected candidates are recorded as
// ShadowTrades for later evaluation").
func (g *Gates) EvaluateAndRecord(ctx context.Context, store ShadowStore, newID IDGenerator, now time.Time, p *strategy.Proposal, chain strategy.Chain, mc MarketContext, advisor *external.AdvisorResponse) *Rejection {
	rej := g.Evaluate(ctx, p, chain, mc, advisor)
	if rej == nil {
		return nil
	}
	st := domain.ShadowTrade{
		ID:         newID(),
		Symbol:     p.Symbol,
		Strategy:   p.Strategy,
		RejectedAt: now,
		RejectedBy: rej.Gate,
		Reason:     rej.Reason,
		Expiration: p.Expiration,
		Outcome:    domain.ShadowPending,
	}
	if err := store.LogShadowTrade(ctx, st); err != nil {
		g.logger.Warn("failed to log shadow trade", zap.Error(err), zap.String("symbol", p.Symbol))
	}
	return rej
}

func findStrikeInChain(chain strategy.Chain, strike decimal.Decimal) (domain.OptionQuote, bool) {
	for _, q := range chain.Quotes {
		if q.Strike.Equal(strike) {
			return q, true
		}
	}
	return domain.OptionQuote{}, false
}

func firstShortLeg(p *strategy.Proposal) (domain.OptionQuote, bool) {
	for _, leg := range p.Legs {
		if leg.Action == domain.ActionSell {
			return leg.Quote, true
		}
	}
	return domain.OptionQuote{}, false
}

func firstLongLeg(p *strategy.Proposal) (domain.OptionQuote, bool) {
	for _, leg := range p.Legs {
		if leg.Action == domain.ActionBuy {
			return leg.Quote, true
		}
	}
	return domain.OptionQuote{}, false
}

func shortLegStrike(p *strategy.Proposal) (decimal.Decimal, bool) {
	q, ok := firstShortLeg(p)
	return q.Strike, ok
}

// ProposalDelta sums each leg's delta signed by action and scaled by
// contracts, giving the whole structure's net delta exposure.
func ProposalDelta(p *strategy.Proposal) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range p.Legs {
		d := leg.Quote.Delta
		if leg.Action == domain.ActionSell {
			d = d.Neg()
		}
		total = total.Add(d.Mul(decimal.NewFromInt(int64(p.Contracts))))
	}
	return total
}

func stressInputsFor(p *strategy.Proposal, spotDec decimal.Decimal) ([]pricing.AmericanInputs, []float64) {
	inputs := make([]pricing.AmericanInputs, 0, len(p.Legs))
	quantities := make([]float64, 0, len(p.Legs))
	spot, _ := spotDec.Float64()
	for _, leg := range p.Legs {
		t := time.Until(leg.Quote.Expiration).Hours() / 24 / 365
		if t <= 0 {
			t = 1.0 / 365
		}
		strike, _ := leg.Quote.Strike.Float64()
		vol, _ := leg.Quote.ImpliedVol.Float64()
		qty := 1.0
		if leg.Action == domain.ActionSell {
			qty = -1.0
		}
		inputs = append(inputs, pricing.AmericanInputs{
			Spot: spot, Strike: strike, TimeToExpiry: t, Vol: vol, RiskFreeRate: 0.045,
			IsCall: leg.Quote.Right == domain.OptionCall,
		})
		quantities = append(quantities, qty)
	}
	return inputs, quantities
}

func absDec(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}
