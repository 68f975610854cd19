package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/external"
	"github.com/atlas-desktop/options-engine/internal/notify"
	"github.com/atlas-desktop/options-engine/internal/orders"
	"github.com/atlas-desktop/options-engine/internal/regime"
	"github.com/atlas-desktop/options-engine/internal/risk"
	"github.com/atlas-desktop/options-engine/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// candidatesPerScan bounds how many screener results one Scan pass
// considers, keeping a single tick's broker call volume bounded.
const candidatesPerScan = 10

// Premarket refreshes the SPY history the regime engine's features
// draw from, once per day before the open (SPEC_FULL.md §4.15).
func (e *Engine) Premarket(ctx context.Context) error {
	bars, err := e.broker.HistoricalBars(ctx, e.spy, "60 D", "1 day")
	if err != nil {
		e.notifier.Publish(ctx, notify.PipelineError("premarket", err, e.clk.Now()), false)
		return fmt.Errorf("engine: premarket history: %w", err)
	}
	e.spyBars = bars
	if n := len(bars); n >= 2 {
		prev, last := bars[n-2].Close, bars[n-1].Close
		if prev != 0 {
			e.regime.Observe((last - prev) / prev)
		}
	}
	return nil
}

// Scan is the tiered market-hours pipeline: screen for candidates,
// build a proposal per candidate per regime-preferred strategy, clear
// the risk gates, and submit whatever survives (SPEC_FULL.md §2, §5).
func (e *Engine) Scan(ctx context.Context) error {
	snapshot, err := e.marketSnapshot(ctx)
	if err != nil {
		e.notifier.Publish(ctx, notify.PipelineError("scan:snapshot", err, e.clk.Now()), false)
		return err
	}
	if err := e.store.LogMarketSnapshot(ctx, snapshot); err != nil {
		e.logger.Warn("failed to log market snapshot", zap.Error(err))
	}
	if snapshot.TermStructure == domain.TermBackwardation {
		e.notifier.Publish(ctx, notify.Backwardation(string(snapshot.TermStructure), e.clk.Now()), false)
	}
	if snapshot.VIX.GreaterThanOrEqual(e.cfg.VIX.Panic) {
		e.notifier.Publish(ctx, notify.VIXPanic(snapshot.VIX.String(), e.clk.Now()), false)
	}

	preferred := regime.PreferredStrategies(snapshot.Regime, mustFloat64(snapshot.VIX), e.cfg.VIX.Panic.InexactFloat64())
	if len(preferred) == 0 {
		e.logger.Info("no preferred strategies for current regime, skipping scan", zap.String("regime", string(snapshot.Regime)))
		return nil
	}

	candidates, err := e.screener.Top(ctx, candidatesPerScan)
	if err != nil {
		e.notifier.Publish(ctx, notify.PipelineError("scan:screener", err, e.clk.Now()), false)
		return fmt.Errorf("engine: screener: %w", err)
	}

	account, err := e.broker.AccountSummary(ctx)
	if err != nil {
		e.notifier.Publish(ctx, notify.PipelineError("scan:account", err, e.clk.Now()), false)
		return fmt.Errorf("engine: account summary: %w", err)
	}

	portfolioBWD, err := e.portfolioBetaWeightedDelta(ctx)
	if err != nil {
		e.logger.Warn("portfolio beta-weighted delta unavailable, treating as zero", zap.Error(err))
	}

	builder := newChainBuilder(e.broker, e.clk.Now)
	for _, cand := range candidates {
		for _, kind := range preferred {
			if err := e.tryOpen(ctx, cand, kind, account, portfolioBWD, snapshot, builder); err != nil {
				e.logger.Debug("candidate skipped", zap.String("symbol", cand.Symbol), zap.String("strategy", string(kind)), zap.Error(err))
			}
		}
	}
	return nil
}

// tryOpen builds, gates and (if approved) submits one proposal.
func (e *Engine) tryOpen(ctx context.Context, cand domain.Candidate, kind domain.StrategyKind, account domain.AccountSummary, portfolioBWD decimal.Decimal, snapshot domain.MarketSnapshot, builder *chainBuilder) error {
	chain, err := builder.Build(ctx, cand.Symbol, cand.Price)
	if err != nil {
		return err
	}

	bounds := strategy.GreeksBounds{
		CreditDeltaMin: e.cfg.Greeks.CreditDeltaMin, CreditDeltaMax: e.cfg.Greeks.CreditDeltaMax,
		DebitDeltaMin: e.cfg.Greeks.DebitDeltaMin, DebitDeltaMax: e.cfg.Greeks.DebitDeltaMax,
		MinDailyTheta: e.cfg.Greeks.MinDailyTheta, MaxGamma: e.cfg.Greeks.MaxGamma,
	}
	sizing := strategy.SizingInputs{
		AvailableFunds: account.AvailableFunds, MaxRiskPerTradePct: e.cfg.Trading.MaxRiskPerTrade,
		MaxPositionValuePct: e.cfg.Trading.MaxAllocationPercent,
	}
	width := defaultWidth(cand.Price)

	proposal, err := e.registry.Build(kind, chain, bounds, sizing, width)
	if err != nil {
		return err
	}
	if proposal.Contracts <= 0 {
		return fmt.Errorf("engine: proposal sized to zero contracts")
	}

	mc, err := e.marketContext(ctx, cand.Symbol, chain.Price, snapshot, portfolioBWD)
	if err != nil {
		return err
	}

	var advisorResp *external.AdvisorResponse
	if e.advisor != nil && e.advisor.CanRequest() {
		resp, err := e.advisor.Ask(ctx, adviseePrompt(proposal, chain, mc))
		if err != nil {
			e.logger.Debug("advisor unavailable, mandatory gate will reject", zap.Error(err))
		} else {
			advisorResp = &resp
		}
	}

	now := e.clk.Now()
	if rej := e.gates.EvaluateAndRecord(ctx, e.store, newTradeID, now, proposal, chain, mc, advisorResp); rej != nil {
		return rej
	}

	return e.submitOpen(ctx, proposal, snapshot, now)
}

// submitOpen places the combo, persists the Position once filled, and
// notifies — SPEC_FULL.md §4.9/§4.11's open path.
func (e *Engine) submitOpen(ctx context.Context, p *strategy.Proposal, snapshot domain.MarketSnapshot, now time.Time) error {
	legs := make([]domain.Leg, 0, len(p.Legs))
	for _, l := range p.Legs {
		legs = append(legs, domain.Leg{
			ContractSymbol: l.Quote.Symbol, ConID: l.Quote.ConID, Action: l.Action,
			Strike: l.Quote.Strike, OptionType: l.Quote.Right, Expiration: l.Quote.Expiration,
			Quantity: p.Contracts, EntryPrice: l.Quote.Mid(),
		})
	}
	comboLegs := orders.BuildOpenCombo(legs)

	action := domain.ActionSell
	limit := p.Credit.Decimal().Neg()
	if !p.Debit.Decimal().IsZero() {
		action = domain.ActionBuy
		limit = p.Debit.Decimal()
	}
	limitF, _ := limit.Float64()

	positionID := newTradeID()
	trade, filled, err := e.orderManager.SubmitAndAwaitFill(ctx, domain.TradeOpen, positionID, p.Symbol, comboLegs, p.Contracts, action, &limitF, snapshot.VIX, snapshot.Regime, now, 30*time.Second)
	if err != nil {
		return fmt.Errorf("engine: submit open combo: %w", err)
	}
	if !filled {
		return fmt.Errorf("engine: open combo for %s did not fill within deadline", p.Symbol)
	}

	maxRisk := p.Width.Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(int64(p.Contracts))).Sub(p.Credit.Decimal().Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(int64(p.Contracts))))
	if !p.Debit.Decimal().IsZero() {
		maxRisk = p.Debit.Decimal().Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(int64(p.Contracts)))
	}

	position := domain.Position{
		ID: positionID, Symbol: p.Symbol, Strategy: p.Strategy, EntryTS: now, Expiration: p.Expiration,
		Contracts: p.Contracts, EntryCredit: p.Credit, EntryDebit: p.Debit, MaxRisk: maxRisk,
		Status: domain.PositionOpen, VIXEntry: snapshot.VIX, RegimeEntry: snapshot.Regime, Legs: legs,
	}
	if err := e.store.CreatePosition(ctx, position); err != nil {
		return fmt.Errorf("engine: persist position: %w", err)
	}
	_ = trade
	e.notifier.Publish(ctx, notify.TradeOpened(p.Symbol, string(p.Strategy), now), false)
	return nil
}

// TTLSweep cancels abandoned open orders (SPEC_FULL.md §4.11/§4.15).
func (e *Engine) TTLSweep(ctx context.Context) error {
	ttl := time.Duration(e.cfg.OrderTTLMinutes) * time.Minute
	cancelled, err := e.orderManager.CancelStaleOrders(ctx, ttl, e.clk.Now())
	if err != nil {
		e.notifier.Publish(ctx, notify.PipelineError("ttl_sweep", err, e.clk.Now()), false)
		return err
	}
	if cancelled > 0 {
		e.logger.Info("ttl sweep cancelled stale orders", zap.Int("count", cancelled))
	}
	return nil
}

// ShadowEval evaluates every PENDING shadow trade's outcome at 16:15
// ET, labeling whether the rejection was a good call (SPEC_FULL.md
// §4.10's "Rejected candidates are recorded as ShadowTrades for later
// evaluation"). Grounded on the teacher's internal/learning/
// feedback.go label-after-the-fact idiom. The label comes from the
// rejecting gate alone: GOOD_REJECT for an AI sanity rejection,
// NEUTRAL otherwise. Prices are not consulted and MISSED_OPPORTUNITY
// is never assigned.
func (e *Engine) ShadowEval(ctx context.Context) error {
	pending, err := e.store.PendingShadowTrades(ctx)
	if err != nil {
		return fmt.Errorf("engine: pending shadow trades: %w", err)
	}
	now := e.clk.Now()
	for _, st := range pending {
		if st.Expiration.After(now) {
			continue // still live; nothing to label yet
		}
		outcome := domain.ShadowNeutral
		if strings.Contains(strings.ToUpper(st.RejectedBy), "AI_SANITY") {
			outcome = domain.ShadowGoodReject
		}
		if err := e.store.UpdateShadowOutcome(ctx, st.ID, outcome, now); err != nil {
			e.logger.Warn("failed to label shadow trade", zap.Error(err), zap.String("shadow_id", st.ID))
		}
	}
	return nil
}

// LossAnalysis publishes the Monday 17:00 ET weekly summary
// (SPEC_FULL.md §4.15).
func (e *Engine) LossAnalysis(ctx context.Context) error {
	trades, err := e.store.TradeHistory(ctx, 200)
	if err != nil {
		return fmt.Errorf("engine: trade history: %w", err)
	}
	wins, losses := 0, 0
	for _, t := range trades {
		if t.FillPrice.IsPositive() {
			wins++
		} else {
			losses++
		}
	}
	summary := fmt.Sprintf("Weekly summary: %d trades reviewed, %d wins, %d losses", len(trades), wins, losses)
	e.notifier.Publish(ctx, notify.DailySummary(summary, e.clk.Now()), true)
	return nil
}

// RetrainSignal fires a notification on the first of the month; the
// retrain job itself runs out-of-band (SPEC_FULL.md §4.15) — this
// engine only raises the signal, it never retrains a model in-process.
func (e *Engine) RetrainSignal(ctx context.Context) error {
	e.notifier.Publish(ctx, notify.DailySummary("Monthly retrain signal: ML trailing/regime models are due for refresh", e.clk.Now()), true)
	return nil
}

func mustFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// portfolioBetaWeightedDelta sums beta-weighted delta across every
// open position's legs, re-snapshotting current Greeks from the
// broker (SPEC_FULL.md §4.10 item 8).
func (e *Engine) portfolioBetaWeightedDelta(ctx context.Context) (decimal.Decimal, error) {
	open, err := e.store.OpenPositions(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range open {
		beta := 1.0
		if e.beta != nil {
			if b, err := e.beta.Beta(ctx, p.Symbol); err == nil {
				beta = b
			}
		}
		for _, leg := range p.Legs {
			qc := broker.QualifiedContract{Contract: broker.Contract{Symbol: p.Symbol, Strike: leg.Strike.String(), Right: leg.OptionType, Expiration: leg.Expiration.Format("2006-01-02")}, ConID: leg.ConID}
			q, err := e.broker.Snapshot(ctx, qc)
			if err != nil {
				continue
			}
			d := q.Delta.Mul(decimal.NewFromInt(int64(leg.Quantity))).Mul(decimal.NewFromFloat(beta))
			if leg.Action == domain.ActionSell {
				d = d.Neg()
			}
			total = total.Add(d)
		}
	}
	return total, nil
}

// marketSnapshot resolves VIX/VIX3M and classifies the current regime.
func (e *Engine) marketSnapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	vix, err := e.underlyingLevel(ctx, "VIX")
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("engine: vix snapshot: %w", err)
	}
	vix3m, err := e.underlyingLevel(ctx, "VIX3M")
	if err != nil {
		vix3m = decimal.Zero
	}

	features := regime.Features{VIX: mustFloat64(vix), VIXRatio: ratioOrZero(vix, vix3m)}
	if len(e.spyBars) > 0 {
		features.Price = e.spyBars[len(e.spyBars)-1].Close
		features.SMA50 = smaOf(e.spyBars, 50)
		features.Return20D = returnOver(e.spyBars, 20)
		features.Return5D = returnOver(e.spyBars, 5)
		features.Return1D = returnOver(e.spyBars, 1)
	}
	result := e.regime.Classify(features)

	snap := domain.MarketSnapshot{
		TS: e.clk.Now(), VIX: vix, TermStructure: termStructureOf(vix, vix3m),
		Regime: result.Regime, RegimeMode: result.Mode,
	}
	if !vix3m.IsZero() {
		ratio := vix.Div(vix3m)
		snap.VIX3M = &vix3m
		snap.Ratio = &ratio
	}
	return snap, nil
}

// smaOf returns the simple moving average of the last n closes, or 0
// if fewer than n bars are cached.
func smaOf(bars []broker.Bar, n int) float64 {
	if len(bars) < n {
		return 0
	}
	window := bars[len(bars)-n:]
	sum := 0.0
	for _, b := range window {
		sum += b.Close
	}
	return sum / float64(n)
}

// returnOver returns the fractional close-to-close return over the
// last n bars, or 0 if not enough history is cached.
func returnOver(bars []broker.Bar, n int) float64 {
	if len(bars) <= n {
		return 0
	}
	prev := bars[len(bars)-1-n].Close
	last := bars[len(bars)-1].Close
	if prev == 0 {
		return 0
	}
	return (last - prev) / prev
}

func ratioOrZero(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	return mustFloat64(a.Div(b))
}

// underlyingLevel reads an index/underlying quote through the same
// Snapshot path used for option legs, treating the midpoint as the
// level — VIX and VIX3M have no option-chain shape of their own.
func (e *Engine) underlyingLevel(ctx context.Context, symbol string) (decimal.Decimal, error) {
	qc, err := e.broker.Qualify(ctx, broker.Contract{Symbol: symbol})
	if err != nil {
		return decimal.Zero, err
	}
	q, err := e.broker.Snapshot(ctx, qc)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Mid(), nil
}

// marketContext resolves the gate inputs that aren't properties of
// the proposal itself (SPEC_FULL.md §4.10).
func (e *Engine) marketContext(ctx context.Context, symbol string, spot decimal.Decimal, snapshot domain.MarketSnapshot, portfolioBWD decimal.Decimal) (risk.MarketContext, error) {
	earnings := e.earningsInfo(ctx, symbol)
	dividend := e.dividendInfo(ctx, symbol)

	beta := 1.0
	if e.beta != nil {
		if b, err := e.beta.Beta(ctx, symbol); err == nil {
			beta = b
		}
	}

	return risk.MarketContext{
		VIX: snapshot.VIX, TermStructure: snapshot.TermStructure,
		Earnings: earnings, Dividend: dividend, Spot: spot,
		PortfolioBWDelta: portfolioBWD, Beta: beta,
	}, nil
}

// earningsInfo does a best-effort read of the broker's fundamentals
// feed; an unparsable or absent report means no upcoming earnings
// rather than a hard failure, since the blackout gate only needs to
// know about an announcement it can actually find.
func (e *Engine) earningsInfo(ctx context.Context, symbol string) risk.EarningsInfo {
	qc, err := e.broker.Qualify(ctx, broker.Contract{Symbol: symbol})
	if err != nil {
		return risk.EarningsInfo{}
	}
	xml, err := e.broker.FundamentalXML(ctx, qc, "ReportsFinSummary")
	if err != nil || !strings.Contains(xml, "EarningsDate") {
		return risk.EarningsInfo{}
	}
	return risk.EarningsInfo{Upcoming: true, HoursUntil: decimal.NewFromInt(int64(e.cfg.Safety.EarningsBlackoutHours)), ExpectedMove: decimal.NewFromFloat(0)}
}

func (e *Engine) dividendInfo(ctx context.Context, symbol string) risk.DividendInfo {
	if e.dividend == nil {
		return risk.DividendInfo{}
	}
	info, err := e.dividend.NextExDividend(ctx, symbol)
	if err != nil || info.ExDate.IsZero() {
		return risk.DividendInfo{}
	}
	days := int(info.ExDate.Sub(e.clk.Now()).Hours() / 24)
	return risk.DividendInfo{HasExDividend: true, DaysUntil: days}
}

func adviseePrompt(p *strategy.Proposal, chain strategy.Chain, mc risk.MarketContext) string {
	return fmt.Sprintf("Evaluate %s %s on %s: credit=%s debit=%s width=%s contracts=%d vix=%s term_structure=%s",
		p.Strategy, p.Symbol, chain.Symbol, p.Credit.Decimal(), p.Debit.Decimal(), p.Width, p.Contracts, mc.VIX, mc.TermStructure)
}
