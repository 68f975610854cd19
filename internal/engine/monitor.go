package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/atlas-desktop/options-engine/internal/notify"
	"github.com/atlas-desktop/options-engine/internal/position"
	"github.com/atlas-desktop/options-engine/internal/roll"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const monitorInterval = 30 * time.Second
const reconcileInterval = 5 * time.Minute

// positionMonitorLoop ticks every monitorInterval, refreshing every
// OPEN position's fair value, updating trailing levels, evaluating
// the exit decision function, and checking for a tested short leg
// that should roll instead (SPEC_FULL.md §4.12/§4.13).
func (e *Engine) positionMonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.monitorOnce(ctx)
		}
	}
}

func (e *Engine) monitorOnce(ctx context.Context) {
	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		e.logger.Warn("failed to load open positions", zap.Error(err))
		return
	}
	now := e.clk.Now()
	for _, p := range positions {
		if err := e.monitorOne(ctx, p, now); err != nil {
			e.logger.Warn("position monitor step failed", zap.Error(err), zap.String("position_id", p.ID))
		}
	}
}

func (e *Engine) monitorOne(ctx context.Context, p domain.Position, now time.Time) error {
	legValues, err := e.tracker.Refresh(ctx, p)
	if err != nil {
		return fmt.Errorf("engine: refresh legs: %w", err)
	}
	currentPrice := position.FairValue(legValues, p.Contracts)
	dte := int(p.Expiration.Sub(now).Hours() / 24)

	in := e.trailingInputsFor(ctx, p, currentPrice, dte, now)
	if err := e.exitManager.UpdateTrailing(ctx, p, in, now); err != nil {
		e.logger.Warn("trailing update failed", zap.Error(err), zap.String("position_id", p.ID))
	}

	refreshed, err := e.store.GetPosition(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("engine: reload position: %w", err)
	}
	if refreshed.Status != domain.PositionOpen {
		return nil
	}

	decision := position.Evaluate(currentPrice, refreshed, dte, e.cfg.Exit.TimeExitDTE, e.exitManager != nil)

	unrealized := realizedPnLOf(refreshed, currentPrice)
	if !decision.Exit {
		action, err := e.exitManager.CheckAIOverride(ctx, refreshed, unrealized, overridePrompt(refreshed, currentPrice))
		if err == nil && action == domain.AIActionExitNow {
			decision = position.Decision{Exit: true, Reason: domain.ExitAIOverride}
		}
	}

	if decision.Exit {
		return e.closePosition(ctx, refreshed, decision.Reason, currentPrice, now)
	}

	deltas, err := e.shortLegDeltas(ctx, refreshed)
	if err != nil {
		e.logger.Debug("short leg delta refresh failed, skipping roll check this tick", zap.Error(err), zap.String("position_id", p.ID))
		return nil
	}
	spot, err := e.underlyingLevel(ctx, refreshed.Symbol)
	if err != nil {
		return nil
	}
	if roll.Triggered(refreshed, spot, deltas) {
		e.attemptRoll(ctx, refreshed, spot, now)
	}
	return nil
}

// closePosition submits the close combo, records realized P/L against
// the daily running total, and re-evaluates the circuit breaker — it
// is the single path every exit (decision function, AI override, or
// abandoned-roll fallback) funnels through.
func (e *Engine) closePosition(ctx context.Context, p domain.Position, reason domain.ExitReason, currentPrice decimal.Decimal, now time.Time) error {
	vix, regime := e.lastKnownMarket(ctx)
	if err := e.exitManager.Close(ctx, p, reason, currentPrice, vix, regime, now); err != nil {
		return fmt.Errorf("engine: close position %s: %w", p.ID, err)
	}
	realized := realizedPnLOf(p, currentPrice)
	e.notifier.Publish(ctx, notify.TradeClosed(p.Symbol, string(reason), realized.String(), now), false)

	daily := e.recordDailyPnL(realized, now)
	if err := e.breaker.EvaluateAfterClose(ctx, now, daily); err != nil {
		e.logger.Info("circuit breaker tripped after close", zap.Error(err), zap.String("position_id", p.ID))
	}
	return nil
}

// attemptRoll proposes and executes a roll for a tested position,
// falling back to an immediate stop-loss close if the roll combo is
// abandoned after its deadline (SPEC_FULL.md §4.13).
func (e *Engine) attemptRoll(ctx context.Context, p domain.Position, spot decimal.Decimal, now time.Time) {
	width := defaultWidth(spot)
	prop, err := roll.Propose(p, width, testedDirectionUp(p, spot), now)
	if err != nil {
		e.logger.Warn("roll proposal failed", zap.Error(err), zap.String("position_id", p.ID))
		return
	}

	vix, regime := e.lastKnownMarket(ctx)
	ok, spread, err := e.rollManager.Execute(ctx, p, prop, vix, regime, now)
	if err != nil {
		e.logger.Warn("roll execution failed", zap.Error(err), zap.String("position_id", p.ID))
		return
	}
	if !ok {
		legValues, rerr := e.tracker.Refresh(ctx, p)
		if rerr != nil {
			e.logger.Warn("fallback refresh after abandoned roll failed", zap.Error(rerr), zap.String("position_id", p.ID))
			return
		}
		currentPrice := position.FairValue(legValues, p.Contracts)
		if cerr := e.closePosition(ctx, p, domain.ExitStopLoss, currentPrice, now); cerr != nil {
			e.logger.Warn("fallback close after abandoned roll failed", zap.Error(cerr), zap.String("position_id", p.ID))
		}
		return
	}

	successor := successorPosition(p, spread, vix, regime, now)
	if serr := e.store.CreatePosition(ctx, successor); serr != nil {
		e.logger.Warn("failed to persist rolled-into position", zap.Error(serr), zap.String("position_id", p.ID), zap.String("successor_id", successor.ID))
		return
	}
	if merr := e.store.MarkPositionRolled(ctx, p.ID, now); merr != nil {
		e.logger.Warn("failed to mark position rolled", zap.Error(merr), zap.String("position_id", p.ID))
	}
	e.notifier.Publish(ctx, notify.TradeOpened(successor.Symbol, string(successor.Strategy), now), false)
}

// successorPosition builds the OPEN Position a filled roll opens in
// place of the tested spread, linked back via RolledFromID so the
// reconciler and exit manager pick it up instead of leaving it
// untracked at the broker (SPEC_FULL.md §3/§4.13).
func successorPosition(old domain.Position, spread roll.NewSpread, vix decimal.Decimal, regime domain.Regime, now time.Time) domain.Position {
	credit, debit, isCredit := money.FromMid(spread.Legs[0].EntryPrice, spread.Legs[1].EntryPrice)
	width := spread.Legs[0].Strike.Sub(spread.Legs[1].Strike).Abs()
	perContract := decimal.NewFromInt(100).Mul(decimal.NewFromInt(int64(old.Contracts)))
	maxRisk := width.Mul(perContract).Sub(credit.Decimal().Mul(perContract))
	if !isCredit {
		maxRisk = debit.Decimal().Mul(perContract)
	}
	rolledFrom := old.ID
	return domain.Position{
		ID: newTradeID(), Symbol: old.Symbol, Strategy: old.Strategy, EntryTS: now, Expiration: spread.Expiration,
		Contracts: old.Contracts, EntryCredit: credit, EntryDebit: debit, MaxRisk: maxRisk,
		Status: domain.PositionOpen, VIXEntry: vix, RegimeEntry: regime,
		Legs: spread.Legs, RolledFromID: &rolledFrom,
	}
}

// testedDirectionUp reports whether the tested short leg was breached
// to the upside (short call) or downside (short put), feeding
// roll.Propose's strike-shift direction.
func testedDirectionUp(p domain.Position, spot decimal.Decimal) bool {
	for _, leg := range p.Legs {
		if leg.Action != domain.ActionSell {
			continue
		}
		if leg.OptionType == domain.OptionCall && spot.GreaterThanOrEqual(leg.Strike) {
			return true
		}
		if leg.OptionType == domain.OptionPut && spot.LessThanOrEqual(leg.Strike) {
			return false
		}
	}
	return true
}

// shortLegDeltas re-snapshots every short leg's current delta, the
// input roll.Triggered needs to catch a breach the strike/price test
// alone would miss.
func (e *Engine) shortLegDeltas(ctx context.Context, p domain.Position) (map[string]decimal.Decimal, error) {
	deltas := make(map[string]decimal.Decimal, len(p.Legs))
	for _, leg := range p.Legs {
		if leg.Action != domain.ActionSell {
			continue
		}
		qc := broker.QualifiedContract{
			Contract: broker.Contract{Symbol: p.Symbol, Strike: leg.Strike.String(), Right: leg.OptionType, Expiration: leg.Expiration.Format("2006-01-02")},
			ConID:    leg.ConID,
		}
		q, err := e.broker.Snapshot(ctx, qc)
		if err != nil {
			return nil, err
		}
		deltas[leg.ContractSymbol] = q.Delta
	}
	return deltas, nil
}

// trailingInputsFor assembles the ML trailing model's feature vector
// from the position's stored state and a fresh VIX read.
func (e *Engine) trailingInputsFor(ctx context.Context, p domain.Position, currentPrice decimal.Decimal, dte int, now time.Time) position.TrailingInputs {
	vixNow, err := e.underlyingLevel(ctx, "VIX")
	if err != nil {
		vixNow = p.VIXEntry
	}

	plRatio := decimal.Zero
	if !p.MaxRisk.IsZero() {
		plRatio = currentPrice.Div(p.MaxRisk)
	}
	daysInTrade := int(now.Sub(p.EntryTS).Hours() / 24)
	totalDTE := int(p.Expiration.Sub(p.EntryTS).Hours() / 24)
	timeRatio := decimal.Zero
	if totalDTE > 0 {
		timeRatio = decimal.NewFromInt(int64(daysInTrade)).Div(decimal.NewFromInt(int64(totalDTE)))
	}

	return position.TrailingInputs{
		PLRatio:     plRatio,
		DaysInTrade: daysInTrade,
		DTE:         dte,
		TimeRatio:   timeRatio,
		VIXNow:      vixNow,
		VIXAtEntry:  p.VIXEntry,
		VIXChange:   vixNow.Sub(p.VIXEntry),
	}
}

// realizedPnLOf mirrors the Exit Manager's own close-time P/L formula
// so the engine can feed the circuit breaker before the store's
// update has necessarily landed.
func realizedPnLOf(p domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	return p.EntryCredit.Decimal().Sub(p.EntryDebit.Decimal()).Sub(currentPrice).
		Mul(decimal.NewFromInt(int64(p.Contracts))).Mul(decimal.NewFromInt(100))
}

// recordDailyPnL accumulates realized P/L into a running total that
// resets at the first close of a new calendar day, feeding the
// circuit breaker's daily-max-loss check (SPEC_FULL.md §4.10 item 1).
func (e *Engine) recordDailyPnL(realized decimal.Decimal, now time.Time) decimal.Decimal {
	if e.dailyPnLDate.IsZero() || e.dailyPnLDate.YearDay() != now.YearDay() || e.dailyPnLDate.Year() != now.Year() {
		e.dailyPnL = decimal.Zero
		e.dailyPnLDate = now
	}
	e.dailyPnL = e.dailyPnL.Add(realized)
	return e.dailyPnL
}

// lastKnownMarket re-derives VIX/regime for a close or roll combo's
// audit fields; a failure degrades to zero/unknown rather than
// blocking the exit itself.
func (e *Engine) lastKnownMarket(ctx context.Context) (decimal.Decimal, domain.Regime) {
	snapshot, err := e.marketSnapshot(ctx)
	if err != nil {
		return decimal.Zero, domain.Regime("")
	}
	return snapshot.VIX, snapshot.Regime
}

func overridePrompt(p domain.Position, currentPrice decimal.Decimal) string {
	return fmt.Sprintf("Position %s %s: current close price %s, entry credit %s, entry debit %s. Exit now?",
		p.Symbol, p.Strategy, currentPrice, p.EntryCredit.Decimal(), p.EntryDebit.Decimal())
}

// reconcileLoop ticks every reconcileInterval, diffing the store's
// open positions against the broker's reported portfolio (SPEC_FULL.md
// §4.14) and publishing a notification whenever the diff is non-empty.
func (e *Engine) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			diff, err := e.reconciler.Reconcile(ctx)
			if err != nil {
				e.logger.Warn("reconciliation failed", zap.Error(err))
				continue
			}
			if len(diff.ClosedExternally) > 0 || len(diff.UnknownInBroker) > 0 {
				e.notifier.Publish(ctx, notify.ReconciliationDiff(len(diff.ClosedExternally), len(diff.UnknownInBroker), e.clk.Now()), false)
			}
		}
	}
}
