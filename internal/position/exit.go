package position

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// staticStopMultiplier and staticProfitTargetPct are the fallback
// trailing rule applied whenever the ML model is absent (SPEC_FULL.md
// §4.12).
var (
	staticStopMultiplier  = decimal.NewFromFloat(2.5)
	staticProfitTargetPct = decimal.NewFromFloat(0.50)
)

// Decision is the Exit Manager's verdict for one OPEN position.
type Decision struct {
	Exit   bool
	Reason domain.ExitReason
}

// TrailingInputs carries the ML model's feature vector (SPEC_FULL.md
// §4.12); all fields are pre-computed by the caller from Position +
// MarketSnapshot history.
type TrailingInputs struct {
	PLRatio              decimal.Decimal
	DaysInTrade          int
	DTE                  int
	TimeRatio            decimal.Decimal
	VIXNow               decimal.Decimal
	VIXAtEntry           decimal.Decimal
	VIXChange            decimal.Decimal
	DeltaDrift           decimal.Decimal
	ThetaRealization     decimal.Decimal
	VolatilityTrend      decimal.Decimal
	RegimeStressScore    decimal.Decimal
	ProfitVelocity       decimal.Decimal
}

// TrailingModel predicts (stop_multiplier, profit_target_pct) from
// TrailingInputs. Absent a trained model, callers pass a nil Model and
// the static 50%/2.5x fallback applies.
type TrailingModel interface {
	Predict(ctx context.Context, in TrailingInputs) (stopMultiplier, profitTargetPct decimal.Decimal, confidence decimal.Decimal, err error)
}

// Advisor is the narrow AI-advisor capability the Exit Manager needs
// for the second-opinion override flow.
type Advisor interface {
	ExitOpinion(ctx context.Context, prompt string) (domain.AIAction, error)
}

// Store is the persistence slice the Exit Manager needs.
type Store interface {
	UpdatePositionTrailing(ctx context.Context, positionID string, stop, profit, highestProfit, stopMult, profitTargetPct, confidence decimal.Decimal, at time.Time) error
	LogExitAdjustment(ctx context.Context, a domain.ExitAdjustment) error
	MarkPositionClosed(ctx context.Context, positionID string, status domain.PositionStatus, exitTS time.Time, exitPrice decimal.Decimal, reason domain.ExitReason, realizedPnL decimal.Decimal) error
	CloseTrade(ctx context.Context, tradeID string, status domain.OrderState, filledQty int, fillPrice decimal.Decimal, closedAt time.Time) error
}

// IDGenerator mints ids for ExitAdjustment records.
type IDGenerator func() string

// ExitManager evaluates the decision function, runs ML-assisted
// trailing updates (stops only ever tighten), requests AI overrides,
// and submits the close combo (SPEC_FULL.md §4.12). Grounded on the
// teacher's internal/autonomous/enhanced_agent.go bounded-adaptive-
// parameter model-merge pattern for the trailing half, adapted to the
// spec's min(old, entry_credit*multiplier) tightening invariant,
// enforced here rather than trusted from the model.
type ExitManager struct {
	logger        *zap.Logger
	store         Store
	orderManager  *orders.Manager
	model         TrailingModel
	advisor       Advisor
	newID         IDGenerator
	timeExitDTE   int
	aiTriggerPct  decimal.Decimal
}

func NewExitManager(logger *zap.Logger, store Store, om *orders.Manager, model TrailingModel, advisor Advisor, newID IDGenerator, timeExitDTE int, aiTriggerPct decimal.Decimal) *ExitManager {
	return &ExitManager{
		logger: logger.Named("position.exit_manager"), store: store, orderManager: om,
		model: model, advisor: advisor, newID: newID, timeExitDTE: timeExitDTE, aiTriggerPct: aiTriggerPct,
	}
}

// Evaluate runs the decision function (SPEC_FULL.md §4.12):
//   current_price <= trailing_profit       -> TRAILING_PROFIT/PROFIT_TARGET
//   current_price >= trailing_stop         -> TRAILING_STOP/STOP_LOSS
//   days_to_expiration <= time_exit_dte    -> TIME_EXIT
//   else hold
// usingML distinguishes an ML-tuned trailing level (TRAILING_*)
// from the static fallback (PROFIT_TARGET/STOP_LOSS), since both share
// the same comparison but the spec names them differently.
func Evaluate(currentPrice decimal.Decimal, p domain.Position, dte int, timeExitDTE int, usingML bool) Decision {
	if currentPrice.LessThanOrEqual(p.Exit.TrailingProfit) {
		reason := domain.ExitProfitTarget
		if usingML {
			reason = domain.ExitTrailingProfit
		}
		return Decision{Exit: true, Reason: reason}
	}
	if currentPrice.GreaterThanOrEqual(p.Exit.TrailingStop) {
		reason := domain.ExitStopLoss
		if usingML {
			reason = domain.ExitTrailingStop
		}
		return Decision{Exit: true, Reason: reason}
	}
	if dte <= timeExitDTE {
		return Decision{Exit: true, Reason: domain.ExitTimeExit}
	}
	return Decision{}
}

// UpdateTrailing predicts new trailing levels and persists them,
// enforcing the tightening invariant: new_stop = min(old_stop,
// entry_credit * stop_multiplier). Falls back to the static 50%/2.5x
// rule if model is nil or prediction fails.
func (m *ExitManager) UpdateTrailing(ctx context.Context, p domain.Position, in TrailingInputs, now time.Time) error {
	entryCredit := p.EntryCredit.Decimal()
	stopMult, profitPct, confidence := staticStopMultiplier, staticProfitTargetPct, decimal.Zero
	source := "STATIC"

	if m.model != nil {
		predStop, predProfit, predConfidence, err := m.model.Predict(ctx, in)
		if err != nil {
			m.logger.Debug("trailing model prediction failed, using static fallback", zap.Error(err), zap.String("position_id", p.ID))
		} else {
			stopMult, profitPct, confidence = clampStopMultiplier(predStop), clampProfitTargetPct(predProfit), predConfidence
			source = "ML"
		}
	}

	newStop := entryCredit.Mul(stopMult)
	if !p.Exit.TrailingStop.IsZero() && p.Exit.TrailingStop.LessThan(newStop) {
		newStop = p.Exit.TrailingStop // stops only tighten
	}
	newProfit := entryCredit.Mul(profitPct)

	if err := m.store.UpdatePositionTrailing(ctx, p.ID, newStop, newProfit, p.Exit.HighestProfitSeen, stopMult, profitPct, confidence, now); err != nil {
		return fmt.Errorf("position: update trailing: %w", err)
	}
	adj := domain.ExitAdjustment{
		ID: m.newID(), PositionID: p.ID, At: now,
		OldStop: p.Exit.TrailingStop, NewStop: newStop,
		OldProfit: p.Exit.TrailingProfit, NewProfit: newProfit,
		Source: source,
	}
	if err := m.store.LogExitAdjustment(ctx, adj); err != nil {
		m.logger.Warn("failed to log exit adjustment", zap.Error(err), zap.String("position_id", p.ID))
	}
	return nil
}

func clampStopMultiplier(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.NewFromFloat(1.5)) {
		return decimal.NewFromFloat(1.5)
	}
	if d.GreaterThan(decimal.NewFromFloat(3.5)) {
		return decimal.NewFromFloat(3.5)
	}
	return d
}

func clampProfitTargetPct(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.NewFromFloat(0.4)) {
		return decimal.NewFromFloat(0.4)
	}
	if d.GreaterThan(decimal.NewFromFloat(0.7)) {
		return decimal.NewFromFloat(0.7)
	}
	return d
}

// CheckAIOverride requests a second opinion once |P/L|/max_risk
// crosses aiTriggerPct (SPEC_FULL.md §4.12): EXIT_NOW forces an
// immediate exit regardless of trailing levels. Every other action is
// returned as is and changes nothing: UpdateTrailing takes no advisor
// input, the engine's position monitor acts only on EXIT_NOW, and
// AGREE is not logged.
func (m *ExitManager) CheckAIOverride(ctx context.Context, p domain.Position, unrealizedPnL decimal.Decimal, prompt string) (domain.AIAction, error) {
	if p.MaxRisk.IsZero() {
		return domain.AIActionAgree, nil
	}
	ratio := unrealizedPnL.Abs().Div(p.MaxRisk)
	if ratio.LessThan(m.aiTriggerPct) {
		return domain.AIActionAgree, nil
	}
	if m.advisor == nil {
		return domain.AIActionAgree, nil
	}
	action, err := m.advisor.ExitOpinion(ctx, prompt)
	if err != nil {
		m.logger.Debug("ai override check unavailable", zap.Error(err), zap.String("position_id", p.ID))
		return domain.AIActionAgree, nil
	}
	return action, nil
}

// Close submits the reverse-leg close combo and marks the Position
// closed once filled: market for TIME_EXIT/AI_OVERRIDE_EXIT, limit at
// mid otherwise (SPEC_FULL.md §4.12).
func (m *ExitManager) Close(ctx context.Context, p domain.Position, reason domain.ExitReason, currentPrice decimal.Decimal, vix decimal.Decimal, regime domain.Regime, now time.Time) error {
	legs := orders.BuildCloseCombo(p)
	action := domain.ActionBuy // closing a net-short structure buys it back; BuildCloseCombo already reverses per-leg

	var limitPrice *float64
	if reason != domain.ExitTimeExit && reason != domain.ExitAIOverride {
		mid, _ := currentPrice.Float64()
		limitPrice = &mid
	}

	trade, filled, err := m.orderManager.SubmitAndAwaitFill(ctx, domain.TradeClose, p.ID, p.Symbol, legs, p.Contracts, action, limitPrice, vix, regime, now, 30*time.Second)
	if err != nil {
		return fmt.Errorf("position: submit close combo: %w", err)
	}
	if !filled {
		return fmt.Errorf("position: close combo for %s did not fill within deadline", p.ID)
	}

	realizedPnL := p.EntryCredit.Decimal().Sub(p.EntryDebit.Decimal()).Sub(currentPrice).Mul(decimal.NewFromInt(int64(p.Contracts))).Mul(decimal.NewFromInt(100))
	if err := m.store.MarkPositionClosed(ctx, p.ID, domain.PositionClosed, now, currentPrice, reason, realizedPnL); err != nil {
		return fmt.Errorf("position: mark closed: %w", err)
	}
	// SubmitAndAwaitFill's poll loop already recorded the fill with a
	// zero fill_price (the broker reports no price). Overwrite it with
	// the realized P/L so the close trade record, and anything reading
	// it (the circuit breaker, loss analysis), reflects the real
	// win/loss instead of an always-zero placeholder.
	if err := m.store.CloseTrade(ctx, trade.ID, domain.OrderFilled, trade.FilledQty, realizedPnL, now); err != nil {
		return fmt.Errorf("position: record realized pnl on close trade: %w", err)
	}
	return nil
}

// Snapshot carries just enough broker state to compute unrealized
// P/L, kept narrow since Position.Delta needs per-contract deltas the
// Tracker already resolved.
type Snapshot struct {
	CurrentPrice decimal.Decimal
	DTE          int
}
