// Package domain holds the data model shared across every component:
// Position, Leg, Trade, ShadowTrade, AIDecision, CircuitBreakerEvent,
// ExitAdjustment, MarketSnapshot, Candidate, OptionQuote and
// AccountSummary, plus the closed-variant enums each one uses. Enums
// are string-backed types with a fixed constant set and a Valid()
// method rather than bare strings, so a malformed value is caught at
// the edge (parsing an AI response or broker payload) instead of
// propagating silently.
package domain

// StrategyKind is the closed set of option structures the Strategy
// Builder can construct.
type StrategyKind string

const (
	StrategyIronCondor        StrategyKind = "IRON_CONDOR"
	StrategyIronButterfly     StrategyKind = "IRON_BUTTERFLY"
	StrategyVerticalCreditCall StrategyKind = "VERTICAL_CREDIT_CALL"
	StrategyVerticalCreditPut StrategyKind = "VERTICAL_CREDIT_PUT"
	StrategyVerticalDebitCall StrategyKind = "VERTICAL_DEBIT_CALL"
	StrategyVerticalDebitPut StrategyKind = "VERTICAL_DEBIT_PUT"
	StrategyCalendar          StrategyKind = "CALENDAR"
	StrategyPMCC              StrategyKind = "PMCC"
	StrategyJadeLizard        StrategyKind = "JADE_LIZARD"
)

func (s StrategyKind) Valid() bool {
	switch s {
	case StrategyIronCondor, StrategyIronButterfly, StrategyVerticalCreditCall,
		StrategyVerticalCreditPut, StrategyVerticalDebitCall, StrategyVerticalDebitPut,
		StrategyCalendar, StrategyPMCC, StrategyJadeLizard:
		return true
	}
	return false
}

// IsCredit reports whether the strategy is opened for a net credit.
func (s StrategyKind) IsCredit() bool {
	switch s {
	case StrategyIronCondor, StrategyIronButterfly, StrategyVerticalCreditCall,
		StrategyVerticalCreditPut, StrategyJadeLizard:
		return true
	}
	return false
}

// PositionStatus is the closed lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "OPEN"
	PositionClosed          PositionStatus = "CLOSED"
	PositionClosedExternally PositionStatus = "CLOSED_EXTERNALLY"
	PositionRolled           PositionStatus = "ROLLED"
)

// LegAction is BUY or SELL.
type LegAction string

const (
	ActionBuy  LegAction = "BUY"
	ActionSell LegAction = "SELL"
)

// Opposite returns the reversing action, used when closing/rolling.
func (a LegAction) Opposite() LegAction {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// OptionType is Call or Put.
type OptionType string

const (
	OptionCall OptionType = "C"
	OptionPut  OptionType = "P"
)

// ShadowOutcome labels a rejected candidate once the evaluator has had
// a chance to see what happened to the underlying.
type ShadowOutcome string

const (
	ShadowPending           ShadowOutcome = "PENDING"
	ShadowGoodReject        ShadowOutcome = "GOOD_REJECT"
	ShadowMissedOpportunity ShadowOutcome = "MISSED_OPPORTUNITY"
	ShadowNeutral           ShadowOutcome = "NEUTRAL"
)

// CircuitBreakerReason is the closed set of trip causes.
type CircuitBreakerReason string

const (
	ReasonDailyMaxLoss       CircuitBreakerReason = "DAILY_MAX_LOSS"
	ReasonConsecutiveLosses  CircuitBreakerReason = "CONSECUTIVE_LOSSES"
	ReasonManual             CircuitBreakerReason = "MANUAL"
)

// TermStructure describes the VIX/VIX3M relationship.
type TermStructure string

const (
	TermContango      TermStructure = "CONTANGO"
	TermBackwardation TermStructure = "BACKWARDATION"
	TermUnknown       TermStructure = "UNKNOWN"
)

// Regime is the closed set of market regimes the Regime & Feature
// Engine can classify a snapshot into.
type Regime string

const (
	RegimeBullTrending   Regime = "BULL_TRENDING"
	RegimeBearTrending   Regime = "BEAR_TRENDING"
	RegimeHighVolNeutral Regime = "HIGH_VOL_NEUTRAL"
	RegimeLowVolNeutral  Regime = "LOW_VOL_NEUTRAL"
	RegimeExtremeStress  Regime = "EXTREME_STRESS"
)

// ClassifierMode tags which variant of the Classifier capability
// produced a Regime, for observability — callers never branch on it.
type ClassifierMode string

const (
	ModeML        ClassifierMode = "ML"
	ModeRuleBased ClassifierMode = "RULE_BASED"
)

// DataType is the broker's market-data freshness tag.
type DataType string

const (
	DataRealTime      DataType = "REAL_TIME"
	DataFrozen        DataType = "FROZEN"
	DataDelayed       DataType = "DELAYED"
	DataDelayedFrozen DataType = "DELAYED_FROZEN"
)

// IsDelayed reports whether this data type requires allow_delayed_data.
func (d DataType) IsDelayed() bool {
	return d == DataDelayed || d == DataDelayedFrozen
}

// ExitReason is the closed set of reasons Exit/Roll Manager can close
// or roll a position for.
type ExitReason string

const (
	ExitTrailingProfit ExitReason = "TRAILING_PROFIT"
	ExitProfitTarget   ExitReason = "PROFIT_TARGET"
	ExitTrailingStop   ExitReason = "TRAILING_STOP"
	ExitStopLoss       ExitReason = "STOP_LOSS"
	ExitTimeExit       ExitReason = "TIME_EXIT"
	ExitAIOverride     ExitReason = "AI_OVERRIDE_EXIT"
	ExitReconciliation ExitReason = "Reconciliation"
)

// AIVerdict is the closed set of advisor verdicts the core parses.
// SCHVALENO and ZAMITNUTO map onto APPROVE and REJECT at the parsing
// boundary (see internal/external); UPRAVIT has no English alias and
// is itself the canonical revise value.
type AIVerdict string

const (
	VerdictApprove AIVerdict = "APPROVE"
	VerdictReject  AIVerdict = "REJECT"
	VerdictRevise  AIVerdict = "UPRAVIT"
)

// AIAction is the Exit Manager's second-opinion response kind.
type AIAction string

const (
	AIActionExitNow      AIAction = "EXIT_NOW"
	AIActionTightenStop  AIAction = "TIGHTEN_STOP"
	AIActionAdjustProfit AIAction = "ADJUST_PROFIT"
	AIActionAgree        AIAction = "AGREE"
)

// OrderState is the order-manager state machine (§4.11).
type OrderState string

const (
	OrderSubmitted      OrderState = "SUBMITTED"
	OrderPartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderFilled          OrderState = "FILLED"
	OrderCancelled       OrderState = "CANCELLED"
	OrderInactive        OrderState = "INACTIVE"
)

// Terminal reports whether no further transition is expected.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderInactive
}

// TradeKind distinguishes the three combo submission shapes.
type TradeKind string

const (
	TradeOpen  TradeKind = "OPEN"
	TradeClose TradeKind = "CLOSE"
	TradeRoll  TradeKind = "ROLL"
)
