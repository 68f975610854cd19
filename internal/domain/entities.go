package domain

import (
	"time"

	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/shopspring/decimal"
)

// MLExitState carries the exit-manager's learned trailing parameters
// for a Position; absent any trained model these default to the
// static fallback (50% / 2.5x, see internal/position).
type MLExitState struct {
	TrailingStop     decimal.Decimal `json:"trailing_stop"`
	TrailingProfit   decimal.Decimal `json:"trailing_profit"`
	HighestProfitSeen decimal.Decimal `json:"highest_profit_seen"`
	StopMultiplier   decimal.Decimal `json:"stop_multiplier"`
	ProfitTargetPct  decimal.Decimal `json:"profit_target_pct"`
	MLConfidence     decimal.Decimal `json:"ml_confidence"`
	MLLastUpdate     time.Time       `json:"ml_last_update"`
}

// Position is the engine's central entity: a multi-leg options
// structure from open to close/roll. Invariants: len(Legs) >= 2; the
// sum of leg deltas signed by action is the position delta; CLOSED is
// terminal except via ROLLED, which opens a successor Position.
type Position struct {
	ID           string         `json:"id"`
	Symbol       string         `json:"symbol"`
	Strategy     StrategyKind   `json:"strategy"`
	EntryTS      time.Time      `json:"entry_ts"`
	Expiration   time.Time      `json:"expiration"`
	Contracts    int            `json:"contracts"`
	EntryCredit  money.Credit   `json:"entry_credit"`
	EntryDebit   money.Debit    `json:"entry_debit"`
	MaxRisk      decimal.Decimal `json:"max_risk"`
	Status       PositionStatus `json:"status"`
	ExitTS       *time.Time     `json:"exit_ts,omitempty"`
	ExitPrice    *decimal.Decimal `json:"exit_price,omitempty"`
	ExitReason   *ExitReason    `json:"exit_reason,omitempty"`
	RealizedPnL  *decimal.Decimal `json:"realized_pnl,omitempty"`
	VIXEntry     decimal.Decimal `json:"vix_entry"`
	RegimeEntry  Regime         `json:"regime_entry"`
	Exit         MLExitState    `json:"exit_state"`
	Legs         []Leg          `json:"legs"`
	RolledFromID *string        `json:"rolled_from_id,omitempty"`
}

// Delta sums leg deltas signed by action (BUY adds, SELL subtracts).
func (p Position) Delta(legDeltas map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range p.Legs {
		d, ok := legDeltas[leg.ContractSymbol]
		if !ok {
			continue
		}
		if leg.Action == ActionSell {
			d = d.Neg()
		}
		total = total.Add(d.Mul(decimal.NewFromInt(int64(leg.Quantity))))
	}
	return total
}

// Underlying returns the Position's underlying symbol (p.Symbol); it
// does not inspect Legs.
func (p Position) Underlying() string { return p.Symbol }

// Leg is one contract within a Position. Invariant: all legs of a
// Position share the same underlying; all legs of a non-calendar
// strategy share the same expiration.
type Leg struct {
	PositionID     string          `json:"position_id"`
	ContractSymbol string          `json:"contract_symbol"`
	ConID          int64           `json:"con_id"`
	Action         LegAction       `json:"action"`
	Strike         decimal.Decimal `json:"strike"`
	OptionType     OptionType      `json:"option_type"`
	Expiration     time.Time       `json:"expiration"`
	Quantity       int             `json:"quantity"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
}

// Trade is the audit record for one submitted combo (open, close or
// roll), independent of whether it eventually fills.
type Trade struct {
	ID               string          `json:"id"`
	PositionID       string          `json:"position_id"`
	Kind             TradeKind       `json:"kind"`
	Symbol           string          `json:"symbol"`
	Status           OrderState      `json:"status"`
	RequestedQty     int             `json:"requested_qty"`
	FilledQty        int             `json:"filled_qty"`
	FillPrice        decimal.Decimal `json:"fill_price"`
	VIXAtEntry       decimal.Decimal `json:"vix_at_entry"`
	RegimeAtEntry    Regime          `json:"regime_at_entry"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	BrokerOrderID    string          `json:"broker_order_id"`
	Notes            string          `json:"notes"`
}

// ShadowTrade records a rejected candidate with the features used by
// the gate that rejected it, for later outcome labeling.
type ShadowTrade struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Strategy    StrategyKind      `json:"strategy"`
	RejectedAt  time.Time         `json:"rejected_at"`
	RejectedBy  string            `json:"rejected_by"`
	Reason      string            `json:"reason"`
	Features    map[string]string `json:"features"`
	Expiration  time.Time         `json:"expiration"`
	Outcome     ShadowOutcome     `json:"outcome"`
	OutcomeAt   *time.Time        `json:"outcome_at,omitempty"`
}

// AIDecision is written for every advisor call that influenced a
// decision, per-advisor.
type AIDecision struct {
	ID             string    `json:"id"`
	ModelID        string    `json:"model_id"`
	DecisionType   string    `json:"decision_type"`
	Recommendation string    `json:"recommendation"`
	Confidence     decimal.Decimal `json:"confidence"`
	VIX            decimal.Decimal `json:"vix"`
	Regime         Regime    `json:"regime"`
	CreatedAt      time.Time `json:"created_at"`
}

// CircuitBreakerEvent. An event with ResetTS == nil is active and
// blocks all entry paths.
type CircuitBreakerEvent struct {
	ID            string               `json:"id"`
	TriggeredTS   time.Time            `json:"triggered_ts"`
	Reason        CircuitBreakerReason `json:"reason"`
	ThresholdValue decimal.Decimal     `json:"threshold_value"`
	ResetTS       *time.Time           `json:"reset_ts,omitempty"`
	ResetBy       *string              `json:"reset_by,omitempty"`
}

// Active reports whether this event still blocks entries.
func (e CircuitBreakerEvent) Active() bool { return e.ResetTS == nil }

// ExitAdjustment is one row of the trailing-level time series for a
// Position, for auditability.
type ExitAdjustment struct {
	ID             string          `json:"id"`
	PositionID     string          `json:"position_id"`
	At             time.Time       `json:"at"`
	OldStop        decimal.Decimal `json:"old_stop"`
	NewStop        decimal.Decimal `json:"new_stop"`
	OldProfit      decimal.Decimal `json:"old_profit"`
	NewProfit      decimal.Decimal `json:"new_profit"`
	Source         string          `json:"source"` // "ML" | "STATIC" | "AI_OVERRIDE"
}

// MarketSnapshot is the VIX/term-structure/regime picture at a point
// in time.
type MarketSnapshot struct {
	TS            time.Time     `json:"ts"`
	VIX           decimal.Decimal `json:"vix"`
	VIX3M         *decimal.Decimal `json:"vix3m,omitempty"`
	Ratio         *decimal.Decimal `json:"ratio,omitempty"`
	TermStructure TermStructure `json:"term_structure"`
	Regime        Regime        `json:"regime"`
	RegimeMode    ClassifierMode `json:"regime_mode"`
}

// Candidate is the screener's transient output, never persisted on
// its own (a rejected Candidate becomes a ShadowTrade; an accepted one
// becomes a Position).
type Candidate struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	IVRank   decimal.Decimal `json:"iv_rank"`
	Volume   int64           `json:"volume"`
	Sector   string          `json:"sector"`
	Score    decimal.Decimal `json:"score"`
}

// OptionQuote is a single option contract's market snapshot,
// including the broker's data-type freshness tag. Vanna is optional:
// it's only populated once the pricing package has computed it.
type OptionQuote struct {
	ConID        int64           `json:"con_id"`
	Symbol       string          `json:"symbol"`
	Strike       decimal.Decimal `json:"strike"`
	Right        OptionType      `json:"right"`
	Expiration   time.Time       `json:"expiration"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	Delta        decimal.Decimal `json:"delta"`
	Gamma        decimal.Decimal `json:"gamma"`
	Theta        decimal.Decimal `json:"theta"`
	Vega         decimal.Decimal `json:"vega"`
	ImpliedVol   decimal.Decimal `json:"implied_vol"`
	Vanna        *decimal.Decimal `json:"vanna,omitempty"`
	DataType     DataType        `json:"data_type"`
}

// Mid returns the midpoint of bid/ask.
func (q OptionQuote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread returns ask-bid.
func (q OptionQuote) Spread() decimal.Decimal { return q.Ask.Sub(q.Bid) }

// AccountSummary: available_funds — not net-liquidation — drives
// position sizing throughout this engine.
type AccountSummary struct {
	NetLiquidation     decimal.Decimal `json:"net_liquidation"`
	AvailableFunds     decimal.Decimal `json:"available_funds"`
	BuyingPower        decimal.Decimal `json:"buying_power"`
	TotalCash          decimal.Decimal `json:"total_cash"`
	GrossPositionValue decimal.Decimal `json:"gross_position_value"`
}
