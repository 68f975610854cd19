// Package strategy builds option structures (verticals, iron condors,
// iron butterflies, calendars) from a filtered option chain
// (SPEC_FULL.md §4.9). Grounded on the teacher's strategy-registry
// pattern (internal/strategy/strategy.go: a common interface with one
// implementation per strategy kind, looked up by name) adapted from
// bar/tick-driven signal strategies to one-shot chain-driven
// structure builders.
package strategy

import (
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Chain is a filtered option chain: every quote already satisfies the
// caller's DTE and |Δ| bounds.
type Chain struct {
	Symbol string
	Price  decimal.Decimal
	Quotes []domain.OptionQuote
}

// GreeksBounds carries the Δ/θ/Γ/vega limits a proposal must satisfy,
// sourced from internal/config at call sites.
type GreeksBounds struct {
	CreditDeltaMin decimal.Decimal
	CreditDeltaMax decimal.Decimal
	DebitDeltaMin  decimal.Decimal
	DebitDeltaMax  decimal.Decimal
	MinDailyTheta  decimal.Decimal
	MaxGamma       decimal.Decimal
}

// SizingInputs carries the available funds and per-trade risk caps
// the position sizer needs (SPEC_FULL.md §4.9).
type SizingInputs struct {
	AvailableFunds      decimal.Decimal
	MaxRiskPerTradePct  decimal.Decimal
	MaxPositionValuePct decimal.Decimal
}

// Leg is one proposed contract, prior to broker qualification.
type Leg struct {
	Quote  domain.OptionQuote
	Action domain.LegAction
}

// Proposal is a fully-built, sized, scored candidate structure.
type Proposal struct {
	Strategy   domain.StrategyKind
	Symbol     string
	Expiration time.Time
	Legs       []Leg
	Contracts  int
	Credit     money.Credit
	Debit      money.Debit
	Width      decimal.Decimal
	Score      decimal.Decimal
}

// Builder is the common interface every strategy kind implements —
// the teacher's Strategy interface narrowed to a single Build method,
// since chain-driven construction has no bar/tick lifecycle.
type Builder interface {
	Kind() domain.StrategyKind
	Build(chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error)
}

// Registry looks up a Builder by strategy kind — grounded on the
// teacher's StrategyRegistry map[string]func() Strategy pattern,
// keyed on the closed domain.StrategyKind enum instead of a free
// string.
type Registry struct {
	logger   *zap.Logger
	builders map[domain.StrategyKind]Builder
}

// NewRegistry constructs a registry pre-populated with every builder
// this package implements.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{logger: logger, builders: make(map[domain.StrategyKind]Builder)}
	r.Register(NewVerticalCreditBuilder(logger, domain.StrategyVerticalCreditCall))
	r.Register(NewVerticalCreditBuilder(logger, domain.StrategyVerticalCreditPut))
	r.Register(NewVerticalDebitBuilder(logger, domain.StrategyVerticalDebitCall))
	r.Register(NewVerticalDebitBuilder(logger, domain.StrategyVerticalDebitPut))
	r.Register(NewIronCondorBuilder(logger))
	r.Register(NewIronButterflyBuilder(logger))
	r.Register(NewCalendarBuilder(logger))
	return r
}

func (r *Registry) Register(b Builder) { r.builders[b.Kind()] = b }

// Build dispatches to the builder for kind.
func (r *Registry) Build(kind domain.StrategyKind, chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error) {
	b, ok := r.builders[kind]
	if !ok {
		return nil, fmt.Errorf("strategy: no builder registered for %s", kind)
	}
	return b.Build(chain, bounds, sizing, width)
}

func absDecimal(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}

// findByStrike returns the quote at strike/right in the chain, or
// false if no traded strike matches exactly.
func findByStrike(chain Chain, right domain.OptionType, strike decimal.Decimal) (domain.OptionQuote, bool) {
	for _, q := range chain.Quotes {
		if q.Right == right && q.Strike.Equal(strike) {
			return q, true
		}
	}
	return domain.OptionQuote{}, false
}
