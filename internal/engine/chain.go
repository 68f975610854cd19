package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/roll"
	"github.com/atlas-desktop/options-engine/internal/strategy"
	"github.com/shopspring/decimal"
)

// minDTE/maxDTE describe the expiration window, an
// Open Question SPEC_FULL.md §4.9 leaves to the implementation; 30-45
// days is the standard monthly-premium-selling window this engine
// targets. The chain builder uses only minDTE: it takes the first
// monthly expiration at least minDTE days out, and maxDTE is not
// checked.
const (
	minDTE = 30
	maxDTE = 45
)

// strikeStep returns the strike increment to walk when no chain
// listing endpoint is available, matching defaultWidth's price bands.
func strikeStep(price decimal.Decimal) decimal.Decimal {
	if price.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(5)
	}
	return decimal.NewFromInt(1)
}

// chainBuilder qualifies and snapshots a band of strikes around the
// underlying's spot price for the first monthly expiration at least
// minDTE days out, producing the filtered strategy.Chain the builders
// consume, and also answers roll's FindQuote lookups for an arbitrary
// strike/expiration pair.
type chainBuilder struct {
	b   broker.Broker
	now func() time.Time
}

func newChainBuilder(b broker.Broker, now func() time.Time) *chainBuilder {
	return &chainBuilder{b: b, now: now}
}

// NewChainLookup exposes the same strike/expiration snapshot lookup
// chainBuilder uses internally as a roll.ChainLookup, so cmd/server can
// wire the Roll Manager without reaching into this package's
// unexported chain-construction machinery.
func NewChainLookup(b broker.Broker, now func() time.Time) roll.ChainLookup {
	return newChainBuilder(b, now)
}

// Build resolves the target expiration and snapshots every strike
// within +/-20% of spot at the symbol's strike step, on both sides.
func (c *chainBuilder) Build(ctx context.Context, symbol string, spot decimal.Decimal) (strategy.Chain, error) {
	expiration := c.targetExpiration()
	step := strikeStep(spot)
	low := spot.Mul(decimal.NewFromFloat(0.8))
	high := spot.Mul(decimal.NewFromFloat(1.2))

	var quotes []domain.OptionQuote
	for strike := roundDownToStep(low, step); strike.LessThanOrEqual(high); strike = strike.Add(step) {
		for _, right := range []domain.OptionType{domain.OptionCall, domain.OptionPut} {
			q, err := c.snapshotStrike(ctx, symbol, expiration, strike, right)
			if err != nil {
				continue
			}
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return strategy.Chain{}, fmt.Errorf("engine: no quotes resolved for %s chain", symbol)
	}
	return strategy.Chain{Symbol: symbol, Price: spot, Quotes: quotes}, nil
}

// FindQuote implements roll.ChainLookup for the Roll Manager.
func (c *chainBuilder) FindQuote(ctx context.Context, symbol string, expiration time.Time, strike decimal.Decimal, right domain.OptionType) (domain.OptionQuote, error) {
	return c.snapshotStrike(ctx, symbol, expiration, strike, right)
}

func (c *chainBuilder) snapshotStrike(ctx context.Context, symbol string, expiration time.Time, strike decimal.Decimal, right domain.OptionType) (domain.OptionQuote, error) {
	qc, err := c.b.Qualify(ctx, broker.Contract{
		Symbol: symbol, Strike: strike.String(), Right: right, Expiration: expiration.Format("2006-01-02"),
	})
	if err != nil {
		return domain.OptionQuote{}, fmt.Errorf("engine: qualify %s %s %s: %w", symbol, strike, right, err)
	}
	return c.b.Snapshot(ctx, qc)
}

func (c *chainBuilder) targetExpiration() time.Time {
	from := c.now().AddDate(0, 0, minDTE)
	return roll.NextMonthlyAtLeast(from)
}

func roundDownToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	quotient := v.Div(step).Floor()
	return quotient.Mul(step)
}
