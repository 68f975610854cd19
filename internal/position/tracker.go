// Package position refreshes per-leg market value, aggregates
// Position fair value, and runs the exit decision function (SPEC_FULL.md
// §4.12). Grounded on the teacher's internal/execution/order_manager.go
// updatePosition/GetPosition bookkeeping for the tracker half.
package position

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LegValue is one leg's refreshed market value: mid price * quantity *
// the standard 100 multiplier, signed by action (positive for a long
// leg's value, negative for a short leg's liability) — the broker's
// usual dollar-market-value convention, which FairValue then
// normalizes back down to a per-contract price scale.
type LegValue struct {
	Leg         domain.Leg
	MarketValue decimal.Decimal
}

// Tracker refreshes per-leg market values from the broker and
// aggregates Position fair value.
type Tracker struct {
	logger *zap.Logger
	broker broker.Broker
}

func NewTracker(logger *zap.Logger, b broker.Broker) *Tracker {
	return &Tracker{logger: logger.Named("position.tracker"), broker: b}
}

// Refresh resolves a current market value for every leg, signed so
// that a long leg contributes a positive value and a short leg a
// negative one (SPEC_FULL.md §4.12).
func (t *Tracker) Refresh(ctx context.Context, p domain.Position) ([]LegValue, error) {
	out := make([]LegValue, 0, len(p.Legs))
	for _, leg := range p.Legs {
		qc := broker.QualifiedContract{
			Contract: broker.Contract{
				Symbol:     p.Symbol,
				Strike:     leg.Strike.String(),
				Right:      leg.OptionType,
				Expiration: leg.Expiration.Format("2006-01-02"),
			},
			ConID: leg.ConID,
		}
		quote, err := t.broker.Snapshot(ctx, qc)
		if err != nil {
			return nil, fmt.Errorf("position: refresh leg %s: %w", leg.ContractSymbol, err)
		}
		mv := quote.Mid().Mul(decimal.NewFromInt(int64(leg.Quantity))).Mul(decimal.NewFromInt(100))
		if leg.Action == domain.ActionSell {
			mv = mv.Neg()
		}
		out = append(out, LegValue{Leg: leg, MarketValue: mv})
	}
	return out, nil
}

// FairValue computes current_price_per_contract = -sum(leg_market_values)
// / (contracts * 100), per SPEC_FULL.md §4.12 — the sign is chosen so
// a credit spread's close-debit comes out positive: closing a short
// premium position costs money, and that cost should read as a
// positive "price to pay," matching what a limit order to close would
// quote.
func FairValue(legValues []LegValue, contracts int) decimal.Decimal {
	if contracts == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, lv := range legValues {
		sum = sum.Add(lv.MarketValue)
	}
	denom := decimal.NewFromInt(int64(contracts)).Mul(decimal.NewFromInt(100))
	return sum.Neg().Div(denom)
}
