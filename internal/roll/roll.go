// Package roll detects tested short legs and issues the atomic 4-leg
// roll combo (SPEC_FULL.md §4.13). Grounded on internal/orders' BAG
// construction primitive reused directly — a roll is "close the old
// spread plus open the new one in a single combo" — and on the
// teacher's internal/execution/executor.go ExecuteWithSLTP timeout/
// fallback idiom for "wait up to N, else fall back."
package roll

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const abandonDeadline = 30 * time.Second

// Triggered reports whether the short leg of p is tested, per
// SPEC_FULL.md §4.13: short call tested if current_price >= strike;
// short put tested if current_price <= strike; or |delta| > 0.40 on
// either short leg.
func Triggered(p domain.Position, currentUnderlyingPrice decimal.Decimal, shortLegDeltas map[string]decimal.Decimal) bool {
	for _, leg := range p.Legs {
		if leg.Action != domain.ActionSell {
			continue
		}
		if leg.OptionType == domain.OptionCall && currentUnderlyingPrice.GreaterThanOrEqual(leg.Strike) {
			return true
		}
		if leg.OptionType == domain.OptionPut && currentUnderlyingPrice.LessThanOrEqual(leg.Strike) {
			return true
		}
		if d, ok := shortLegDeltas[leg.ContractSymbol]; ok && absDecimal(d).GreaterThan(decimal.NewFromFloat(0.40)) {
			return true
		}
	}
	return false
}

func absDecimal(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg()
	}
	return d
}

// Proposal is the new strike/expiration pair a roll targets.
type Proposal struct {
	NewShortStrike decimal.Decimal
	NewLongStrike  decimal.Decimal
	NewExpiration  time.Time
}

// Propose preserves spread width, moves the tested side's strikes by
// one width in the tested direction, and rolls expiration forward to
// the next monthly expiration at least 30 days out (SPEC_FULL.md
// §4.13).
func Propose(p domain.Position, width decimal.Decimal, testedDirectionUp bool, from time.Time) (Proposal, error) {
	short, long, ok := shortAndLong(p)
	if !ok {
		return Proposal{}, fmt.Errorf("roll: position %s does not have exactly one short and one long leg", p.ID)
	}

	var newShort, newLong decimal.Decimal
	if testedDirectionUp {
		newShort = short.Strike.Add(width)
		newLong = long.Strike.Add(width)
	} else {
		newShort = short.Strike.Sub(width)
		newLong = long.Strike.Sub(width)
	}

	return Proposal{
		NewShortStrike: newShort,
		NewLongStrike:  newLong,
		NewExpiration:  NextMonthlyAtLeast(from.AddDate(0, 0, 30)),
	}, nil
}

func shortAndLong(p domain.Position) (short, long domain.Leg, ok bool) {
	var foundShort, foundLong bool
	for _, leg := range p.Legs {
		if leg.Action == domain.ActionSell && !foundShort {
			short, foundShort = leg, true
		}
		if leg.Action == domain.ActionBuy && !foundLong {
			long, foundLong = leg, true
		}
	}
	return short, long, foundShort && foundLong
}

// NextMonthlyAtLeast returns the third Friday of from's month if it
// falls on or after from, else the third Friday of the following
// month — the standard monthly options expiration.
func NextMonthlyAtLeast(from time.Time) time.Time {
	candidate := thirdFriday(from.Year(), from.Month())
	if candidate.Before(from) {
		y, m := from.Year(), from.Month()+1
		if m > 12 {
			m = 1
			y++
		}
		candidate = thirdFriday(y, m)
	}
	return candidate
}

func thirdFriday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	firstFriday := first.AddDate(0, 0, offset)
	return firstFriday.AddDate(0, 0, 14)
}

// ChainLookup is the narrow capability the Manager needs to look up
// quotes for the new legs at the proposed strikes before submission.
type ChainLookup interface {
	FindQuote(ctx context.Context, symbol string, expiration time.Time, strike decimal.Decimal, right domain.OptionType) (domain.OptionQuote, error)
}

// Manager issues the atomic 4-leg roll combo and falls back to the
// original exit decision if it does not fill within 30s.
type Manager struct {
	logger       *zap.Logger
	orderManager *orders.Manager
	chain        ChainLookup
}

func NewManager(logger *zap.Logger, om *orders.Manager, chain ChainLookup) *Manager {
	return &Manager{logger: logger.Named("roll.manager"), orderManager: om, chain: chain}
}

// NewSpread is the successor spread's legs and net entry credit/debit,
// returned on a filled roll so the caller can persist the successor
// Position (SPEC_FULL.md §3's "ROLLED ... opens a successor").
type NewSpread struct {
	Legs       []domain.Leg
	Expiration time.Time
	NetCredit  decimal.Decimal // positive credit received, negative if a debit was paid
}

// Execute qualifies the new short/long legs, builds the 4-leg BAG via
// internal/orders, and submits it targeting net credit or <= $0.05
// debit. Returns ok=false (no error) if the roll is abandoned after
// 30s — the caller should then proceed with the original exit
// decision (SPEC_FULL.md §4.13).
func (m *Manager) Execute(ctx context.Context, p domain.Position, prop Proposal, vix decimal.Decimal, regime domain.Regime, now time.Time) (ok bool, spread NewSpread, err error) {
	short, long, found := shortAndLong(p)
	if !found {
		return false, NewSpread{}, fmt.Errorf("roll: position %s missing short/long leg", p.ID)
	}

	newShortQuote, err := m.chain.FindQuote(ctx, p.Symbol, prop.NewExpiration, prop.NewShortStrike, short.OptionType)
	if err != nil {
		return false, NewSpread{}, fmt.Errorf("roll: find new short quote: %w", err)
	}
	newLongQuote, err := m.chain.FindQuote(ctx, p.Symbol, prop.NewExpiration, prop.NewLongStrike, long.OptionType)
	if err != nil {
		return false, NewSpread{}, fmt.Errorf("roll: find new long quote: %w", err)
	}

	newLegs := []domain.Leg{
		{ContractSymbol: newShortQuote.Symbol, ConID: newShortQuote.ConID, Action: domain.ActionSell, Strike: newShortQuote.Strike, OptionType: newShortQuote.Right, Expiration: newShortQuote.Expiration, Quantity: p.Contracts, EntryPrice: newShortQuote.Mid()},
		{ContractSymbol: newLongQuote.Symbol, ConID: newLongQuote.ConID, Action: domain.ActionBuy, Strike: newLongQuote.Strike, OptionType: newLongQuote.Right, Expiration: newLongQuote.Expiration, Quantity: p.Contracts, EntryPrice: newLongQuote.Mid()},
	}

	legs, err := orders.BuildRollCombo(p, newLegs)
	if err != nil {
		return false, NewSpread{}, fmt.Errorf("roll: build combo: %w", err)
	}

	netCredit := newShortQuote.Mid().Sub(newLongQuote.Mid()).Sub(short.EntryPrice.Sub(long.EntryPrice))
	action := domain.ActionSell
	limit := netCredit
	if limit.LessThan(decimal.NewFromFloat(-0.05)) {
		limit = decimal.NewFromFloat(-0.05)
	}
	limitF, _ := limit.Float64()

	_, filled, err := m.orderManager.SubmitAndAwaitFill(ctx, domain.TradeRoll, p.ID, p.Symbol, legs, p.Contracts, action, &limitF, vix, regime, now, abandonDeadline)
	if err != nil {
		return false, NewSpread{}, fmt.Errorf("roll: submit combo: %w", err)
	}
	if !filled {
		m.logger.Info("roll abandoned after deadline, falling back to original exit decision", zap.String("position_id", p.ID))
		return false, NewSpread{}, nil
	}
	return true, NewSpread{Legs: newLegs, Expiration: prop.NewExpiration, NetCredit: netCredit}, nil
}
