package strategy

import (
	"fmt"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// VerticalCreditBuilder builds credit call or credit put spreads:
// iterate OTM short legs passing Greeks validation, pair each with a
// long leg one width further OTM in the same expiry, reject
// non-positive or width-exceeding credit, size, and return the
// highest-scoring candidate.
type VerticalCreditBuilder struct {
	logger *zap.Logger
	kind   domain.StrategyKind
}

func NewVerticalCreditBuilder(logger *zap.Logger, kind domain.StrategyKind) *VerticalCreditBuilder {
	return &VerticalCreditBuilder{logger: logger.Named("strategy.vertical_credit"), kind: kind}
}

func (b *VerticalCreditBuilder) Kind() domain.StrategyKind { return b.kind }

func (b *VerticalCreditBuilder) right() domain.OptionType {
	if b.kind == domain.StrategyVerticalCreditCall {
		return domain.OptionCall
	}
	return domain.OptionPut
}

func (b *VerticalCreditBuilder) Build(chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error) {
	right := b.right()
	var best *Proposal

	for _, short := range chain.Quotes {
		if short.Right != right {
			continue
		}
		if !passesCreditGreeks(short, bounds) {
			continue
		}

		longStrike := longStrikeFor(b.kind, short.Strike, width)
		long, ok := findByStrike(chain, right, longStrike)
		if !ok {
			continue // spread width does not correspond to a traded strike
		}

		credit := short.Mid().Sub(long.Mid())
		if credit.LessThanOrEqual(decimal.Zero) || credit.GreaterThanOrEqual(width) {
			continue
		}

		riskPerContract := width.Sub(credit).Mul(decimal.NewFromInt(100))
		contracts := SizeContracts(sizing, riskPerContract, width)
		if contracts <= 0 {
			continue
		}

		c := money.NewCredit(credit)
		score := credit.Mul(decimal.NewFromInt(int64(contracts)))

		candidate := &Proposal{
			Strategy:   b.kind,
			Symbol:     chain.Symbol,
			Expiration: short.Expiration,
			Contracts:  contracts,
			Credit:     c,
			Width:      width,
			Score:      score,
			Legs: []Leg{
				{Quote: short, Action: domain.ActionSell},
				{Quote: long, Action: domain.ActionBuy},
			},
		}
		if best == nil || candidate.Score.GreaterThan(best.Score) {
			best = candidate
		}
	}

	if best == nil {
		return nil, fmt.Errorf("strategy: no valid %s candidate in chain", b.kind)
	}
	return best, nil
}

// longStrikeFor returns the long-leg strike, one width further OTM
// than the short strike: above for credit calls, below for credit
// puts.
func longStrikeFor(kind domain.StrategyKind, shortStrike, width decimal.Decimal) decimal.Decimal {
	if kind == domain.StrategyVerticalCreditCall {
		return shortStrike.Add(width)
	}
	return shortStrike.Sub(width)
}

func passesCreditGreeks(q domain.OptionQuote, bounds GreeksBounds) bool {
	absDelta := absDecimal(q.Delta)
	return absDelta.GreaterThanOrEqual(bounds.CreditDeltaMin) && absDelta.LessThanOrEqual(bounds.CreditDeltaMax)
}

// VerticalDebitBuilder builds debit call or debit put spreads: buy
// the near-the-money leg, sell the leg one width further OTM, same
// expiry, satisfying the debit Δ band.
type VerticalDebitBuilder struct {
	logger *zap.Logger
	kind   domain.StrategyKind
}

func NewVerticalDebitBuilder(logger *zap.Logger, kind domain.StrategyKind) *VerticalDebitBuilder {
	return &VerticalDebitBuilder{logger: logger.Named("strategy.vertical_debit"), kind: kind}
}

func (b *VerticalDebitBuilder) Kind() domain.StrategyKind { return b.kind }

func (b *VerticalDebitBuilder) right() domain.OptionType {
	if b.kind == domain.StrategyVerticalDebitCall {
		return domain.OptionCall
	}
	return domain.OptionPut
}

func (b *VerticalDebitBuilder) Build(chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error) {
	right := b.right()
	var best *Proposal

	for _, long := range chain.Quotes {
		if long.Right != right {
			continue
		}
		absDelta := absDecimal(long.Delta)
		if absDelta.LessThan(bounds.DebitDeltaMin) || absDelta.GreaterThan(bounds.DebitDeltaMax) {
			continue
		}

		shortStrike := longStrikeFor(oppositeDebitKind(b.kind), long.Strike, width)
		short, ok := findByStrike(chain, right, shortStrike)
		if !ok {
			continue
		}

		debitAmt := long.Mid().Sub(short.Mid())
		if debitAmt.LessThanOrEqual(decimal.Zero) || debitAmt.GreaterThanOrEqual(width) {
			continue
		}

		riskPerContract := debitAmt.Mul(decimal.NewFromInt(100))
		contracts := SizeContracts(sizing, riskPerContract, width)
		if contracts <= 0 {
			continue
		}

		d := money.NewDebit(debitAmt)
		maxProfit := width.Sub(debitAmt).Mul(decimal.NewFromInt(int64(contracts)))

		candidate := &Proposal{
			Strategy:   b.kind,
			Symbol:     chain.Symbol,
			Expiration: long.Expiration,
			Contracts:  contracts,
			Debit:      d,
			Width:      width,
			Score:      maxProfit,
			Legs: []Leg{
				{Quote: long, Action: domain.ActionBuy},
				{Quote: short, Action: domain.ActionSell},
			},
		}
		if best == nil || candidate.Score.GreaterThan(best.Score) {
			best = candidate
		}
	}

	if best == nil {
		return nil, fmt.Errorf("strategy: no valid %s candidate in chain", b.kind)
	}
	return best, nil
}

// oppositeDebitKind reuses longStrikeFor's credit-style width
// direction by mapping a debit kind onto the matching credit kind's
// strike-offset direction (call spreads widen upward, put spreads
// widen downward, regardless of net credit/debit).
func oppositeDebitKind(kind domain.StrategyKind) domain.StrategyKind {
	if kind == domain.StrategyVerticalDebitCall {
		return domain.StrategyVerticalCreditCall
	}
	return domain.StrategyVerticalCreditPut
}
