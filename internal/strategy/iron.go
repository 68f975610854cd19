package strategy

import (
	"fmt"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IronCondorBuilder builds call-side and put-side credit verticals
// independently and combines them (SPEC_FULL.md §4.9): rejects if the
// two sides land on different expirations; contracts is the min of
// both sides; total credit is their sum.
type IronCondorBuilder struct {
	logger *zap.Logger
	calls  *VerticalCreditBuilder
	puts   *VerticalCreditBuilder
}

func NewIronCondorBuilder(logger *zap.Logger) *IronCondorBuilder {
	return &IronCondorBuilder{
		logger: logger.Named("strategy.iron_condor"),
		calls:  NewVerticalCreditBuilder(logger, domain.StrategyVerticalCreditCall),
		puts:   NewVerticalCreditBuilder(logger, domain.StrategyVerticalCreditPut),
	}
}

func (b *IronCondorBuilder) Kind() domain.StrategyKind { return domain.StrategyIronCondor }

func (b *IronCondorBuilder) Build(chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error) {
	callSide, err := b.calls.Build(chain, bounds, sizing, width)
	if err != nil {
		return nil, fmt.Errorf("strategy: iron condor call side: %w", err)
	}
	putSide, err := b.puts.Build(chain, bounds, sizing, width)
	if err != nil {
		return nil, fmt.Errorf("strategy: iron condor put side: %w", err)
	}
	if !callSide.Expiration.Equal(putSide.Expiration) {
		return nil, fmt.Errorf("strategy: iron condor call/put sides have different expirations")
	}

	contracts := callSide.Contracts
	if putSide.Contracts < contracts {
		contracts = putSide.Contracts
	}
	if contracts <= 0 {
		return nil, fmt.Errorf("strategy: iron condor sized to zero contracts")
	}

	credit := money.NewCredit(callSide.Credit.Decimal().Add(putSide.Credit.Decimal()))
	return &Proposal{
		Strategy:   domain.StrategyIronCondor,
		Symbol:     chain.Symbol,
		Expiration: callSide.Expiration,
		Contracts:  contracts,
		Credit:     credit,
		Width:      width,
		Score:      credit.Decimal().Mul(decimal.NewFromInt(int64(contracts))),
		Legs:       append(append([]Leg{}, callSide.Legs...), putSide.Legs...),
	}, nil
}

// IronButterflyBuilder builds an ATM short straddle with protective
// OTM wings at +/-width (SPEC_FULL.md §4.9); the credit estimate is
// 40% of width, since the at-the-money straddle premium is not
// directly observable from the vertical-spread math the credit
// builder exposes.
type IronButterflyBuilder struct {
	logger *zap.Logger
}

func NewIronButterflyBuilder(logger *zap.Logger) *IronButterflyBuilder {
	return &IronButterflyBuilder{logger: logger.Named("strategy.iron_butterfly")}
}

func (b *IronButterflyBuilder) Kind() domain.StrategyKind { return domain.StrategyIronButterfly }

func (b *IronButterflyBuilder) Build(chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error) {
	atmCall, ok := nearestStrike(chain, domain.OptionCall, chain.Price)
	if !ok {
		return nil, fmt.Errorf("strategy: iron butterfly: no ATM call in chain")
	}
	atmPut, ok := findByStrike(chain, domain.OptionPut, atmCall.Strike)
	if !ok {
		return nil, fmt.Errorf("strategy: iron butterfly: no matching ATM put strike %s", atmCall.Strike)
	}
	wingCall, ok := findByStrike(chain, domain.OptionCall, atmCall.Strike.Add(width))
	if !ok {
		return nil, fmt.Errorf("strategy: iron butterfly: no call wing at width %s", width)
	}
	wingPut, ok := findByStrike(chain, domain.OptionPut, atmPut.Strike.Sub(width))
	if !ok {
		return nil, fmt.Errorf("strategy: iron butterfly: no put wing at width %s", width)
	}
	if !atmCall.Expiration.Equal(atmPut.Expiration) {
		return nil, fmt.Errorf("strategy: iron butterfly: call/put expirations differ")
	}

	creditEstimate := width.Mul(decimal.NewFromFloat(0.40))
	riskPerContract := width.Sub(creditEstimate).Mul(decimal.NewFromInt(100))
	contracts := SizeContracts(sizing, riskPerContract, width)
	if contracts <= 0 {
		return nil, fmt.Errorf("strategy: iron butterfly sized to zero contracts")
	}

	credit := money.NewCredit(creditEstimate)
	return &Proposal{
		Strategy:   domain.StrategyIronButterfly,
		Symbol:     chain.Symbol,
		Expiration: atmCall.Expiration,
		Contracts:  contracts,
		Credit:     credit,
		Width:      width,
		Score:      credit.Decimal().Mul(decimal.NewFromInt(int64(contracts))),
		Legs: []Leg{
			{Quote: atmCall, Action: domain.ActionSell},
			{Quote: atmPut, Action: domain.ActionSell},
			{Quote: wingCall, Action: domain.ActionBuy},
			{Quote: wingPut, Action: domain.ActionBuy},
		},
	}, nil
}

// CalendarBuilder builds a same-strike calendar: sell the near-term
// leg, buy the far-term leg at the same strike (SPEC_FULL.md §4.9);
// net debit, with max profit bounded by a width-analog of the
// near-term leg's remaining time value.
type CalendarBuilder struct {
	logger *zap.Logger
}

func NewCalendarBuilder(logger *zap.Logger) *CalendarBuilder {
	return &CalendarBuilder{logger: logger.Named("strategy.calendar")}
}

func (b *CalendarBuilder) Kind() domain.StrategyKind { return domain.StrategyCalendar }

// Build requires chain.Quotes to span two expirations at the
// strategy's chosen strike; the near leg is whichever quote expires
// first, the far leg the other, both resolved by findByStrike against
// a shared ATM strike.
func (b *CalendarBuilder) Build(chain Chain, bounds GreeksBounds, sizing SizingInputs, width decimal.Decimal) (*Proposal, error) {
	atmCall, ok := nearestStrike(chain, domain.OptionCall, chain.Price)
	if !ok {
		return nil, fmt.Errorf("strategy: calendar: no ATM call in chain")
	}
	strike := atmCall.Strike

	var near, far *domain.OptionQuote
	for i := range chain.Quotes {
		q := chain.Quotes[i]
		if q.Right != domain.OptionCall || !q.Strike.Equal(strike) {
			continue
		}
		if near == nil || q.Expiration.Before(near.Expiration) {
			far = near
			near = &chain.Quotes[i]
		} else if far == nil || q.Expiration.Before(far.Expiration) {
			far = &chain.Quotes[i]
		}
	}
	if near == nil || far == nil || near.Expiration.Equal(far.Expiration) {
		return nil, fmt.Errorf("strategy: calendar: strike %s does not have two distinct expirations in chain", strike)
	}

	debitAmt := far.Mid().Sub(near.Mid())
	if debitAmt.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("strategy: calendar: non-positive net debit")
	}

	riskPerContract := debitAmt.Mul(decimal.NewFromInt(100))
	contracts := SizeContracts(sizing, riskPerContract, width)
	if contracts <= 0 {
		return nil, fmt.Errorf("strategy: calendar sized to zero contracts")
	}

	maxProfit := width.Sub(debitAmt)
	if maxProfit.IsNegative() {
		maxProfit = decimal.Zero
	}

	return &Proposal{
		Strategy:   domain.StrategyCalendar,
		Symbol:     chain.Symbol,
		Expiration: near.Expiration,
		Contracts:  contracts,
		Debit:      money.NewDebit(debitAmt),
		Width:      width,
		Score:      maxProfit.Mul(decimal.NewFromInt(int64(contracts))),
		Legs: []Leg{
			{Quote: *near, Action: domain.ActionSell},
			{Quote: *far, Action: domain.ActionBuy},
		},
	}, nil
}

// nearestStrike returns the quote of the given right whose strike is
// closest to target.
func nearestStrike(chain Chain, right domain.OptionType, target decimal.Decimal) (domain.OptionQuote, bool) {
	var best domain.OptionQuote
	var bestDist decimal.Decimal
	found := false
	for _, q := range chain.Quotes {
		if q.Right != right {
			continue
		}
		dist := absDecimal(q.Strike.Sub(target))
		if !found || dist.LessThan(bestDist) {
			best, bestDist, found = q, dist, true
		}
	}
	return best, found
}
