package risk

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/options-engine/internal/config"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/external"
	"github.com/atlas-desktop/options-engine/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		VIX: config.VIXThresholds{
			Low:    decimal.NewFromInt(15),
			Normal: decimal.NewFromInt(20),
			Panic:  decimal.NewFromInt(30),
		},
		Greeks: config.Greeks{
			CreditDeltaMin:   decimal.NewFromFloat(0.10),
			CreditDeltaMax:   decimal.NewFromFloat(0.30),
			DebitDeltaMin:    decimal.NewFromFloat(0.50),
			DebitDeltaMax:    decimal.NewFromFloat(0.80),
			MinDailyTheta:    decimal.NewFromFloat(0.01),
			MaxGamma:         decimal.NewFromFloat(0.50),
			MaxVegaPostVanna: decimal.NewFromInt(100),
			MaxBWDelta:       decimal.NewFromInt(50),
		},
		Liquidity: config.Liquidity{
			MaxBidAskSpread:     decimal.NewFromFloat(0.10),
			MinVolumeOIRatioPct: decimal.NewFromInt(1),
		},
		Safety:               config.Safety{EarningsBlackoutHours: 48},
		DividendBlackoutDays: 3,
	}
}

func creditProposal() *strategy.Proposal {
	exp := time.Now().AddDate(0, 0, 30)
	short := domain.OptionQuote{
		Symbol: "SPY240920C455", Strike: decimal.NewFromInt(455), Right: domain.OptionCall, Expiration: exp,
		Bid: decimal.NewFromFloat(1.20), Ask: decimal.NewFromFloat(1.25), Volume: 500, OpenInterest: 1000,
		Delta: decimal.NewFromFloat(0.18), Gamma: decimal.NewFromFloat(0.02), Theta: decimal.NewFromFloat(0.05), Vega: decimal.NewFromFloat(0.10),
		ImpliedVol: decimal.NewFromFloat(0.18),
	}
	long := domain.OptionQuote{
		Symbol: "SPY240920C460", Strike: decimal.NewFromInt(460), Right: domain.OptionCall, Expiration: exp,
		Bid: decimal.NewFromFloat(0.40), Ask: decimal.NewFromFloat(0.45), Volume: 400, OpenInterest: 900,
		Delta: decimal.NewFromFloat(0.08), Gamma: decimal.NewFromFloat(0.01), Theta: decimal.NewFromFloat(0.02), Vega: decimal.NewFromFloat(0.07),
		ImpliedVol: decimal.NewFromFloat(0.17),
	}
	return &strategy.Proposal{
		Strategy:   domain.StrategyVerticalCreditCall,
		Symbol:     "SPY",
		Expiration: exp,
		Contracts:  2,
		Legs: []strategy.Leg{
			{Quote: short, Action: domain.ActionSell},
			{Quote: long, Action: domain.ActionBuy},
		},
	}
}

func testChain(p *strategy.Proposal) strategy.Chain {
	quotes := make([]domain.OptionQuote, 0, len(p.Legs))
	for _, l := range p.Legs {
		quotes = append(quotes, l.Quote)
	}
	return strategy.Chain{Symbol: p.Symbol, Price: decimal.NewFromInt(455), Quotes: quotes}
}

func newPassingBreaker() *CircuitBreaker {
	store := &fakeBreakerStore{}
	return NewCircuitBreaker(zap.NewNop(), store, newID, 3, decimal.NewFromFloat(0.05), decimal.NewFromInt(10000))
}

func approvingAdvisor() *external.AdvisorResponse {
	return &external.AdvisorResponse{
		Verdict: domain.VerdictApprove, ShortStrike: 455, LongStrike: 460, Expiration: time.Now().AddDate(0, 0, 30).Format("2006-01-02"),
	}
}

func TestGatesApprovesCleanCreditSpread(t *testing.T) {
	g := NewGates(zap.NewNop(), newPassingBreaker(), testConfig(), nil)
	p := creditProposal()
	chain := testChain(p)
	mc := MarketContext{VIX: decimal.NewFromInt(18), TermStructure: domain.TermContango, Beta: 1.0, Spot: decimal.NewFromInt(455)}
	if rej := g.Evaluate(context.Background(), p, chain, mc, approvingAdvisor()); rej != nil {
		t.Fatalf("expected approval, got rejection: %s", rej.Error())
	}
}

func TestGatesRejectsCreditAtPanicVIX(t *testing.T) {
	g := NewGates(zap.NewNop(), newPassingBreaker(), testConfig(), nil)
	p := creditProposal()
	chain := testChain(p)
	mc := MarketContext{VIX: decimal.NewFromInt(35), TermStructure: domain.TermContango, Beta: 1.0, Spot: decimal.NewFromInt(455)}
	rej := g.Evaluate(context.Background(), p, chain, mc, approvingAdvisor())
	if rej == nil || rej.Gate != "vix" {
		t.Fatalf("expected vix gate rejection, got %v", rej)
	}
}

func TestGatesRejectsWideSpread(t *testing.T) {
	g := NewGates(zap.NewNop(), newPassingBreaker(), testConfig(), nil)
	p := creditProposal()
	p.Legs[0].Quote.Ask = decimal.NewFromFloat(5.00)
	chain := testChain(p)
	mc := MarketContext{VIX: decimal.NewFromInt(18), TermStructure: domain.TermContango, Beta: 1.0, Spot: decimal.NewFromInt(455)}
	rej := g.Evaluate(context.Background(), p, chain, mc, approvingAdvisor())
	if rej == nil || rej.Gate != "liquidity" {
		t.Fatalf("expected liquidity gate rejection, got %v", rej)
	}
}

func TestGatesRejectsWhenAdvisorUnavailable(t *testing.T) {
	g := NewGates(zap.NewNop(), newPassingBreaker(), testConfig(), nil)
	p := creditProposal()
	chain := testChain(p)
	mc := MarketContext{VIX: decimal.NewFromInt(18), TermStructure: domain.TermContango, Beta: 1.0, Spot: decimal.NewFromInt(455)}
	rej := g.Evaluate(context.Background(), p, chain, mc, nil)
	if rej == nil || rej.Gate != "ai_sanity" {
		t.Fatalf("expected ai_sanity gate rejection on nil advisor, got %v", rej)
	}
}

func TestEarningsBlackoutUsesRealSpotNotShortStrike(t *testing.T) {
	g := NewGates(zap.NewNop(), newPassingBreaker(), testConfig(), nil)
	p := creditProposal() // short strike at 455
	earnings := EarningsInfo{Upcoming: true, HoursUntil: decimal.NewFromInt(24), ExpectedMove: decimal.NewFromInt(3)}

	// Spot sitting right on the short strike: inside the expected move, must reject.
	atStrike := MarketContext{Earnings: earnings, Spot: decimal.NewFromInt(455)}
	if rej := g.earningsBlackout(p, atStrike); rej == nil {
		t.Fatalf("expected earnings_blackout rejection when spot is at the short strike")
	}

	// Spot well clear of the short strike: outside the expected move, must pass.
	// Using the short leg's own strike as a stand-in for spot (the old bug) would
	// have rejected this too, since deviation from itself is always zero.
	clear := MarketContext{Earnings: earnings, Spot: decimal.NewFromInt(500)}
	if rej := g.earningsBlackout(p, clear); rej != nil {
		t.Fatalf("expected no earnings_blackout rejection with spot clear of expected move, got %v", rej)
	}
}

func TestGatesRejectsExcessiveBetaWeightedDelta(t *testing.T) {
	g := NewGates(zap.NewNop(), newPassingBreaker(), testConfig(), nil)
	p := creditProposal()
	chain := testChain(p)
	mc := MarketContext{VIX: decimal.NewFromInt(18), TermStructure: domain.TermContango, Beta: 1.0, PortfolioBWDelta: decimal.NewFromInt(49), Spot: decimal.NewFromInt(455)}
	rej := g.Evaluate(context.Background(), p, chain, mc, approvingAdvisor())
	if rej == nil || rej.Gate != "beta_weighted_delta" {
		t.Fatalf("expected beta_weighted_delta rejection, got %v", rej)
	}
}
