package risk

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// fallbackBeta is used whenever 252-day history is unavailable or too
// short to compute a meaningful covariance (SPEC_FULL.md §4.10 item 8).
const fallbackBeta = 1.0

// GonumBetaSource computes beta against SPY from 252 trading days of
// daily returns using gonum/stat's Covariance/Variance, falling back
// to 1.0 when a fetch fails, history is too short or SPY's variance is
// zero. The broker's reported beta fundamental is not consulted.
// Grounded on the teacher's use of gonum.org/v1/gonum/stat elsewhere in
// the pack for portfolio statistics; this is the one component
// DESIGN.md earmarked that dependency for.
type GonumBetaSource struct {
	logger *zap.Logger
	broker broker.Broker
	spy    broker.QualifiedContract
}

func NewGonumBetaSource(logger *zap.Logger, b broker.Broker, spy broker.QualifiedContract) *GonumBetaSource {
	return &GonumBetaSource{logger: logger.Named("risk.beta"), broker: b, spy: spy}
}

// Beta resolves symbol's beta against SPY, satisfying the BetaSource
// interface gates.go consumes.
func (g *GonumBetaSource) Beta(ctx context.Context, symbol string) (float64, error) {
	qc, err := g.broker.Qualify(ctx, broker.Contract{Symbol: symbol})
	if err != nil {
		return fallbackBeta, fmt.Errorf("risk: qualify %s for beta: %w", symbol, err)
	}
	symBars, err := g.broker.HistoricalBars(ctx, qc, "1 Y", "1 day")
	if err != nil {
		return fallbackBeta, fmt.Errorf("risk: beta history for %s: %w", symbol, err)
	}
	spyBars, err := g.broker.HistoricalBars(ctx, g.spy, "1 Y", "1 day")
	if err != nil {
		return fallbackBeta, fmt.Errorf("risk: beta history for SPY: %w", err)
	}

	symReturns := dailyReturns(symBars)
	spyReturns := dailyReturns(spyBars)
	n := len(symReturns)
	if len(spyReturns) < n {
		n = len(spyReturns)
	}
	if n > 252 {
		symReturns = symReturns[n-252:]
		spyReturns = spyReturns[n-252:]
		n = 252
	}
	if n < 20 {
		g.logger.Debug("insufficient history for beta, using fallback", zap.String("symbol", symbol), zap.Int("days", n))
		return fallbackBeta, nil
	}
	symReturns = symReturns[:n]
	spyReturns = spyReturns[:n]

	variance := stat.Variance(spyReturns, nil)
	if variance == 0 {
		return fallbackBeta, nil
	}
	covariance := stat.Covariance(symReturns, spyReturns, nil)
	return covariance / variance, nil
}

func dailyReturns(bars []broker.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	return returns
}
