// Package external provides the rate-limited clients for AI advisors,
// news, prediction markets and the dividend source (SPEC_FULL.md §4.5).
// Each carries a per-UTC-day USD budget and request counter; crossing
// the budget enters silent mode until the UTC-midnight reset.
package external

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Budget tracks one client's per-UTC-day spend and request count
// against a fixed daily limit. Grounded on the teacher's counters-
// under-mutex idiom in internal/execution/risk_manager.go, generalized
// from trade counts to request/cost counts; the UTC-midnight reset is
// grounded on other_examples' risk-gate.go checkDayReset pattern.
type Budget struct {
	mu            sync.Mutex
	logger        *zap.Logger
	name          string
	dailyLimitUSD float64
	spentUSD      float64
	requestCount  int
	dayOfYear     int
}

// NewBudget constructs a budget tracker for one named client.
func NewBudget(logger *zap.Logger, name string, dailyLimitUSD float64) *Budget {
	return &Budget{
		logger:        logger.Named("external." + name),
		name:          name,
		dailyLimitUSD: dailyLimitUSD,
		dayOfYear:     time.Now().UTC().YearDay(),
	}
}

// CanRequest reports whether the client may still issue a request
// today; it returns false once the daily USD budget is exhausted
// (silent mode) and clears automatically across a UTC day boundary.
func (b *Budget) CanRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNewDayLocked()
	return b.spentUSD < b.dailyLimitUSD
}

// RecordUsage logs one call's cost and increments the request count.
func (b *Budget) RecordUsage(costUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNewDayLocked()
	b.spentUSD += costUSD
	b.requestCount++
	b.logger.Info("external client usage",
		zap.String("client", b.name),
		zap.Float64("cost_usd", costUSD),
		zap.Float64("spent_today_usd", b.spentUSD),
		zap.Int("requests_today", b.requestCount),
		zap.Bool("silent_mode", b.spentUSD >= b.dailyLimitUSD))
}

func (b *Budget) resetIfNewDayLocked() {
	today := time.Now().UTC().YearDay()
	if today != b.dayOfYear {
		b.dayOfYear = today
		b.spentUSD = 0
		b.requestCount = 0
	}
}

// SilentMode reports whether the budget is currently exhausted.
func (b *Budget) SilentMode() bool { return !b.CanRequest() }
