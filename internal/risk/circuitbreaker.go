// Package risk implements the nine ordered risk gates every proposed
// trade must clear (SPEC_FULL.md §4.10), plus the circuit breaker
// every entry and close path consults. Grounded on the teacher's
// internal/execution/risk_manager.go ordered-checks-returning-a-
// reason-tag shape and other_examples' polybot risk-gate.go
// consecutive-loss/daily-loss circuit breaker (its zerolog dependency
// is dropped for the teacher's zap, per the stack-preservation rule).
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the narrow persistence slice the circuit breaker needs.
type Store interface {
	ActiveCircuitBreakerEvent(ctx context.Context) (*domain.CircuitBreakerEvent, error)
	LogCircuitBreakerEvent(ctx context.Context, e domain.CircuitBreakerEvent) error
	ResetCircuitBreaker(ctx context.Context, eventID string, resetAt time.Time, resetBy string) error
	RecentClosingTrades(ctx context.Context, limit int) ([]domain.Trade, error)
}

// IDGenerator abstracts id minting so the circuit breaker doesn't
// import a concrete id library itself; callers wire uuid.NewString.
type IDGenerator func() string

// CircuitBreaker latches on consecutive losses or daily max loss and
// blocks every entry path until an explicit reset (SPEC_FULL.md §4.10
// item 1, §8).
type CircuitBreaker struct {
	logger               *zap.Logger
	store                Store
	newID                IDGenerator
	consecutiveLossLimit int
	dailyMaxLossPct      decimal.Decimal
	accountSize          decimal.Decimal
}

func NewCircuitBreaker(logger *zap.Logger, store Store, newID IDGenerator, consecutiveLossLimit int, dailyMaxLossPct, accountSize decimal.Decimal) *CircuitBreaker {
	return &CircuitBreaker{
		logger:               logger.Named("risk.circuit_breaker"),
		store:                store,
		newID:                newID,
		consecutiveLossLimit: consecutiveLossLimit,
		dailyMaxLossPct:      dailyMaxLossPct,
		accountSize:          accountSize,
	}
}

// Check returns ErrCircuitBreakerActive if an event is already
// latched, never surfaced beyond the pipeline as anything but a
// rejection reason (SPEC_FULL.md §7).
func (c *CircuitBreaker) Check(ctx context.Context) error {
	active, err := c.store.ActiveCircuitBreakerEvent(ctx)
	if err != nil {
		return fmt.Errorf("risk: circuit breaker lookup: %w", err)
	}
	if active != nil && active.Active() {
		return apperr.ErrCircuitBreakerActive
	}
	return nil
}

// EvaluateAfterClose re-checks consecutive-loss and daily-loss
// triggers after a position closes, and trips the breaker if either
// fires. Called after every close per SPEC_FULL.md §2.
func (c *CircuitBreaker) EvaluateAfterClose(ctx context.Context, now time.Time, realizedDailyPnL decimal.Decimal) error {
	if c.checkConsecutiveLosses(ctx) {
		return c.trip(ctx, now, domain.ReasonConsecutiveLosses, decimal.NewFromInt(int64(c.consecutiveLossLimit)))
	}
	threshold := c.dailyMaxLossPct.Mul(c.accountSize).Neg()
	if realizedDailyPnL.LessThanOrEqual(threshold) {
		return c.trip(ctx, now, domain.ReasonDailyMaxLoss, threshold)
	}
	return nil
}

// checkConsecutiveLosses reports whether the most recent
// consecutive_loss_limit closed trades are all losses (SPEC_FULL.md
// §8's check_consecutive_losses()). A win anywhere in that recent
// window breaks the streak, so this inspects the last N closes
// regardless of outcome rather than the last N losses.
func (c *CircuitBreaker) checkConsecutiveLosses(ctx context.Context) bool {
	recent, err := c.store.RecentClosingTrades(ctx, c.consecutiveLossLimit)
	if err != nil {
		c.logger.Warn("consecutive-loss lookup failed", zap.Error(err))
		return false
	}
	if len(recent) < c.consecutiveLossLimit {
		return false
	}
	for _, t := range recent {
		if !t.FillPrice.IsNegative() {
			return false
		}
	}
	return true
}

func (c *CircuitBreaker) trip(ctx context.Context, now time.Time, reason domain.CircuitBreakerReason, threshold decimal.Decimal) error {
	event := domain.CircuitBreakerEvent{
		ID:             c.newID(),
		TriggeredTS:    now,
		Reason:         reason,
		ThresholdValue: threshold,
	}
	if err := c.store.LogCircuitBreakerEvent(ctx, event); err != nil {
		return fmt.Errorf("risk: log circuit breaker event: %w", err)
	}
	c.logger.Warn("circuit breaker tripped", zap.String("reason", string(reason)), zap.String("threshold", threshold.String()))
	return apperr.ErrCircuitBreakerActive
}

// Reset clears the active event; reason MANUAL trips are also cleared
// through this path, by an operator.
func (c *CircuitBreaker) Reset(ctx context.Context, resetBy string, now time.Time) error {
	active, err := c.store.ActiveCircuitBreakerEvent(ctx)
	if err != nil {
		return fmt.Errorf("risk: circuit breaker lookup: %w", err)
	}
	if active == nil {
		return nil
	}
	return c.store.ResetCircuitBreaker(ctx, active.ID, now, resetBy)
}

// TripManual records an operator-initiated MANUAL trip.
func (c *CircuitBreaker) TripManual(ctx context.Context, now time.Time) error {
	return c.trip(ctx, now, domain.ReasonManual, decimal.Zero)
}
