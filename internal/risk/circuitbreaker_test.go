package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeBreakerStore struct {
	active  *domain.CircuitBreakerEvent
	losing  []domain.Trade
	logged  []domain.CircuitBreakerEvent
	resetAt time.Time
	resetBy string
}

func (f *fakeBreakerStore) ActiveCircuitBreakerEvent(ctx context.Context) (*domain.CircuitBreakerEvent, error) {
	return f.active, nil
}

func (f *fakeBreakerStore) LogCircuitBreakerEvent(ctx context.Context, e domain.CircuitBreakerEvent) error {
	f.logged = append(f.logged, e)
	f.active = &e
	return nil
}

func (f *fakeBreakerStore) ResetCircuitBreaker(ctx context.Context, eventID string, resetAt time.Time, resetBy string) error {
	f.resetAt, f.resetBy = resetAt, resetBy
	f.active = nil
	return nil
}

func (f *fakeBreakerStore) RecentClosingTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if len(f.losing) > limit {
		return f.losing[:limit], nil
	}
	return f.losing, nil
}

func newID() string { return "cb-1" }

func TestCircuitBreakerCheckPassesWhenNotLatched(t *testing.T) {
	store := &fakeBreakerStore{}
	cb := NewCircuitBreaker(zap.NewNop(), store, newID, 3, decimal.NewFromFloat(0.05), decimal.NewFromInt(10000))
	if err := cb.Check(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCircuitBreakerCheckBlocksWhenActive(t *testing.T) {
	store := &fakeBreakerStore{active: &domain.CircuitBreakerEvent{ID: "1", TriggeredTS: time.Now(), Reason: domain.ReasonManual}}
	cb := NewCircuitBreaker(zap.NewNop(), store, newID, 3, decimal.NewFromFloat(0.05), decimal.NewFromInt(10000))
	if err := cb.Check(context.Background()); !errors.Is(err, apperr.ErrCircuitBreakerActive) {
		t.Fatalf("expected ErrCircuitBreakerActive, got %v", err)
	}
}

func TestCircuitBreakerTripsOnConsecutiveLosses(t *testing.T) {
	losses := []domain.Trade{
		{FillPrice: decimal.NewFromInt(-50)},
		{FillPrice: decimal.NewFromInt(-50)},
		{FillPrice: decimal.NewFromInt(-50)},
	}
	store := &fakeBreakerStore{losing: losses}
	cb := NewCircuitBreaker(zap.NewNop(), store, newID, 3, decimal.NewFromFloat(0.05), decimal.NewFromInt(10000))
	err := cb.EvaluateAfterClose(context.Background(), time.Now(), decimal.NewFromInt(-50))
	if !errors.Is(err, apperr.ErrCircuitBreakerActive) {
		t.Fatalf("expected trip, got %v", err)
	}
	if len(store.logged) != 1 || store.logged[0].Reason != domain.ReasonConsecutiveLosses {
		t.Fatalf("expected a logged consecutive-loss event, got %+v", store.logged)
	}
}

func TestCircuitBreakerDoesNotTripWhenAWinBreaksTheStreak(t *testing.T) {
	// Most recent 3 closes: loss, WIN, loss. A win anywhere in the
	// window breaks consecutiveness even though 2 of the 3 are losses.
	recent := []domain.Trade{
		{FillPrice: decimal.NewFromInt(-50)},
		{FillPrice: decimal.NewFromInt(75)},
		{FillPrice: decimal.NewFromInt(-50)},
	}
	store := &fakeBreakerStore{losing: recent}
	cb := NewCircuitBreaker(zap.NewNop(), store, newID, 3, decimal.NewFromFloat(0.05), decimal.NewFromInt(10000))
	err := cb.EvaluateAfterClose(context.Background(), time.Now(), decimal.NewFromInt(-50))
	if err != nil {
		t.Fatalf("expected no trip with a win in the recent window, got %v", err)
	}
}

func TestCircuitBreakerTripsOnDailyMaxLoss(t *testing.T) {
	store := &fakeBreakerStore{}
	cb := NewCircuitBreaker(zap.NewNop(), store, newID, 10, decimal.NewFromFloat(0.02), decimal.NewFromInt(10000))
	err := cb.EvaluateAfterClose(context.Background(), time.Now(), decimal.NewFromInt(-500))
	if !errors.Is(err, apperr.ErrCircuitBreakerActive) {
		t.Fatalf("expected trip on daily max loss, got %v", err)
	}
	if store.logged[0].Reason != domain.ReasonDailyMaxLoss {
		t.Fatalf("expected daily max loss reason, got %s", store.logged[0].Reason)
	}
}

func TestCircuitBreakerResetClearsActive(t *testing.T) {
	store := &fakeBreakerStore{active: &domain.CircuitBreakerEvent{ID: "1", TriggeredTS: time.Now(), Reason: domain.ReasonManual}}
	cb := NewCircuitBreaker(zap.NewNop(), store, newID, 3, decimal.NewFromFloat(0.05), decimal.NewFromInt(10000))
	if err := cb.Reset(context.Background(), "operator", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.active != nil {
		t.Fatalf("expected active event cleared")
	}
	if store.resetBy != "operator" {
		t.Fatalf("expected resetBy recorded, got %s", store.resetBy)
	}
}
