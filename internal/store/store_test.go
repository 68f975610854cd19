package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop())
}

func samplePosition() domain.Position {
	return domain.Position{
		ID:          "pos-1",
		Symbol:      "SPY",
		Strategy:    domain.StrategyVerticalCreditCall,
		EntryTS:     time.Now().UTC(),
		Expiration:  time.Now().UTC().AddDate(0, 0, 35),
		Contracts:   1,
		EntryCredit: money.NewCredit(decimal.NewFromFloat(0.625)),
		EntryDebit:  money.ZeroDebit,
		MaxRisk:     decimal.NewFromInt(437),
		Status:      domain.PositionOpen,
		VIXEntry:    decimal.NewFromFloat(18.5),
		RegimeEntry: domain.RegimeLowVolNeutral,
		Legs: []domain.Leg{
			{PositionID: "pos-1", ContractSymbol: "SPY 455C", ConID: 1, Action: domain.ActionSell,
				Strike: decimal.NewFromInt(455), OptionType: domain.OptionCall,
				Expiration: time.Now().UTC().AddDate(0, 0, 35), Quantity: 1, EntryPrice: decimal.NewFromFloat(1.10)},
			{PositionID: "pos-1", ContractSymbol: "SPY 460C", ConID: 2, Action: domain.ActionBuy,
				Strike: decimal.NewFromInt(460), OptionType: domain.OptionCall,
				Expiration: time.Now().UTC().AddDate(0, 0, 35), Quantity: 1, EntryPrice: decimal.NewFromFloat(0.50)},
		},
	}
}

func TestCreateAndQueryOpenPositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := samplePosition()

	if err := s.CreatePosition(ctx, p); err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	open, err := s.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if len(open[0].Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(open[0].Legs))
	}
	if !open[0].EntryCredit.Decimal().Equal(decimal.NewFromFloat(0.625)) {
		t.Fatalf("entry credit mismatch: %v", open[0].EntryCredit.Decimal())
	}
}

func TestMarkPositionClosedRemovesFromOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := samplePosition()
	if err := s.CreatePosition(ctx, p); err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	reason := domain.ExitTimeExit
	if err := s.MarkPositionClosed(ctx, p.ID, domain.PositionClosed, time.Now(), decimal.NewFromFloat(0.2), reason, decimal.NewFromFloat(42.5)); err != nil {
		t.Fatalf("MarkPositionClosed: %v", err)
	}

	open, err := s.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected 0 open positions after close, got %d", len(open))
	}
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.ActiveCircuitBreakerEvent(ctx)
	if err != nil {
		t.Fatalf("ActiveCircuitBreakerEvent: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active event initially, got %+v", active)
	}

	event := domain.CircuitBreakerEvent{
		ID:             "cb-1",
		TriggeredTS:    time.Now().UTC(),
		Reason:         domain.ReasonConsecutiveLosses,
		ThresholdValue: decimal.NewFromInt(3),
	}
	if err := s.LogCircuitBreakerEvent(ctx, event); err != nil {
		t.Fatalf("LogCircuitBreakerEvent: %v", err)
	}

	active, err = s.ActiveCircuitBreakerEvent(ctx)
	if err != nil {
		t.Fatalf("ActiveCircuitBreakerEvent: %v", err)
	}
	if active == nil || !active.Active() {
		t.Fatalf("expected an active circuit breaker event")
	}

	if err := s.ResetCircuitBreaker(ctx, "cb-1", time.Now().UTC(), "operator"); err != nil {
		t.Fatalf("ResetCircuitBreaker: %v", err)
	}

	active, err = s.ActiveCircuitBreakerEvent(ctx)
	if err != nil {
		t.Fatalf("ActiveCircuitBreakerEvent: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active event after reset, got %+v", active)
	}
}

func TestRecentClosingTradesOrdersByRecencyAndExcludesOtherKinds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(id string, kind domain.TradeKind, fill float64, at time.Time) domain.Trade {
		return domain.Trade{
			ID: id, PositionID: "pos-1", Kind: kind, Symbol: "SPY", Status: domain.OrderFilled,
			RequestedQty: 1, FilledQty: 1, FillPrice: decimal.NewFromFloat(fill),
			VIXAtEntry: decimal.NewFromFloat(18.5), RegimeAtEntry: domain.RegimeLowVolNeutral,
			SubmittedAt: at,
		}
	}
	base := time.Now().UTC().Add(-time.Hour)
	trades := []domain.Trade{
		mk("t-open", domain.TradeOpen, 0.625, base),               // excluded: not a close
		mk("t-close-1", domain.TradeClose, -50, base.Add(time.Minute)),
		mk("t-close-2", domain.TradeClose, 75, base.Add(2*time.Minute)),
		mk("t-close-3", domain.TradeClose, -50, base.Add(3*time.Minute)),
	}
	for _, tr := range trades {
		if err := s.LogTrade(ctx, tr); err != nil {
			t.Fatalf("LogTrade(%s): %v", tr.ID, err)
		}
	}

	recent, err := s.RecentClosingTrades(ctx, 2)
	if err != nil {
		t.Fatalf("RecentClosingTrades: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent closes, got %d", len(recent))
	}
	if recent[0].ID != "t-close-3" || recent[1].ID != "t-close-2" {
		t.Fatalf("expected most-recent-first [t-close-3, t-close-2], got [%s, %s]", recent[0].ID, recent[1].ID)
	}
}

func TestShadowTradeOutcomeUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := domain.ShadowTrade{
		ID:         "shadow-1",
		Symbol:     "SPY",
		Strategy:   domain.StrategyVerticalCreditCall,
		RejectedAt: time.Now().UTC(),
		RejectedBy: "ai_sanity_check",
		Reason:     "strike NOT FOUND in option chain",
		Features:   map[string]string{"short_strike": "500.0"},
		Expiration: time.Now().UTC().AddDate(0, 0, 35),
		Outcome:    domain.ShadowPending,
	}
	if err := s.LogShadowTrade(ctx, st); err != nil {
		t.Fatalf("LogShadowTrade: %v", err)
	}

	pending, err := s.PendingShadowTrades(ctx)
	if err != nil {
		t.Fatalf("PendingShadowTrades: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending shadow trade, got %d", len(pending))
	}

	if err := s.UpdateShadowOutcome(ctx, "shadow-1", domain.ShadowGoodReject, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateShadowOutcome: %v", err)
	}

	pending, err = s.PendingShadowTrades(ctx)
	if err != nil {
		t.Fatalf("PendingShadowTrades: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected 0 pending shadow trades after outcome update, got %d", len(pending))
	}
}
