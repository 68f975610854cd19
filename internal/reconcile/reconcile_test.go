package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeReconcileStore struct {
	open   []domain.Position
	closed map[string]domain.PositionStatus
}

func (f *fakeReconcileStore) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	var live []domain.Position
	for _, p := range f.open {
		if f.closed[p.ID] == "" {
			live = append(live, p)
		}
	}
	return live, nil
}

func (f *fakeReconcileStore) MarkPositionClosed(ctx context.Context, positionID string, status domain.PositionStatus, exitTS time.Time, exitPrice decimal.Decimal, reason domain.ExitReason, realizedPnL decimal.Decimal) error {
	if f.closed == nil {
		f.closed = make(map[string]domain.PositionStatus)
	}
	f.closed[positionID] = status
	return nil
}

type fakePortfolio struct {
	positions []broker.PortfolioPosition
}

func (f *fakePortfolio) Portfolio(ctx context.Context) ([]broker.PortfolioPosition, error) {
	return f.positions, nil
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestReconcileMarksMissingPositionClosedExternally(t *testing.T) {
	store := &fakeReconcileStore{open: []domain.Position{
		{ID: "pos-1", Symbol: "SPY", Legs: []domain.Leg{{ConID: 1}, {ConID: 2}}},
	}}
	pf := &fakePortfolio{} // broker reports nothing

	r := NewReconciler(zap.NewNop(), store, pf, fixedClock(time.Date(2026, 7, 29, 16, 0, 0, 0, time.UTC)))
	diff, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diff.ClosedExternally) != 1 || diff.ClosedExternally[0].ID != "pos-1" {
		t.Fatalf("expected pos-1 closed externally, got %+v", diff.ClosedExternally)
	}
	if store.closed["pos-1"] != domain.PositionClosedExternally {
		t.Fatalf("expected store to mark pos-1 CLOSED_EXTERNALLY, got %v", store.closed["pos-1"])
	}
}

func TestReconcileLeavesLivePositionsAlone(t *testing.T) {
	store := &fakeReconcileStore{open: []domain.Position{
		{ID: "pos-1", Symbol: "SPY", Legs: []domain.Leg{{ConID: 1}, {ConID: 2}}},
	}}
	pf := &fakePortfolio{positions: []broker.PortfolioPosition{{Symbol: "SPY", ConID: 1}}}

	r := NewReconciler(zap.NewNop(), store, pf, fixedClock(time.Now()))
	diff, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diff.ClosedExternally) != 0 {
		t.Fatalf("expected no positions closed, got %+v", diff.ClosedExternally)
	}
}

func TestReconcileReportsUnknownBrokerPositionsWithoutCreating(t *testing.T) {
	store := &fakeReconcileStore{}
	pf := &fakePortfolio{positions: []broker.PortfolioPosition{{Symbol: "AAPL", ConID: 99}}}

	r := NewReconciler(zap.NewNop(), store, pf, fixedClock(time.Now()))
	diff, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diff.UnknownInBroker) != 1 || diff.UnknownInBroker[0].ConID != 99 {
		t.Fatalf("expected unknown broker position reported, got %+v", diff.UnknownInBroker)
	}
	if len(store.open) != 0 {
		t.Fatalf("reconcile must never create store positions")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := &fakeReconcileStore{open: []domain.Position{
		{ID: "pos-1", Symbol: "SPY", Legs: []domain.Leg{{ConID: 1}}},
	}}
	pf := &fakePortfolio{}

	r := NewReconciler(zap.NewNop(), store, pf, fixedClock(time.Now()))
	first, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.ClosedExternally) != 1 {
		t.Fatalf("expected first pass to close pos-1")
	}

	second, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.ClosedExternally) != 0 {
		t.Fatalf("expected second pass to find nothing new, got %+v", second.ClosedExternally)
	}
}
