package position

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeSnapshotBroker struct {
	quotes map[int64]domain.OptionQuote
}

func (f *fakeSnapshotBroker) Connect(ctx context.Context) error         { return nil }
func (f *fakeSnapshotBroker) Disconnect(ctx context.Context) error      { return nil }
func (f *fakeSnapshotBroker) EnsureConnected(ctx context.Context) error { return nil }
func (f *fakeSnapshotBroker) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	return domain.AccountSummary{}, nil
}
func (f *fakeSnapshotBroker) Qualify(ctx context.Context, c broker.Contract) (broker.QualifiedContract, error) {
	return broker.QualifiedContract{}, nil
}
func (f *fakeSnapshotBroker) Snapshot(ctx context.Context, c broker.QualifiedContract) (domain.OptionQuote, error) {
	return f.quotes[c.ConID], nil
}
func (f *fakeSnapshotBroker) PlaceCombo(ctx context.Context, legs []broker.ComboLeg, order broker.ComboOrderRequest) (broker.TradeHandle, error) {
	return broker.TradeHandle{}, nil
}
func (f *fakeSnapshotBroker) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeSnapshotBroker) OpenOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	return nil, nil
}
func (f *fakeSnapshotBroker) Portfolio(ctx context.Context) ([]broker.PortfolioPosition, error) {
	return nil, nil
}
func (f *fakeSnapshotBroker) HistoricalBars(ctx context.Context, c broker.QualifiedContract, duration, barSize string) ([]broker.Bar, error) {
	return nil, nil
}
func (f *fakeSnapshotBroker) FundamentalXML(ctx context.Context, c broker.QualifiedContract, report string) (string, error) {
	return "", nil
}
func (f *fakeSnapshotBroker) TreasuryYield(ctx context.Context) (float64, error) { return 0.045, nil }

func TestTrackerRefreshSignsLegsByAction(t *testing.T) {
	b := &fakeSnapshotBroker{quotes: map[int64]domain.OptionQuote{
		1: {Bid: decimal.NewFromFloat(1.15), Ask: decimal.NewFromFloat(1.25)},
		2: {Bid: decimal.NewFromFloat(0.35), Ask: decimal.NewFromFloat(0.45)},
	}}
	tr := NewTracker(zap.NewNop(), b)

	p := domain.Position{
		Symbol:    "SPY",
		Contracts: 1,
		Legs: []domain.Leg{
			{ContractSymbol: "short", ConID: 1, Action: domain.ActionSell, Quantity: 1, Expiration: time.Now()},
			{ContractSymbol: "long", ConID: 2, Action: domain.ActionBuy, Quantity: 1, Expiration: time.Now()},
		},
	}

	legValues, err := tr.Refresh(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(legValues) != 2 {
		t.Fatalf("expected 2 leg values, got %d", len(legValues))
	}
	if !legValues[0].MarketValue.IsNegative() {
		t.Fatalf("expected short leg market value negative, got %s", legValues[0].MarketValue)
	}
	if !legValues[1].MarketValue.IsPositive() {
		t.Fatalf("expected long leg market value positive, got %s", legValues[1].MarketValue)
	}

	fv := FairValue(legValues, p.Contracts)
	if !fv.IsPositive() {
		t.Fatalf("expected positive fair value (net close-debit) for net-short structure, got %s", fv)
	}
}
