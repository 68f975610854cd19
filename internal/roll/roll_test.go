package roll

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func testPosition() domain.Position {
	return domain.Position{
		ID:        "pos-1",
		Symbol:    "SPY",
		Contracts: 1,
		Legs: []domain.Leg{
			{ContractSymbol: "short", ConID: 1, Action: domain.ActionSell, Strike: decimal.NewFromInt(450), OptionType: domain.OptionCall, EntryPrice: decimal.NewFromFloat(1.20)},
			{ContractSymbol: "long", ConID: 2, Action: domain.ActionBuy, Strike: decimal.NewFromInt(455), OptionType: domain.OptionCall, EntryPrice: decimal.NewFromFloat(0.40)},
		},
	}
}

func TestTriggeredOnTestedShortCall(t *testing.T) {
	p := testPosition()
	if !Triggered(p, decimal.NewFromInt(451), nil) {
		t.Fatalf("expected triggered when price crosses short call strike")
	}
	if Triggered(p, decimal.NewFromInt(440), nil) {
		t.Fatalf("expected not triggered when price is below short call strike")
	}
}

func TestTriggeredOnDeltaDrift(t *testing.T) {
	p := testPosition()
	deltas := map[string]decimal.Decimal{"short": decimal.NewFromFloat(-0.45)}
	if !Triggered(p, decimal.NewFromInt(440), deltas) {
		t.Fatalf("expected triggered on |delta| > 0.40")
	}
}

func TestProposePreservesWidthAndMovesTestedSide(t *testing.T) {
	p := testPosition()
	from := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	width := decimal.NewFromInt(5)
	prop, err := Propose(p, width, true, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !prop.NewShortStrike.Equal(decimal.NewFromInt(455)) {
		t.Fatalf("expected new short strike 455, got %s", prop.NewShortStrike)
	}
	if !prop.NewLongStrike.Equal(decimal.NewFromInt(460)) {
		t.Fatalf("expected new long strike 460, got %s", prop.NewLongStrike)
	}
	if prop.NewExpiration.Before(from.AddDate(0, 0, 30)) {
		t.Fatalf("expected expiration at least 30 days out, got %s", prop.NewExpiration)
	}
	if prop.NewExpiration.Weekday() != time.Friday {
		t.Fatalf("expected monthly expiration to fall on a Friday, got %s", prop.NewExpiration.Weekday())
	}
}

func TestNextMonthlyAtLeastPicksThirdFriday(t *testing.T) {
	got := NextMonthlyAtLeast(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	want := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextMonthlyAtLeastRollsToFollowingMonth(t *testing.T) {
	got := NextMonthlyAtLeast(time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC))
	want := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

type fakeChain struct {
	short domain.OptionQuote
	long  domain.OptionQuote
}

func (f *fakeChain) FindQuote(ctx context.Context, symbol string, expiration time.Time, strike decimal.Decimal, right domain.OptionType) (domain.OptionQuote, error) {
	if strike.Equal(f.short.Strike) {
		return f.short, nil
	}
	return f.long, nil
}

type fakeRollBroker struct {
	orderID string
	filled  bool
}

func (f *fakeRollBroker) Connect(ctx context.Context) error         { return nil }
func (f *fakeRollBroker) Disconnect(ctx context.Context) error      { return nil }
func (f *fakeRollBroker) EnsureConnected(ctx context.Context) error { return nil }
func (f *fakeRollBroker) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	return domain.AccountSummary{}, nil
}
func (f *fakeRollBroker) Qualify(ctx context.Context, c broker.Contract) (broker.QualifiedContract, error) {
	return broker.QualifiedContract{}, nil
}
func (f *fakeRollBroker) Snapshot(ctx context.Context, c broker.QualifiedContract) (domain.OptionQuote, error) {
	return domain.OptionQuote{}, nil
}
func (f *fakeRollBroker) PlaceCombo(ctx context.Context, legs []broker.ComboLeg, order broker.ComboOrderRequest) (broker.TradeHandle, error) {
	f.orderID = "order-1"
	return broker.TradeHandle{OrderID: f.orderID, SubmittedAt: time.Now()}, nil
}
func (f *fakeRollBroker) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeRollBroker) OpenOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	if f.filled {
		return nil, nil
	}
	return []broker.PendingOrder{{OrderID: f.orderID, SubmittedAt: time.Now()}}, nil
}
func (f *fakeRollBroker) Portfolio(ctx context.Context) ([]broker.PortfolioPosition, error) {
	return nil, nil
}
func (f *fakeRollBroker) HistoricalBars(ctx context.Context, c broker.QualifiedContract, duration, barSize string) ([]broker.Bar, error) {
	return nil, nil
}
func (f *fakeRollBroker) FundamentalXML(ctx context.Context, c broker.QualifiedContract, report string) (string, error) {
	return "", nil
}
func (f *fakeRollBroker) TreasuryYield(ctx context.Context) (float64, error) { return 0.045, nil }

type fakeRollStore struct{ trades []domain.Trade }

func (f *fakeRollStore) LogTrade(ctx context.Context, tr domain.Trade) error {
	f.trades = append(f.trades, tr)
	return nil
}
func (f *fakeRollStore) CloseTrade(ctx context.Context, tradeID string, status domain.OrderState, filledQty int, fillPrice decimal.Decimal, closedAt time.Time) error {
	return nil
}

func TestExecuteBuildsAtomicComboAndReportsFill(t *testing.T) {
	p := testPosition()
	prop := Proposal{NewShortStrike: decimal.NewFromInt(455), NewLongStrike: decimal.NewFromInt(460), NewExpiration: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)}
	chain := &fakeChain{
		short: domain.OptionQuote{Symbol: "new-short", ConID: 3, Strike: prop.NewShortStrike, Right: domain.OptionCall, Expiration: prop.NewExpiration, Bid: decimal.NewFromFloat(1.10), Ask: decimal.NewFromFloat(1.20)},
		long:  domain.OptionQuote{Symbol: "new-long", ConID: 4, Strike: prop.NewLongStrike, Right: domain.OptionCall, Expiration: prop.NewExpiration, Bid: decimal.NewFromFloat(0.30), Ask: decimal.NewFromFloat(0.40)},
	}
	fb := &fakeRollBroker{filled: true}
	om := orders.NewManager(zap.NewNop(), fb, &fakeRollStore{}, func() string { return "trade-1" })
	m := NewManager(zap.NewNop(), om, chain)

	ok, spread, err := m.Execute(context.Background(), p, prop, decimal.NewFromInt(18), domain.RegimeLowVolNeutral, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected roll to report filled")
	}
	if len(spread.Legs) != 2 {
		t.Fatalf("expected 2 successor legs, got %d", len(spread.Legs))
	}
	if !spread.Expiration.Equal(prop.NewExpiration) {
		t.Fatalf("expected successor expiration %v, got %v", prop.NewExpiration, spread.Expiration)
	}
}

func TestExecuteAbandonsOnNoFill(t *testing.T) {
	p := testPosition()
	prop := Proposal{NewShortStrike: decimal.NewFromInt(455), NewLongStrike: decimal.NewFromInt(460), NewExpiration: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)}
	chain := &fakeChain{
		short: domain.OptionQuote{Symbol: "new-short", ConID: 3, Strike: prop.NewShortStrike, Right: domain.OptionCall, Expiration: prop.NewExpiration, Bid: decimal.NewFromFloat(1.10), Ask: decimal.NewFromFloat(1.20)},
		long:  domain.OptionQuote{Symbol: "new-long", ConID: 4, Strike: prop.NewLongStrike, Right: domain.OptionCall, Expiration: prop.NewExpiration, Bid: decimal.NewFromFloat(0.30), Ask: decimal.NewFromFloat(0.40)},
	}
	fb := &fakeRollBroker{filled: false}
	om := orders.NewManager(zap.NewNop(), fb, &fakeRollStore{}, func() string { return "trade-1" })
	m := NewManager(zap.NewNop(), om, chain)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	ok, _, err := m.Execute(ctx, p, prop, decimal.NewFromInt(18), domain.RegimeLowVolNeutral, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected roll to be abandoned, not filled")
	}
}
