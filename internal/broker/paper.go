package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/google/uuid"
)

// PaperTransport simulates broker fills for paper_trading mode,
// grounded on the teacher's internal/execution/executor.go
// simulateExecution: every combo fills immediately at its requested
// price, no partial fills, no real network I/O.
type PaperTransport struct {
	mu        sync.Mutex
	quotes    map[int64]domain.OptionQuote
	account   domain.AccountSummary
	portfolio []PortfolioPosition
	orders    map[string]PendingOrder
	universe  []ScanResult
}

// NewPaperTransport seeds a simulated account and quote book.
func NewPaperTransport(account domain.AccountSummary) *PaperTransport {
	return &PaperTransport{
		quotes:  make(map[int64]domain.OptionQuote),
		account: account,
		orders:  make(map[string]PendingOrder),
	}
}

// SeedQuote installs a quote the paper transport will return from
// Snapshot, keyed by conId.
func (p *PaperTransport) SeedQuote(q domain.OptionQuote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.ConID] = q
}

// SeedScanUniverse installs the fixed symbol universe ScanHighImpliedVol
// draws from in paper mode, in place of a real broker scanner
// subscription.
func (p *PaperTransport) SeedScanUniverse(universe []ScanResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.universe = universe
}

// ScanHighImpliedVol filters the seeded universe by price band,
// standing in for the broker's HIGH_OPT_IMP_VOLAT scanner subscription
// (SPEC_FULL.md §4.8) in paper mode.
func (p *PaperTransport) ScanHighImpliedVol(ctx context.Context, minPrice, maxPrice float64) ([]ScanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ScanResult, 0, len(p.universe))
	for _, r := range p.universe {
		if r.Price >= minPrice && r.Price <= maxPrice {
			out = append(out, r)
		}
	}
	return out, nil
}

// IVRank returns a deterministic synthetic IV rank for symbol, since
// paper mode has no live options chain to derive one from.
func (p *PaperTransport) IVRank(ctx context.Context, symbol string) (float64, error) {
	h := 0
	for _, r := range symbol {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return float64(h % 100), nil
}

func (p *PaperTransport) Connect(ctx context.Context) error    { return nil }
func (p *PaperTransport) Disconnect(ctx context.Context) error { return nil }
func (p *PaperTransport) EnsureConnected(ctx context.Context) error { return nil }

func (p *PaperTransport) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account, nil
}

func (p *PaperTransport) Qualify(ctx context.Context, c Contract) (QualifiedContract, error) {
	return QualifiedContract{Contract: c, ConID: fakeConID(c)}, nil
}

func (p *PaperTransport) Snapshot(ctx context.Context, c QualifiedContract) (domain.OptionQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[c.ConID]
	if !ok {
		return domain.OptionQuote{}, fmt.Errorf("paper transport: no seeded quote for conId %d", c.ConID)
	}
	return q, nil
}

func (p *PaperTransport) PlaceCombo(ctx context.Context, legs []ComboLeg, order ComboOrderRequest) (TradeHandle, error) {
	id := uuid.NewString()
	return TradeHandle{OrderID: id, SubmittedAt: time.Now()}, nil
}

func (p *PaperTransport) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, orderID)
	return nil
}

func (p *PaperTransport) OpenOrders(ctx context.Context) ([]PendingOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingOrder, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o)
	}
	return out, nil
}

func (p *PaperTransport) Portfolio(ctx context.Context) ([]PortfolioPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.portfolio, nil
}

func (p *PaperTransport) HistoricalBars(ctx context.Context, c QualifiedContract, duration, barSize string) ([]Bar, error) {
	return nil, nil
}

func (p *PaperTransport) FundamentalXML(ctx context.Context, c QualifiedContract, report string) (string, error) {
	return "<FundamentalData/>", nil
}

func (p *PaperTransport) TreasuryYield(ctx context.Context) (float64, error) {
	return 0.045, nil
}

func fakeConID(c Contract) int64 {
	h := int64(0)
	for _, r := range c.Symbol + c.Strike + string(c.Right) + c.Expiration {
		h = h*31 + int64(r)
	}
	if h < 0 {
		h = -h
	}
	return h
}
