// Package broker is the typed contract over the broker (SPEC_FULL.md
// §4.4, §6). The wire protocol itself — a proprietary binary framing
// over a local TCP socket to TWS/Gateway — is an out-of-scope external
// collaborator; this package defines the contract every other
// component programs against, plus the connection-lifecycle, pacing
// and retry behavior the contract promises.
package broker

import (
	"context"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
)

// Contract identifies a tradable instrument before it has been
// qualified (resolved to a conId).
type Contract struct {
	Symbol     string
	Strike     string // empty for the underlying
	Right      domain.OptionType
	Expiration string // YYYY-MM-DD, empty for the underlying
}

// QualifiedContract is a Contract with its broker-assigned conId.
type QualifiedContract struct {
	Contract
	ConID int64
}

// ComboLeg is one leg of a BAG order: conId, action and ratio.
type ComboLeg struct {
	ConID  int64
	Action domain.LegAction
	Ratio  int
}

// ComboOrderRequest carries the order-level parameters for a BAG
// submission: action, quantity, limit-or-market and time-in-force.
type ComboOrderRequest struct {
	Action      domain.LegAction
	Quantity    int
	LimitPrice  *float64 // nil means market
	TimeInForce string   // "DAY", "GTC", ...
}

// TradeHandle is returned immediately on submission; the caller polls
// OpenOrders/fills through the Order Manager rather than blocking here.
type TradeHandle struct {
	OrderID      string
	SubmittedAt  time.Time
}

// PortfolioPosition is one underlying-grouped option position as
// reported by the broker.
type PortfolioPosition struct {
	Symbol      string
	ConID       int64
	Quantity    int
	AvgCost     float64
	MarketValue float64
}

// PendingOrder mirrors what OpenOrders() reports for TTL sweeping.
type PendingOrder struct {
	OrderID     string
	SubmittedAt time.Time
	Legs        []ComboLeg
}

// Bar is one OHLCV historical bar.
type Bar struct {
	Timestamp time.Time
	Open, High, Low, Close float64
	Volume int64
}

// Broker is the full contract described in SPEC_FULL.md §4.4. Every
// method is context-first and honors the caller's deadline.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	EnsureConnected(ctx context.Context) error

	AccountSummary(ctx context.Context) (domain.AccountSummary, error)
	Qualify(ctx context.Context, c Contract) (QualifiedContract, error)
	Snapshot(ctx context.Context, c QualifiedContract) (domain.OptionQuote, error)

	PlaceCombo(ctx context.Context, legs []ComboLeg, order ComboOrderRequest) (TradeHandle, error)
	CancelOrder(ctx context.Context, orderID string) error
	OpenOrders(ctx context.Context) ([]PendingOrder, error)

	Portfolio(ctx context.Context) ([]PortfolioPosition, error)

	HistoricalBars(ctx context.Context, c QualifiedContract, duration string, barSize string) ([]Bar, error)
	FundamentalXML(ctx context.Context, c QualifiedContract, report string) (string, error)

	// TreasuryYield feeds the Pricing & Greeks risk-free rate cache.
	TreasuryYield(ctx context.Context) (float64, error)
}

// ScanResult is one symbol surfaced by a high-implied-volatility scan,
// before the screener enriches it with an IV rank (SPEC_FULL.md §4.8).
type ScanResult struct {
	Symbol string
	Price  float64
	Volume int64
	Sector string
}

// ScanSource is an optional capability a rawClient behind the Adapter
// may implement to back the screener's scan. PaperTransport implements
// it directly against a seeded universe; a live TWS/Gateway client
// implements it against the HIGH_OPT_IMP_VOLAT market scanner
// subscription.
type ScanSource interface {
	ScanHighImpliedVol(ctx context.Context, minPrice, maxPrice float64) ([]ScanResult, error)
	IVRank(ctx context.Context, symbol string) (float64, error)
}
