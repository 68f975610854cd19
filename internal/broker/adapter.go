package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rawClient is the low-level wire-protocol client the Adapter wraps.
// Its concrete implementation (the proprietary TWS/Gateway binary
// framing) is an out-of-scope external collaborator per SPEC_FULL.md
// §1/§6 — production wires in whatever client package talks that wire
// protocol; this package only needs its shape to build the connection
// lifecycle, pacing and data-type-enforcement behavior the Broker
// contract promises.
type rawClient interface {
	Broker
}

// Adapter implements Broker on top of a rawClient, adding: connect
// retry with exponential backoff (§4.4), real-time-vs-delayed
// enforcement on every Snapshot, and pacing/retry on fundamentals
// calls. It sends no market-data-type request of its own on connect.
type Adapter struct {
	logger           *zap.Logger
	raw              rawClient
	allowDelayedData bool
	fundamentalsLimiter *rate.Limiter // <=30 req/60s per §4.4
	connected        bool
}

// Config configures the adapter's policy knobs (not the transport).
type Config struct {
	AllowDelayedData bool
}

// NewAdapter wraps raw with the Broker contract's connection/pacing/
// data-type policy.
func NewAdapter(logger *zap.Logger, raw rawClient, cfg Config) *Adapter {
	return &Adapter{
		logger:              logger.Named("broker"),
		raw:                 raw,
		allowDelayedData:    cfg.AllowDelayedData,
		fundamentalsLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1), // 30 req / 60s
	}
}

// Connect dials with up to 3 attempts of exponential backoff. It does
// not request a market data type after connecting.
func (a *Adapter) Connect(ctx context.Context) error {
	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		if err := a.raw.Connect(ctx); err != nil {
			lastErr = err
			a.logger.Warn("broker connect failed", zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		a.connected = true
		a.logger.Info("broker connected", zap.Int("attempt", attempt))
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrBrokerUnreachable, lastErr)
}

func (a *Adapter) Disconnect(ctx context.Context) error {
	a.connected = false
	return a.raw.Disconnect(ctx)
}

// EnsureConnected reconnects if the last known state was disconnected.
func (a *Adapter) EnsureConnected(ctx context.Context) error {
	if a.connected {
		return nil
	}
	return a.Connect(ctx)
}

func (a *Adapter) AccountSummary(ctx context.Context) (domain.AccountSummary, error) {
	return a.raw.AccountSummary(ctx)
}

func (a *Adapter) Qualify(ctx context.Context, c Contract) (QualifiedContract, error) {
	return a.raw.Qualify(ctx, c)
}

// Snapshot enforces real-time-vs-delayed data policy: a quote whose
// data_type is DELAYED or DELAYED_FROZEN fails with ErrDelayedData
// unless allow_delayed_data is true.
func (a *Adapter) Snapshot(ctx context.Context, c QualifiedContract) (domain.OptionQuote, error) {
	q, err := a.raw.Snapshot(ctx, c)
	if err != nil {
		return domain.OptionQuote{}, err
	}
	if q.DataType.IsDelayed() && !a.allowDelayedData {
		return domain.OptionQuote{}, fmt.Errorf("%w: contract %d data_type=%s", apperr.ErrDelayedData, c.ConID, q.DataType)
	}
	return q, nil
}

func (a *Adapter) PlaceCombo(ctx context.Context, legs []ComboLeg, order ComboOrderRequest) (TradeHandle, error) {
	return a.raw.PlaceCombo(ctx, legs, order)
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	return a.raw.CancelOrder(ctx, orderID)
}

func (a *Adapter) OpenOrders(ctx context.Context) ([]PendingOrder, error) {
	return a.raw.OpenOrders(ctx)
}

func (a *Adapter) Portfolio(ctx context.Context) ([]PortfolioPosition, error) {
	return a.raw.Portfolio(ctx)
}

func (a *Adapter) HistoricalBars(ctx context.Context, c QualifiedContract, duration, barSize string) ([]Bar, error) {
	return a.raw.HistoricalBars(ctx, c, duration, barSize)
}

// FundamentalXML is pacing-limited to <=30 req/60s, retrying on
// pacing errors with 5s/10s/20s backoff up to 3 times before
// surfacing ErrBrokerPacing.
func (a *Adapter) FundamentalXML(ctx context.Context, c QualifiedContract, report string) (string, error) {
	if err := a.fundamentalsLimiter.Wait(ctx); err != nil {
		return "", err
	}

	backoffs := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	var lastErr error
	for attempt := 0; attempt <= len(backoffs); attempt++ {
		xml, err := a.raw.FundamentalXML(ctx, c, report)
		if err == nil {
			return xml, nil
		}
		lastErr = err
		if attempt == len(backoffs) {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoffs[attempt]):
		}
	}
	return "", &apperr.PacingError{Attempts: len(backoffs) + 1, Err: lastErr}
}

func (a *Adapter) TreasuryYield(ctx context.Context) (float64, error) {
	return a.raw.TreasuryYield(ctx)
}

// ScanHighImpliedVol satisfies screener.Scanner when raw implements
// ScanSource (true for PaperTransport and for a live client wired to
// the market scanner subscription).
func (a *Adapter) ScanHighImpliedVol(ctx context.Context, minPrice, maxPrice float64) ([]ScanResult, error) {
	src, ok := a.raw.(ScanSource)
	if !ok {
		return nil, fmt.Errorf("broker: underlying client does not implement ScanSource")
	}
	return src.ScanHighImpliedVol(ctx, minPrice, maxPrice)
}

func (a *Adapter) IVRank(ctx context.Context, symbol string) (float64, error) {
	src, ok := a.raw.(ScanSource)
	if !ok {
		return 0, fmt.Errorf("broker: underlying client does not implement ScanSource")
	}
	return src.IVRank(ctx, symbol)
}
