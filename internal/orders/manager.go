package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the narrow persistence slice the Order Manager needs.
type Store interface {
	LogTrade(ctx context.Context, t domain.Trade) error
	CloseTrade(ctx context.Context, tradeID string, status domain.OrderState, filledQty int, fillPrice decimal.Decimal, closedAt time.Time) error
}

// IDGenerator mints trade ids; callers wire uuid.NewString.
type IDGenerator func() string

// tracked is the in-memory record the teacher calls ManagedOrder,
// narrowed to what the TTL sweep and poll loop need.
type tracked struct {
	trade       domain.Trade
	legs        []broker.ComboLeg
	submittedAt time.Time
}

// Manager owns the submitted-order lifecycle: construction is in
// combo.go, this half issues orders, tracks them in memory, sweeps
// stale ones by TTL and reconciles status against the broker's
// OpenOrders report (SPEC_FULL.md §4.11).
type Manager struct {
	logger  *zap.Logger
	broker  broker.Broker
	store   Store
	newID   IDGenerator
	mu      sync.Mutex
	tracked map[string]*tracked // keyed by broker order id
	swept   bool
}

func NewManager(logger *zap.Logger, b broker.Broker, store Store, newID IDGenerator) *Manager {
	return &Manager{
		logger:  logger.Named("orders.manager"),
		broker:  b,
		store:   store,
		newID:   newID,
		tracked: make(map[string]*tracked),
	}
}

// Submit places legs as a single combo order and records the Trade.
// Open and close both flow through this; the only difference is which
// combo-builder function produced legs.
func (m *Manager) Submit(ctx context.Context, kind domain.TradeKind, positionID, symbol string, legs []broker.ComboLeg, quantity int, action domain.LegAction, limitPrice *float64, vix decimal.Decimal, regime domain.Regime, now time.Time) (domain.Trade, error) {
	handle, err := m.broker.PlaceCombo(ctx, legs, broker.ComboOrderRequest{
		Action: action, Quantity: quantity, LimitPrice: limitPrice, TimeInForce: "DAY",
	})
	if err != nil {
		return domain.Trade{}, fmt.Errorf("orders: place combo: %w", err)
	}

	trade := domain.Trade{
		ID:            m.newID(),
		PositionID:    positionID,
		Kind:          kind,
		Symbol:        symbol,
		Status:        domain.OrderSubmitted,
		RequestedQty:  quantity,
		VIXAtEntry:    vix,
		RegimeAtEntry: regime,
		SubmittedAt:   now,
		BrokerOrderID: handle.OrderID,
	}
	if err := m.store.LogTrade(ctx, trade); err != nil {
		return domain.Trade{}, fmt.Errorf("orders: log trade: %w", err)
	}

	m.mu.Lock()
	m.tracked[handle.OrderID] = &tracked{trade: trade, legs: legs, submittedAt: now}
	m.mu.Unlock()

	return trade, nil
}

// SubmitAndAwaitFill submits, then polls the broker until filled,
// cancelled or deadline — used by the Roll Manager's "abandon after
// 30s" semantics (SPEC_FULL.md §4.13) and by synchronous close flows.
func (m *Manager) SubmitAndAwaitFill(ctx context.Context, kind domain.TradeKind, positionID, symbol string, legs []broker.ComboLeg, quantity int, action domain.LegAction, limitPrice *float64, vix decimal.Decimal, regime domain.Regime, now time.Time, deadline time.Duration) (domain.Trade, bool, error) {
	trade, err := m.Submit(ctx, kind, positionID, symbol, legs, quantity, action, limitPrice, vix, regime, now)
	if err != nil {
		return domain.Trade{}, false, err
	}

	awaitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-awaitCtx.Done():
			return trade, false, nil
		case <-ticker.C:
			filled, current, err := m.pollOne(ctx, trade.BrokerOrderID)
			if err != nil {
				m.logger.Debug("poll failed while awaiting fill", zap.Error(err), zap.String("order_id", trade.BrokerOrderID))
				continue
			}
			if filled {
				return current, true, nil
			}
		}
	}
}

// pollOne checks one tracked order against the broker's open-orders
// report; if it's no longer listed, treats it as filled (the broker
// only drops terminal orders from OpenOrders).
func (m *Manager) pollOne(ctx context.Context, brokerOrderID string) (bool, domain.Trade, error) {
	open, err := m.broker.OpenOrders(ctx)
	if err != nil {
		return false, domain.Trade{}, err
	}
	for _, o := range open {
		if o.OrderID == brokerOrderID {
			return false, domain.Trade{}, nil
		}
	}

	m.mu.Lock()
	t, ok := m.tracked[brokerOrderID]
	m.mu.Unlock()
	if !ok {
		return true, domain.Trade{}, nil
	}

	now := time.Now()
	t.trade.Status = domain.OrderFilled
	t.trade.FilledQty = t.trade.RequestedQty
	t.trade.ClosedAt = &now
	if err := m.store.CloseTrade(ctx, t.trade.ID, domain.OrderFilled, t.trade.FilledQty, t.trade.FillPrice, now); err != nil {
		m.logger.Warn("failed to close filled trade", zap.Error(err), zap.String("trade_id", t.trade.ID))
	}
	m.mu.Lock()
	delete(m.tracked, brokerOrderID)
	m.mu.Unlock()
	return true, t.trade, nil
}

// CancelStaleOrders iterates broker-reported open orders, cancelling
// any whose age exceeds ttl. Orders with no tracking record — pre-
// startup state the manager never submitted itself — are
// conservatively cancelled on the very first sweep (SPEC_FULL.md
// §4.11), since the manager cannot distinguish "abandoned" from
// "fine" without one.
func (m *Manager) CancelStaleOrders(ctx context.Context, ttl time.Duration, now time.Time) (int, error) {
	open, err := m.broker.OpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("orders: open orders: %w", err)
	}

	m.mu.Lock()
	firstSweep := !m.swept
	m.swept = true
	m.mu.Unlock()

	cancelled := 0
	for _, o := range open {
		m.mu.Lock()
		_, hasRecord := m.tracked[o.OrderID]
		m.mu.Unlock()

		stale := now.Sub(o.SubmittedAt) > ttl
		untracked := !hasRecord && firstSweep

		if !stale && !untracked {
			continue
		}
		if err := m.broker.CancelOrder(ctx, o.OrderID); err != nil {
			m.logger.Warn("failed to cancel stale order", zap.Error(err), zap.String("order_id", o.OrderID))
			continue
		}
		m.mu.Lock()
		if t, ok := m.tracked[o.OrderID]; ok {
			t.trade.Status = domain.OrderCancelled
			if cerr := m.store.CloseTrade(ctx, t.trade.ID, domain.OrderCancelled, t.trade.FilledQty, t.trade.FillPrice, now); cerr != nil {
				m.logger.Warn("failed to persist cancellation", zap.Error(cerr), zap.String("trade_id", t.trade.ID))
			}
			delete(m.tracked, o.OrderID)
		}
		m.mu.Unlock()
		cancelled++
	}
	return cancelled, nil
}

// PollAll reconciles every tracked order against the broker's open
// orders report, closing any that have filled since the last poll —
// the steady-state counterpart to MonitorOrders' ticker loop in the
// teacher's implementation.
func (m *Manager) PollAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, _, err := m.pollOne(ctx, id); err != nil {
			m.logger.Debug("poll failed", zap.Error(err), zap.String("order_id", id))
		}
	}
}

// Run drives PollAll and CancelStaleOrders on pollInterval until ctx
// is cancelled — grounded on the teacher's MonitorOrders loop.
func (m *Manager) Run(ctx context.Context, pollInterval time.Duration, ttl time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PollAll(ctx)
			if _, err := m.CancelStaleOrders(ctx, ttl, time.Now()); err != nil {
				m.logger.Warn("stale order sweep failed", zap.Error(err))
			}
		}
	}
}
