// Package reconcile diffs the store's OPEN positions against the
// broker's reported portfolio (SPEC_FULL.md §4.14). There is no direct
// teacher equivalent for this concern; it is built from the spec's
// two-list diff description, wired onto the same narrow Store/Broker
// capability style the rest of this module uses.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the narrow persistence slice the Reconciler needs.
type Store interface {
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	MarkPositionClosed(ctx context.Context, positionID string, status domain.PositionStatus, exitTS time.Time, exitPrice decimal.Decimal, reason domain.ExitReason, realizedPnL decimal.Decimal) error
}

// PortfolioReader is the narrow broker capability the Reconciler needs.
type PortfolioReader interface {
	Portfolio(ctx context.Context) ([]broker.PortfolioPosition, error)
}

// Clock supplies "now" for the closed-externally timestamp, kept
// injectable so tests are deterministic.
type Clock func() time.Time

// Diff is the result of one reconciliation pass: positions the store
// thought were open but the broker no longer reports, and conId groups
// the broker reports that the store has no record of at all. The
// latter is never auto-created into a Position — SPEC_FULL.md §4.14
// requires a human look at it.
type Diff struct {
	ClosedExternally []domain.Position
	UnknownInBroker  []broker.PortfolioPosition
}

// Reconciler marks store positions CLOSED_EXTERNALLY when the broker
// no longer reports any of their legs, and surfaces broker positions
// with no matching store record as a diff for manual review.
type Reconciler struct {
	logger  *zap.Logger
	store   Store
	broker  PortfolioReader
	now     Clock
}

func NewReconciler(logger *zap.Logger, store Store, b PortfolioReader, now Clock) *Reconciler {
	return &Reconciler{logger: logger.Named("reconcile"), store: store, broker: b, now: now}
}

// Reconcile is idempotent: running it twice in a row with no broker
// state change produces an empty Diff.ClosedExternally the second time
// (positions already marked CLOSED_EXTERNALLY no longer appear in
// Store.OpenPositions), and the same UnknownInBroker set both times
// since that list is never mutated by this pass.
func (r *Reconciler) Reconcile(ctx context.Context) (Diff, error) {
	openPositions, err := r.store.OpenPositions(ctx)
	if err != nil {
		return Diff{}, fmt.Errorf("reconcile: load open positions: %w", err)
	}
	brokerPositions, err := r.broker.Portfolio(ctx)
	if err != nil {
		return Diff{}, fmt.Errorf("reconcile: load broker portfolio: %w", err)
	}

	brokerConIDs := make(map[int64]bool, len(brokerPositions))
	for _, bp := range brokerPositions {
		brokerConIDs[bp.ConID] = true
	}
	storeConIDs := make(map[int64]bool)
	for _, p := range openPositions {
		for _, leg := range p.Legs {
			storeConIDs[leg.ConID] = true
		}
	}

	var diff Diff
	now := r.now()
	for _, p := range openPositions {
		if positionStillLive(p, brokerConIDs) {
			continue
		}
		if err := r.store.MarkPositionClosed(ctx, p.ID, domain.PositionClosedExternally, now, decimal.Zero, domain.ExitReconciliation, decimal.Zero); err != nil {
			r.logger.Error("failed to mark position closed externally", zap.Error(err), zap.String("position_id", p.ID))
			continue
		}
		r.logger.Warn("position closed externally: broker no longer reports any leg", zap.String("position_id", p.ID), zap.String("symbol", p.Symbol))
		diff.ClosedExternally = append(diff.ClosedExternally, p)
	}

	for _, bp := range brokerPositions {
		if !storeConIDs[bp.ConID] {
			diff.UnknownInBroker = append(diff.UnknownInBroker, bp)
		}
	}
	if len(diff.UnknownInBroker) > 0 {
		r.logger.Warn("broker reports positions with no store record; not auto-creating", zap.Int("count", len(diff.UnknownInBroker)))
	}

	return diff, nil
}

// positionStillLive reports whether any leg of p is still reported by
// the broker.
func positionStillLive(p domain.Position, brokerConIDs map[int64]bool) bool {
	for _, leg := range p.Legs {
		if brokerConIDs[leg.ConID] {
			return true
		}
	}
	return false
}
