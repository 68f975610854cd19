// Package orders constructs BAG combo legs for open, close and roll
// and manages the submitted-order lifecycle (SPEC_FULL.md §4.11).
// Grounded on the teacher's internal/execution/order_manager.go
// (ManagedOrder tracking map, CleanupOldOrders TTL sweep, MonitorOrders
// poll loop), generalized from single-leg orders to BAG leg lists and
// from the teacher's own status enum to domain.OrderState's
// Submitted -> PartiallyFilled? -> Filled | Cancelled | Inactive.
package orders

import (
	"fmt"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
)

// BuildOpenCombo turns a strategy proposal's legs into BAG combo legs:
// open and close share this primitive (SPEC_FULL.md §4.11).
func BuildOpenCombo(legs []domain.Leg) []broker.ComboLeg {
	out := make([]broker.ComboLeg, 0, len(legs))
	for _, l := range legs {
		out = append(out, broker.ComboLeg{ConID: l.ConID, Action: l.Action, Ratio: 1})
	}
	return out
}

// BuildCloseCombo reverses every leg's action, producing the combo
// that flattens a Position (SPEC_FULL.md §4.12's "close is a BAG whose
// legs are the reverse of the Position's legs").
func BuildCloseCombo(p domain.Position) []broker.ComboLeg {
	out := make([]broker.ComboLeg, 0, len(p.Legs))
	for _, l := range p.Legs {
		out = append(out, broker.ComboLeg{ConID: l.ConID, Action: l.Action.Opposite(), Ratio: 1})
	}
	return out
}

// BuildRollCombo composes a single 4-leg BAG: close the two existing
// legs (reversed) plus open the two new legs, submitted atomically —
// there is no non-atomic fallback (SPEC_FULL.md §4.13).
func BuildRollCombo(oldPosition domain.Position, newLegs []domain.Leg) ([]broker.ComboLeg, error) {
	if len(oldPosition.Legs) != 2 {
		return nil, fmt.Errorf("orders: roll requires exactly 2 existing legs, got %d", len(oldPosition.Legs))
	}
	if len(newLegs) != 2 {
		return nil, fmt.Errorf("orders: roll requires exactly 2 new legs, got %d", len(newLegs))
	}
	combo := make([]broker.ComboLeg, 0, 4)
	combo = append(combo, BuildCloseCombo(oldPosition)...)
	combo = append(combo, BuildOpenCombo(newLegs)...)
	return combo, nil
}
