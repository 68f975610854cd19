package regime

import (
	"github.com/atlas-desktop/options-engine/internal/domain"
)

// Engine selects between the ML classifier (once it has enough
// history) and the rule-based fallback, and derives preferred
// strategies for a regime.
type Engine struct {
	ml   *MLClassifier
	rule RuleBased

	panicThreshold float64
}

// NewEngine constructs a regime engine. panicThreshold is stored on
// the Engine but not read by it; PreferredStrategies is a package
// function that takes its own panicThreshold argument (SPEC_FULL.md
// §4.7 "PANIC (VIX>panic_threshold) → ∅").
func NewEngine(ml *MLClassifier, panicThreshold float64) *Engine {
	return &Engine{ml: ml, rule: NewRuleBased(), panicThreshold: panicThreshold}
}

// Observe feeds one daily return into the ML classifier's rolling
// window; a no-op if no ML classifier was configured.
func (e *Engine) Observe(ret float64) {
	if e.ml != nil {
		e.ml.Observe(ret)
	}
}

// Classify returns the ML classifier's result if it has a full
// window of history, otherwise the deterministic rule-based result.
func (e *Engine) Classify(f Features) Result {
	if e.ml != nil {
		if r := e.ml.Classify(f); r.Mode == domain.ModeML {
			return r
		}
	}
	return e.rule.Classify(f)
}

// PreferredStrategies maps a regime (and the current VIX, for the
// panic override) onto the strategy kinds that regime favors
// (SPEC_FULL.md §4.7, verbatim).
func PreferredStrategies(regime domain.Regime, vix, panicThreshold float64) []domain.StrategyKind {
	if vix > panicThreshold {
		return nil
	}
	switch regime {
	case domain.RegimeExtremeStress, domain.RegimeHighVolNeutral:
		return []domain.StrategyKind{domain.StrategyIronCondor, domain.StrategyVerticalCreditCall, domain.StrategyVerticalCreditPut}
	case domain.RegimeLowVolNeutral:
		return []domain.StrategyKind{domain.StrategyVerticalDebitCall, domain.StrategyVerticalDebitPut, domain.StrategyCalendar}
	default:
		return []domain.StrategyKind{domain.StrategyVerticalCreditCall, domain.StrategyVerticalCreditPut}
	}
}
