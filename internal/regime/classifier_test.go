package regime

import (
	"testing"

	"github.com/atlas-desktop/options-engine/internal/domain"
)

func TestRuleBasedExtremeStress(t *testing.T) {
	r := NewRuleBased().Classify(Features{VIX: 35})
	if r.Regime != domain.RegimeExtremeStress || r.Mode != domain.ModeRuleBased {
		t.Fatalf("expected EXTREME_STRESS/RULE_BASED, got %+v", r)
	}
}

func TestRuleBasedBearTrending(t *testing.T) {
	r := NewRuleBased().Classify(Features{VIX: 20, Return20D: -0.08})
	if r.Regime != domain.RegimeBearTrending {
		t.Fatalf("expected BEAR_TRENDING, got %v", r.Regime)
	}
}

func TestRuleBasedHighVolNeutral(t *testing.T) {
	r := NewRuleBased().Classify(Features{VIX: 25, Return20D: 0.01})
	if r.Regime != domain.RegimeHighVolNeutral {
		t.Fatalf("expected HIGH_VOL_NEUTRAL, got %v", r.Regime)
	}
}

func TestRuleBasedBullTrending(t *testing.T) {
	r := NewRuleBased().Classify(Features{VIX: 12, Return20D: 0.05, Price: 110, SMA50: 100})
	if r.Regime != domain.RegimeBullTrending {
		t.Fatalf("expected BULL_TRENDING, got %v", r.Regime)
	}
}

func TestRuleBasedDefaultsToLowVolNeutral(t *testing.T) {
	r := NewRuleBased().Classify(Features{VIX: 12, Return20D: 0.01, Price: 100, SMA50: 100})
	if r.Regime != domain.RegimeLowVolNeutral {
		t.Fatalf("expected LOW_VOL_NEUTRAL, got %v", r.Regime)
	}
}

func TestPreferredStrategiesPanicOverride(t *testing.T) {
	strats := PreferredStrategies(domain.RegimeBullTrending, 45, 40)
	if len(strats) != 0 {
		t.Fatalf("expected no preferred strategies above panic threshold, got %v", strats)
	}
}

func TestPreferredStrategiesLowVol(t *testing.T) {
	strats := PreferredStrategies(domain.RegimeLowVolNeutral, 12, 40)
	found := false
	for _, s := range strats {
		if s == domain.StrategyCalendar {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected CALENDAR among low-vol preferred strategies, got %v", strats)
	}
}

func TestMLClassifierDefersUntilWindowFilled(t *testing.T) {
	ml := NewMLClassifier(nopLogger(), 20)
	r := ml.Classify(Features{})
	if r.Mode == domain.ModeML {
		t.Fatalf("expected empty result before window fills, got %+v", r)
	}
}

func TestEngineFallsBackToRuleBasedWithoutHistory(t *testing.T) {
	e := NewEngine(NewMLClassifier(nopLogger(), 20), 40)
	r := e.Classify(Features{VIX: 35})
	if r.Mode != domain.ModeRuleBased {
		t.Fatalf("expected rule-based fallback without ML history, got mode %v", r.Mode)
	}
}
