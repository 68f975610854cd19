package position

import (
	"testing"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
)

func TestFairValueSignConvention(t *testing.T) {
	legValues := []LegValue{
		{Leg: domain.Leg{Action: domain.ActionSell}, MarketValue: decimal.NewFromInt(-120)},
		{Leg: domain.Leg{Action: domain.ActionBuy}, MarketValue: decimal.NewFromInt(40)},
	}
	got := FairValue(legValues, 1)
	want := decimal.NewFromFloat(0.80)
	if !got.Equal(want) {
		t.Fatalf("expected fair value %s, got %s", want, got)
	}
}

func TestEvaluateExitsOnProfitTarget(t *testing.T) {
	p := domain.Position{Exit: domain.MLExitState{TrailingProfit: decimal.NewFromFloat(0.50), TrailingStop: decimal.NewFromFloat(2.50)}}
	d := Evaluate(decimal.NewFromFloat(0.40), p, 20, 7, false)
	if !d.Exit || d.Reason != domain.ExitProfitTarget {
		t.Fatalf("expected PROFIT_TARGET exit, got %+v", d)
	}
}

func TestEvaluateExitsOnStopLossMLReason(t *testing.T) {
	p := domain.Position{Exit: domain.MLExitState{TrailingProfit: decimal.NewFromFloat(0.50), TrailingStop: decimal.NewFromFloat(2.50)}}
	d := Evaluate(decimal.NewFromFloat(2.60), p, 20, 7, true)
	if !d.Exit || d.Reason != domain.ExitTrailingStop {
		t.Fatalf("expected TRAILING_STOP exit, got %+v", d)
	}
}

func TestEvaluateExitsOnTimeExit(t *testing.T) {
	p := domain.Position{Exit: domain.MLExitState{TrailingProfit: decimal.NewFromFloat(0.10), TrailingStop: decimal.NewFromFloat(5.00)}}
	d := Evaluate(decimal.NewFromFloat(1.00), p, 5, 7, false)
	if !d.Exit || d.Reason != domain.ExitTimeExit {
		t.Fatalf("expected TIME_EXIT, got %+v", d)
	}
}

func TestEvaluateHolds(t *testing.T) {
	p := domain.Position{Exit: domain.MLExitState{TrailingProfit: decimal.NewFromFloat(0.10), TrailingStop: decimal.NewFromFloat(5.00)}}
	d := Evaluate(decimal.NewFromFloat(1.00), p, 30, 7, false)
	if d.Exit {
		t.Fatalf("expected hold, got %+v", d)
	}
}

func TestClampStopMultiplierBounds(t *testing.T) {
	if got := clampStopMultiplier(decimal.NewFromFloat(0.5)); !got.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("expected floor 1.5, got %s", got)
	}
	if got := clampStopMultiplier(decimal.NewFromFloat(10)); !got.Equal(decimal.NewFromFloat(3.5)) {
		t.Fatalf("expected ceiling 3.5, got %s", got)
	}
}

func TestClampProfitTargetPctBounds(t *testing.T) {
	if got := clampProfitTargetPct(decimal.NewFromFloat(0.1)); !got.Equal(decimal.NewFromFloat(0.4)) {
		t.Fatalf("expected floor 0.4, got %s", got)
	}
	if got := clampProfitTargetPct(decimal.NewFromFloat(0.9)); !got.Equal(decimal.NewFromFloat(0.7)) {
		t.Fatalf("expected ceiling 0.7, got %s", got)
	}
}
