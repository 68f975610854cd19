package screener

import (
	"context"
	"testing"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"go.uber.org/zap"
)

type fakeScanner struct {
	results []broker.ScanResult
	ivRanks map[string]float64
}

func (f *fakeScanner) ScanHighImpliedVol(ctx context.Context, minPrice, maxPrice float64) ([]broker.ScanResult, error) {
	return f.results, nil
}

func (f *fakeScanner) IVRank(ctx context.Context, symbol string) (float64, error) {
	return f.ivRanks[symbol], nil
}

func TestTopReturnsSortedByScoreDescending(t *testing.T) {
	scanner := &fakeScanner{
		results: []broker.ScanResult{
			{Symbol: "LOW", Price: 300, Volume: 10_000},
			{Symbol: "HIGH", Price: 200, Volume: 2_000_000},
		},
		ivRanks: map[string]float64{"LOW": 10, "HIGH": 90},
	}
	s := New(zap.NewNop(), scanner, Config{MinPrice: 100, MaxPrice: 300})

	top, err := s.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(top))
	}
	if top[0].Symbol != "HIGH" {
		t.Fatalf("expected HIGH to score above LOW, got order %v / %v", top[0].Symbol, top[1].Symbol)
	}
}

func TestTopRespectsLimit(t *testing.T) {
	scanner := &fakeScanner{
		results: []broker.ScanResult{
			{Symbol: "A", Price: 200}, {Symbol: "B", Price: 200}, {Symbol: "C", Price: 200},
		},
		ivRanks: map[string]float64{"A": 50, "B": 60, "C": 70},
	}
	s := New(zap.NewNop(), scanner, Config{MinPrice: 100, MaxPrice: 300})

	top, err := s.Top(context.Background(), 2)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(top))
	}
}

func TestScoreRewardsCenteredPriceBand(t *testing.T) {
	centered := Score(50, 200, 100, 300, 500_000)
	edge := Score(50, 100, 100, 300, 500_000)
	if centered <= edge {
		t.Fatalf("expected centered price band to score higher than edge, got centered=%f edge=%f", centered, edge)
	}
}
