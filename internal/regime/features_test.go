package regime

import "testing"

func TestRSIRisingSeriesAboveFifty(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if rsi := RSI(closes, 14); rsi <= 50 {
		t.Fatalf("expected RSI > 50 for a monotonically rising series, got %f", rsi)
	}
}

func TestRSIFallingSeriesBelowFifty(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 130 - float64(i)
	}
	if rsi := RSI(closes, 14); rsi >= 50 {
		t.Fatalf("expected RSI < 50 for a monotonically falling series, got %f", rsi)
	}
}

func TestRSIShortSeriesReturnsNeutral(t *testing.T) {
	if rsi := RSI([]float64{100, 101}, 14); rsi != 50 {
		t.Fatalf("expected neutral RSI for too-short series, got %f", rsi)
	}
}

func TestTrendClampsToUnitRange(t *testing.T) {
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = 0.05 + 0.01*float64(i%2)
	}
	if trend := Trend(returns); trend > 1 || trend < -1 {
		t.Fatalf("expected trend clamped to [-1,1], got %f", trend)
	}
}

func TestStdDevOfConstantSeriesIsZero(t *testing.T) {
	if sd := StdDev([]float64{1, 1, 1, 1}); sd != 0 {
		t.Fatalf("expected zero stddev for constant series, got %f", sd)
	}
}
