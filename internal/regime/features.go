// Package regime classifies current market conditions into one of a
// fixed set of regimes and derives the strategy kinds each regime
// prefers (SPEC_FULL.md §4.7).
package regime

import "math"

// Features is the fixed-length feature vector the classifier
// consumes, extracted from SPY/VIX snapshots and candidate telemetry.
type Features struct {
	VIX              float64
	VIXRatio         float64 // VIX / VIX3M
	IVRank           float64
	HVPercentile     float64
	Return1D         float64
	Return5D         float64
	Return20D        float64
	ATRPercent       float64
	BollingerWidth   float64
	VolumeRatio      float64
	VWAPDeviation    float64
	PutCallRatio     float64
	AdvanceDecline   float64
	RSI14            float64
	MACDNormalized   float64
	Price            float64
	SMA50            float64
}

// RSI computes the 14-period relative strength index over closes,
// conventions grounded on the teacher ecosystem's
// trader-go/pkg/formulas/rsi.go (Wilder smoothing).
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDNormalized returns the normalized MACD value (MACD line divided
// by the slow EMA, so it is comparable across price levels).
func MACDNormalized(closes []float64) float64 {
	if len(closes) < 26 {
		return 0
	}
	fast := ema(closes, 12)
	slow := ema(closes, 26)
	if slow == 0 {
		return 0
	}
	return (fast - slow) / slow
}

func ema(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	k := 2.0 / (float64(period) + 1)
	e := values[0]
	for _, v := range values[1:] {
		e = v*k + e*(1-k)
	}
	return e
}

// Trend returns the sum of returns normalized by volatility, clamped
// to [-1, 1] — the teacher's calculateTrend shape.
func Trend(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	vol := StdDev(returns)
	if vol == 0 {
		return 0
	}
	trend := sum / (vol * math.Sqrt(float64(len(returns))))
	if trend > 1 {
		return 1
	}
	if trend < -1 {
		return -1
	}
	return trend
}

// StdDev returns the sample standard deviation — the teacher's
// calculateVolatility shape, kept verbatim.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}
