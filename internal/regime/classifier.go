package regime

import (
	"math"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"go.uber.org/zap"
)

// Result is a classifier's output: the regime, a confidence score,
// and the mode that produced it (observability requirement,
// SPEC_FULL.md §4.7).
type Result struct {
	Regime     domain.Regime
	Confidence float64
	Mode       domain.ClassifierMode
}

// Classifier is the pluggable capability: an ML variant backed by an
// HMM forward-algorithm state estimate, or a deterministic rule-based
// fallback when no trained model is present.
type Classifier interface {
	Classify(f Features) Result
}

// RuleBased applies the fixed decision tree given verbatim in
// SPEC_FULL.md §4.7 — new code, fully specified by the requirements,
// nothing to adapt from the teacher.
type RuleBased struct{}

func NewRuleBased() RuleBased { return RuleBased{} }

func (RuleBased) Classify(f Features) Result {
	switch {
	case f.VIX > 30:
		return Result{Regime: domain.RegimeExtremeStress, Confidence: 1, Mode: domain.ModeRuleBased}
	case f.VIX >= 15 && f.VIX <= 30 && f.Return20D < -0.05:
		return Result{Regime: domain.RegimeBearTrending, Confidence: 1, Mode: domain.ModeRuleBased}
	case f.VIX > 20 && math.Abs(f.Return20D) < 0.05:
		return Result{Regime: domain.RegimeHighVolNeutral, Confidence: 1, Mode: domain.ModeRuleBased}
	case f.VIX < 15 && f.Return20D > 0.03 && f.Price > f.SMA50:
		return Result{Regime: domain.RegimeBullTrending, Confidence: 1, Mode: domain.ModeRuleBased}
	default:
		return Result{Regime: domain.RegimeLowVolNeutral, Confidence: 1, Mode: domain.ModeRuleBased}
	}
}

// MLClassifier estimates regime state probabilities with an HMM
// forward pass over a rolling return window, directly adapted from
// the teacher's internal/regime/detector.go (RegimeDetector.
// calculateStateProbabilities/gaussianPDF/classifyRegime), generalized
// from the teacher's eight internal regime labels onto this package's
// five-regime domain.Regime enum. When the model's peak state
// probability is weak, it defers to vol/trend override rules carried
// over from the teacher's classifyRegime, themselves generalized to
// SPEC_FULL.md's thresholds.
type MLClassifier struct {
	logger *zap.Logger

	transitionMatrix [][]float64
	emissionMeans    []float64
	emissionVars     []float64

	returns []float64
	window  int
}

// regimeStates is the fixed ordering of HMM states mapped onto the
// five-regime output space.
var regimeStates = []domain.Regime{
	domain.RegimeBullTrending,
	domain.RegimeBearTrending,
	domain.RegimeHighVolNeutral,
	domain.RegimeLowVolNeutral,
}

// NewMLClassifier builds an HMM classifier with a sticky initial
// transition matrix (0.9 on the diagonal, the remaining 0.1 split
// evenly) and the teacher's starting emission parameters,
// over a rolling window of `window` daily returns.
func NewMLClassifier(logger *zap.Logger, window int) *MLClassifier {
	n := len(regimeStates)
	tm := make([][]float64, n)
	for i := range tm {
		tm[i] = make([]float64, n)
		for j := range tm[i] {
			if i == j {
				tm[i][j] = 0.9
			} else {
				tm[i][j] = 0.1 / float64(n-1)
			}
		}
	}
	return &MLClassifier{
		logger:           logger.Named("regime.ml"),
		transitionMatrix: tm,
		emissionMeans:    []float64{0.001, -0.001, 0.0, 0.0},
		emissionVars:     []float64{0.0001, 0.0001, 0.0004, 0.00005},
		window:           window,
	}
}

// Observe feeds one daily return into the rolling window used by the
// next Classify call.
func (m *MLClassifier) Observe(ret float64) {
	m.returns = append(m.returns, ret)
	if len(m.returns) > m.window*2 {
		m.returns = m.returns[len(m.returns)-m.window:]
	}
}

func (m *MLClassifier) forwardProbabilities() map[domain.Regime]float64 {
	n := len(regimeStates)
	alpha := make([]float64, n)
	for i := range alpha {
		alpha[i] = 1.0 / float64(n)
	}

	window := m.returns
	if len(window) > m.window {
		window = window[len(window)-m.window:]
	}

	for _, ret := range window {
		next := make([]float64, n)
		for j := 0; j < n; j++ {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += alpha[i] * m.transitionMatrix[i][j]
			}
			next[j] = sum * gaussianPDF(ret, m.emissionMeans[j], m.emissionVars[j])
		}
		total := 0.0
		for _, a := range next {
			total += a
		}
		if total > 0 {
			for j := range next {
				next[j] /= total
			}
		}
		alpha = next
	}

	probs := make(map[domain.Regime]float64, n)
	for i, r := range regimeStates {
		probs[r] = alpha[i]
	}
	return probs
}

func gaussianPDF(x, mean, variance float64) float64 {
	if variance <= 0 {
		variance = 0.0001
	}
	diff := x - mean
	return math.Exp(-0.5*diff*diff/variance) / math.Sqrt(2*math.Pi*variance)
}

// Classify combines the HMM's state probabilities with vol/trend
// overrides, matching the teacher's classifyRegime precedence: a
// strong vol or trend signal overrides a weak HMM peak probability
// (< 0.7).
func (m *MLClassifier) Classify(f Features) Result {
	if len(m.returns) < m.window {
		return Result{}
	}
	probs := m.forwardProbabilities()

	best := domain.RegimeLowVolNeutral
	bestProb := 0.0
	for r, p := range probs {
		if p > bestProb {
			bestProb = p
			best = r
		}
	}

	if f.VIX > 30 {
		return Result{Regime: domain.RegimeExtremeStress, Confidence: math.Min(1, 0.7+f.VIX/100), Mode: domain.ModeML}
	}
	if bestProb < 0.7 {
		trend := Trend(m.returns)
		switch {
		case f.VIX > 20 && math.Abs(trend) < 0.3:
			best, bestProb = domain.RegimeHighVolNeutral, math.Min(1, 0.5+f.VIX/60)
		case trend > 0.3:
			best, bestProb = domain.RegimeBullTrending, math.Min(1, 0.5+trend/2)
		case trend < -0.3:
			best, bestProb = domain.RegimeBearTrending, math.Min(1, 0.5+math.Abs(trend)/2)
		}
	}

	return Result{Regime: best, Confidence: math.Min(1, bestProb), Mode: domain.ModeML}
}
