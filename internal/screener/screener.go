// Package screener finds options-trading candidates by invoking the
// broker's high-implied-volatility scanner and scoring the results
// (SPEC_FULL.md §4.8).
package screener

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxScanResults = 50

// Scanner is the narrow broker capability the screener needs: run the
// HIGH_OPT_IMP_VOLAT scan and subscribe briefly to each symbol's
// market data for an IV rank reading.
type Scanner interface {
	ScanHighImpliedVol(ctx context.Context, minPrice, maxPrice float64) ([]broker.ScanResult, error)
	IVRank(ctx context.Context, symbol string) (float64, error)
}

// Screener enriches scanner output into scored Candidates, fanning
// out per-symbol IV-rank lookups with a bounded worker pool — grounded
// on the teacher's internal/signals/aggregator.go concurrent
// per-source fan-out idiom, narrowed from N signal sources to N
// concurrent per-symbol enrichments.
type Screener struct {
	logger     *zap.Logger
	scanner    Scanner
	minPrice   float64
	maxPrice   float64
	workers    int
	subscribeTimeout time.Duration
}

// Config configures screening bounds.
type Config struct {
	MinPrice         float64
	MaxPrice         float64
	Workers          int
	SubscribeTimeout time.Duration
}

// New constructs a Screener.
func New(logger *zap.Logger, scanner Scanner, cfg Config) *Screener {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	timeout := cfg.SubscribeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Screener{
		logger:           logger.Named("screener"),
		scanner:          scanner,
		minPrice:         cfg.MinPrice,
		maxPrice:         cfg.MaxPrice,
		workers:          workers,
		subscribeTimeout: timeout,
	}
}

// Top runs the scan, enriches and scores every result concurrently,
// and returns the top n candidates sorted by descending score.
func (s *Screener) Top(ctx context.Context, n int) ([]domain.Candidate, error) {
	raw, err := s.scanner.ScanHighImpliedVol(ctx, s.minPrice, s.maxPrice)
	if err != nil {
		return nil, err
	}
	if len(raw) > maxScanResults {
		raw = raw[:maxScanResults]
	}

	jobs := make(chan broker.ScanResult)
	results := make(chan domain.Candidate, len(raw))
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				c, ok := s.enrich(ctx, r)
				if ok {
					results <- c
				}
			}
		}()
	}
	for _, r := range raw {
		jobs <- r
	}
	close(jobs)
	wg.Wait()
	close(results)

	candidates := make([]domain.Candidate, 0, len(raw))
	for c := range results {
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score.GreaterThan(candidates[j].Score) })
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

func (s *Screener) enrich(ctx context.Context, r broker.ScanResult) (domain.Candidate, bool) {
	subCtx, cancel := context.WithTimeout(ctx, s.subscribeTimeout)
	defer cancel()

	ivRank, err := s.scanner.IVRank(subCtx, r.Symbol)
	if err != nil {
		s.logger.Warn("iv rank lookup failed, dropping candidate", zap.String("symbol", r.Symbol), zap.Error(err))
		return domain.Candidate{}, false
	}

	score := Score(ivRank, r.Price, s.minPrice, s.maxPrice, r.Volume)
	return domain.Candidate{
		Symbol: r.Symbol,
		Price:  decimal.NewFromFloat(r.Price),
		IVRank: decimal.NewFromFloat(ivRank),
		Volume: r.Volume,
		Sector: r.Sector,
		Score:  decimal.NewFromFloat(score),
	}, true
}

// Score implements SPEC_FULL.md §4.8's scoring formula:
// IV-rank·0.5 + mid-price-band·25 + volume-band·25, where the
// price-band term is in [0,1] (1 = centered in band, 0 = at or beyond
// an edge) and the volume-band term is volume/1,000,000 capped at 1.
func Score(ivRank, price, minPrice, maxPrice float64, volume int64) float64 {
	priceBand := bandScore(price, minPrice, maxPrice)
	volumeBand := math.Min(1, float64(volume)/1_000_000)
	return ivRank*0.5 + priceBand*25 + volumeBand*25
}

func bandScore(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	mid := (min + max) / 2
	halfWidth := (max - min) / 2
	dist := math.Abs(value-mid) / halfWidth
	if dist > 1 {
		return 0
	}
	return 1 - dist
}
