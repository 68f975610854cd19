package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"go.uber.org/zap"
)

// NewsClient, PredictionMarketClient and DividendClient are the
// remaining rate-limited external collaborators named in SPEC_FULL.md
// §1/§4.5. Each is an opaque request/response service the core
// consumes through a narrow typed method; none of them make trading
// decisions.

type httpBudgeted struct {
	logger     *zap.Logger
	httpClient *http.Client
	endpoint   string
	budget     *Budget
	costPerCall float64
}

func newHTTPBudgeted(logger *zap.Logger, name, endpoint string, dailyLimitUSD, costPerCall float64) httpBudgeted {
	return httpBudgeted{
		logger:      logger.Named("external." + name),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		endpoint:    endpoint,
		budget:      NewBudget(logger, name, dailyLimitUSD),
		costPerCall: costPerCall,
	}
}

func (h *httpBudgeted) get(ctx context.Context, query string, out any) error {
	if !h.budget.CanRequest() {
		return apperr.ErrAIUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+query, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.budget.RecordUsage(0)
		return fmt.Errorf("external: request failed: %w", err)
	}
	defer resp.Body.Close()
	h.budget.RecordUsage(h.costPerCall)
	return json.NewDecoder(resp.Body).Decode(out)
}

// NewsClient fetches recent headlines for earnings/sentiment context.
type NewsClient struct{ httpBudgeted }

func NewNewsClient(logger *zap.Logger, endpoint string, dailyLimitUSD, costPerCall float64) *NewsClient {
	return &NewsClient{newHTTPBudgeted(logger, "news", endpoint, dailyLimitUSD, costPerCall)}
}

// Headline is one news item relevant to a symbol.
type Headline struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Sentiment float64   `json:"sentiment"`
	At        time.Time `json:"at"`
}

func (c *NewsClient) RecentHeadlines(ctx context.Context, symbol string) ([]Headline, error) {
	var out []Headline
	err := c.get(ctx, "?symbol="+symbol, &out)
	return out, err
}

// PredictionMarketClient surfaces crowd-sourced event probabilities
// (e.g. Fed decision odds). The regime engine does not read these odds.
type PredictionMarketClient struct{ httpBudgeted }

func NewPredictionMarketClient(logger *zap.Logger, endpoint string, dailyLimitUSD, costPerCall float64) *PredictionMarketClient {
	return &PredictionMarketClient{newHTTPBudgeted(logger, "prediction_market", endpoint, dailyLimitUSD, costPerCall)}
}

// EventOdds is one market's implied probability.
type EventOdds struct {
	Market      string  `json:"market"`
	Probability float64 `json:"probability"`
}

func (c *PredictionMarketClient) Odds(ctx context.Context, market string) (EventOdds, error) {
	var out EventOdds
	err := c.get(ctx, "?market="+market, &out)
	return out, err
}

// DividendClient feeds the dividend blackout gate (§4.10 item 4).
type DividendClient struct{ httpBudgeted }

func NewDividendClient(logger *zap.Logger, endpoint string, dailyLimitUSD, costPerCall float64) *DividendClient {
	return &DividendClient{newHTTPBudgeted(logger, "dividend", endpoint, dailyLimitUSD, costPerCall)}
}

// ExDividendInfo carries the next ex-dividend date for a symbol; ExDate
// is the zero time if none is scheduled.
type ExDividendInfo struct {
	ExDate time.Time `json:"ex_date"`
}

func (c *DividendClient) NextExDividend(ctx context.Context, symbol string) (ExDividendInfo, error) {
	var out ExDividendInfo
	err := c.get(ctx, "?symbol="+symbol, &out)
	return out, err
}
