package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdvisorResponse is the parsed, validated shape of an AI advisor's
// JSON reply (SPEC_FULL.md §6). Unparsable responses map to REJECT;
// SCHVALENO and ZAMITNUTO are folded onto APPROVE and REJECT at this
// boundary; UPRAVIT is kept as the canonical revise verdict.
type AdvisorResponse struct {
	Verdict        domain.AIVerdict
	ConfidenceScore int
	Strategy        string
	ShortStrike     float64
	LongStrike      float64
	Expiration      string
	LimitPrice      float64
	TakeProfit      float64
	StopLoss        float64
	Reasoning       string
}

type rawAdvisorResponse struct {
	Verdict         string  `json:"verdict"`
	ConfidenceScore int     `json:"confidence_score"`
	Strategy        string  `json:"strategy"`
	ShortStrike     float64 `json:"short_strike"`
	LongStrike      float64 `json:"long_strike"`
	Expiration      string  `json:"expiration"`
	LimitPrice      float64 `json:"limit_price"`
	TakeProfit      float64 `json:"take_profit"`
	StopLoss        float64 `json:"stop_loss"`
	Reasoning       string  `json:"reasoning"`
}

// parseVerdict maps the raw verdict string onto the canonical
// AIVerdict; any unrecognized value is REJECT (never silently
// auto-approved).
func parseVerdict(raw string) domain.AIVerdict {
	switch raw {
	case "APPROVE", "SCHVALENO":
		return domain.VerdictApprove
	case "UPRAVIT":
		return domain.VerdictRevise
	case "REJECT", "ZAMITNUTO":
		return domain.VerdictReject
	default:
		return domain.VerdictReject
	}
}

// Advisor is a rate-limited AI advisor client. Every call carries a
// single prompt string and expects a JSON object in return.
type Advisor struct {
	logger      *zap.Logger
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	budget      *Budget
	costPerCall float64
	limiter     *rate.Limiter
}

// NewAdvisor constructs an advisor client with a daily USD budget and
// a requests-per-minute pacing limiter.
func NewAdvisor(logger *zap.Logger, name, endpoint, apiKey string, dailyLimitUSD, costPerCall float64, requestsPerMinute int) *Advisor {
	return &Advisor{
		logger:      logger.Named("advisor." + name),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		endpoint:    endpoint,
		apiKey:      apiKey,
		budget:      NewBudget(logger, name, dailyLimitUSD),
		costPerCall: costPerCall,
		limiter:     rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
	}
}

// CanRequest exposes the underlying budget check so callers can skip
// the advisor entirely without attempting the call.
func (a *Advisor) CanRequest() bool { return a.budget.CanRequest() }

// Ask sends prompt and parses the advisor's JSON reply. If the budget
// is exhausted, it returns ErrAIUnavailable without making a network
// call.
func (a *Advisor) Ask(ctx context.Context, prompt string) (AdvisorResponse, error) {
	if !a.budget.CanRequest() {
		return AdvisorResponse{}, apperr.ErrAIUnavailable
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return AdvisorResponse{}, err
	}

	body, _ := json.Marshal(map[string]string{"prompt": prompt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return AdvisorResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.budget.RecordUsage(0)
		return AdvisorResponse{Verdict: domain.VerdictReject}, fmt.Errorf("%w: %v", apperr.ErrAIUnavailable, err)
	}
	defer resp.Body.Close()
	a.budget.RecordUsage(a.costPerCall)

	var raw rawAdvisorResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		a.logger.Warn("advisor response unparsable, mapping to REJECT", zap.Error(err))
		return AdvisorResponse{Verdict: domain.VerdictReject}, nil
	}

	return AdvisorResponse{
		Verdict:         parseVerdict(raw.Verdict),
		ConfidenceScore: raw.ConfidenceScore,
		Strategy:        raw.Strategy,
		ShortStrike:     raw.ShortStrike,
		LongStrike:      raw.LongStrike,
		Expiration:      raw.Expiration,
		LimitPrice:      raw.LimitPrice,
		TakeProfit:      raw.TakeProfit,
		StopLoss:        raw.StopLoss,
		Reasoning:       raw.Reasoning,
	}, nil
}

// ExitOpinion asks the advisor for a second opinion on an open
// position and maps the verdict field onto an action: REJECT becomes
// EXIT_NOW, UPRAVIT becomes TIGHTEN_STOP, and anything else AGREE.
// ADJUST_PROFIT is never returned.
func (a *Advisor) ExitOpinion(ctx context.Context, prompt string) (domain.AIAction, error) {
	if !a.budget.CanRequest() {
		return domain.AIActionAgree, apperr.ErrAIUnavailable
	}
	resp, err := a.Ask(ctx, prompt)
	if err != nil {
		return domain.AIActionAgree, err
	}
	switch resp.Verdict {
	case domain.VerdictReject:
		return domain.AIActionExitNow, nil
	case domain.VerdictRevise:
		return domain.AIActionTightenStop, nil
	default:
		return domain.AIActionAgree, nil
	}
}
