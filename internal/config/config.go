// Package config builds one validated, immutable snapshot of every
// tunable the engine needs, read from environment variables per
// SPEC_FULL.md §6. Each call to Load builds a new snapshot;
// nothing here mutates an existing Config.
package config

import (
	"fmt"
	"strings"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// IBKR holds broker endpoint settings.
type IBKR struct {
	Host      string
	Port      int
	ClientID  int
}

// AIKeys holds credentials for the rate-limited external advisors.
type AIKeys struct {
	OpenAIKey     string
	AnthropicKey  string
	NewsAPIKey    string
}

// Trading holds account-sizing tunables.
type Trading struct {
	AccountSize         decimal.Decimal
	MaxRiskPerTrade      decimal.Decimal // fraction of available_funds
	MaxAllocationPercent decimal.Decimal
}

// VIXThresholds must be strictly ascending: Low < Normal < Panic.
type VIXThresholds struct {
	Low    decimal.Decimal
	Normal decimal.Decimal
	Panic  decimal.Decimal
}

// Greeks holds the risk-gate Greeks thresholds.
type Greeks struct {
	CreditDeltaMin decimal.Decimal
	CreditDeltaMax decimal.Decimal
	DebitDeltaMin  decimal.Decimal
	DebitDeltaMax  decimal.Decimal
	MinDailyTheta  decimal.Decimal
	MaxGamma       decimal.Decimal
	MaxVegaPostVanna decimal.Decimal
	MaxBWDelta     decimal.Decimal
}

// Liquidity holds the liquidity gate thresholds.
type Liquidity struct {
	MaxBidAskSpread     decimal.Decimal
	MinVolumeOIRatioPct decimal.Decimal
}

// Exit holds the default (non-ML) trailing rules.
type Exit struct {
	TakeProfitPct    decimal.Decimal
	StopLossMultiplier decimal.Decimal
	TimeExitDTE       int
}

// Safety holds the guardrail switches.
type Safety struct {
	PaperTrading        bool
	AutoExecute         bool
	AllowDelayedData    bool
	EarningsBlackoutHours int
}

// External holds endpoints and per-UTC-day USD budgets for the
// rate-limited collaborators in internal/external (SPEC_FULL.md §4.5).
// An empty endpoint leaves the corresponding client effectively
// disabled: calls fail closed rather than reaching a real service.
type External struct {
	AdvisorEndpoint          string
	AdvisorDailyLimitUSD     float64
	AdvisorCostPerCall       float64
	AdvisorRequestsPerMinute int
	AITriggerPct             decimal.Decimal

	NewsEndpoint          string
	NewsDailyLimitUSD     float64
	NewsCostPerCall       float64

	PredictionEndpoint      string
	PredictionDailyLimitUSD float64
	PredictionCostPerCall   float64

	DividendEndpoint          string
	DividendDailyLimitUSD     float64
	DividendCostPerCall       float64
}

// Config is the full validated snapshot.
type Config struct {
	IBKR            IBKR
	AI              AIKeys
	Trading         Trading
	VIX             VIXThresholds
	Greeks          Greeks
	Liquidity       Liquidity
	Exit            Exit
	Safety          Safety
	External        External
	OrderTTLMinutes      int
	CleanupIntervalMinutes int
	DividendBlackoutDays int
	ConsecutiveLossLimit int
	DailyMaxLossPct      decimal.Decimal
	DatabasePath         string
	HistoricalCacheDir   string
	NotifierURL          string
	NotifierChatID       string
	TimeSourceURL        string
}

// Load builds one snapshot from environment variables via viper's
// AutomaticEnv binding, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		IBKR: IBKR{
			Host:     v.GetString("ibkr_host"),
			Port:     v.GetInt("ibkr_port"),
			ClientID: v.GetInt("ibkr_client_id"),
		},
		AI: AIKeys{
			OpenAIKey:    v.GetString("openai_api_key"),
			AnthropicKey: v.GetString("anthropic_api_key"),
			NewsAPIKey:   v.GetString("news_api_key"),
		},
		Trading: Trading{
			AccountSize:          decimalOf(v, "account_size"),
			MaxRiskPerTrade:      decimalOf(v, "max_risk_per_trade"),
			MaxAllocationPercent: decimalOf(v, "max_allocation_percent"),
		},
		VIX: VIXThresholds{
			Low:    decimalOf(v, "vix_low"),
			Normal: decimalOf(v, "vix_normal"),
			Panic:  decimalOf(v, "vix_panic"),
		},
		Greeks: Greeks{
			CreditDeltaMin:   decimalOf(v, "credit_delta_min"),
			CreditDeltaMax:   decimalOf(v, "credit_delta_max"),
			DebitDeltaMin:    decimalOf(v, "debit_delta_min"),
			DebitDeltaMax:    decimalOf(v, "debit_delta_max"),
			MinDailyTheta:    decimalOf(v, "min_daily_theta"),
			MaxGamma:         decimalOf(v, "max_gamma"),
			MaxVegaPostVanna: decimalOf(v, "max_vega_post_vanna"),
			MaxBWDelta:       decimalOf(v, "max_bw_delta"),
		},
		Liquidity: Liquidity{
			MaxBidAskSpread:     decimalOf(v, "max_bid_ask_spread"),
			MinVolumeOIRatioPct: decimalOf(v, "min_volume_oi_ratio_pct"),
		},
		Exit: Exit{
			TakeProfitPct:      decimalOf(v, "take_profit_pct"),
			StopLossMultiplier: decimalOf(v, "stop_loss_multiplier"),
			TimeExitDTE:        v.GetInt("time_exit_dte"),
		},
		Safety: Safety{
			PaperTrading:          v.GetBool("paper_trading"),
			AutoExecute:           v.GetBool("auto_execute"),
			AllowDelayedData:      v.GetBool("allow_delayed_data"),
			EarningsBlackoutHours: v.GetInt("earnings_blackout_hours"),
		},
		External: External{
			AdvisorEndpoint:          v.GetString("advisor_endpoint"),
			AdvisorDailyLimitUSD:     v.GetFloat64("advisor_daily_limit_usd"),
			AdvisorCostPerCall:       v.GetFloat64("advisor_cost_per_call"),
			AdvisorRequestsPerMinute: v.GetInt("advisor_requests_per_minute"),
			AITriggerPct:             decimalOf(v, "ai_trigger_pct"),
			NewsEndpoint:             v.GetString("news_endpoint"),
			NewsDailyLimitUSD:        v.GetFloat64("news_daily_limit_usd"),
			NewsCostPerCall:          v.GetFloat64("news_cost_per_call"),
			PredictionEndpoint:       v.GetString("prediction_endpoint"),
			PredictionDailyLimitUSD:  v.GetFloat64("prediction_daily_limit_usd"),
			PredictionCostPerCall:    v.GetFloat64("prediction_cost_per_call"),
			DividendEndpoint:         v.GetString("dividend_endpoint"),
			DividendDailyLimitUSD:    v.GetFloat64("dividend_daily_limit_usd"),
			DividendCostPerCall:      v.GetFloat64("dividend_cost_per_call"),
		},
		OrderTTLMinutes:      v.GetInt("order_ttl_minutes"),
		CleanupIntervalMinutes: v.GetInt("cleanup_interval_minutes"),
		DividendBlackoutDays: v.GetInt("dividend_blackout_days"),
		ConsecutiveLossLimit: v.GetInt("consecutive_loss_limit"),
		DailyMaxLossPct:      decimalOf(v, "daily_max_loss_pct"),
		DatabasePath:         v.GetString("database_path"),
		HistoricalCacheDir:   v.GetString("historical_cache_dir"),
		NotifierURL:          v.GetString("notifier_url"),
		NotifierChatID:       v.GetString("notifier_chat_id"),
		TimeSourceURL:        v.GetString("time_source_url"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decimalOf(v *viper.Viper, key string) decimal.Decimal {
	s := v.GetString(key)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ibkr_host", "127.0.0.1")
	v.SetDefault("ibkr_port", 7497)
	v.SetDefault("ibkr_client_id", 1)
	v.SetDefault("account_size", "100000")
	v.SetDefault("max_risk_per_trade", "0.02")
	v.SetDefault("max_allocation_percent", "0.5")
	v.SetDefault("vix_low", "15")
	v.SetDefault("vix_normal", "20")
	v.SetDefault("vix_panic", "30")
	v.SetDefault("credit_delta_min", "0.10")
	v.SetDefault("credit_delta_max", "0.30")
	v.SetDefault("debit_delta_min", "0.40")
	v.SetDefault("debit_delta_max", "0.70")
	v.SetDefault("min_daily_theta", "0.01")
	v.SetDefault("max_gamma", "0.05")
	v.SetDefault("max_vega_post_vanna", "50")
	v.SetDefault("max_bw_delta", "100")
	v.SetDefault("max_bid_ask_spread", "0.10")
	v.SetDefault("min_volume_oi_ratio_pct", "1")
	v.SetDefault("take_profit_pct", "0.5")
	v.SetDefault("stop_loss_multiplier", "2.5")
	v.SetDefault("time_exit_dte", "5")
	v.SetDefault("paper_trading", true)
	v.SetDefault("auto_execute", false)
	v.SetDefault("allow_delayed_data", false)
	v.SetDefault("earnings_blackout_hours", 48)
	v.SetDefault("order_ttl_minutes", 30)
	v.SetDefault("cleanup_interval_minutes", 5)
	v.SetDefault("dividend_blackout_days", 3)
	v.SetDefault("consecutive_loss_limit", 3)
	v.SetDefault("daily_max_loss_pct", "0.05")
	v.SetDefault("database_path", "data/engine.db")
	v.SetDefault("historical_cache_dir", "data/historical")
	v.SetDefault("time_source_url", "https://www.timeapi.io/api/time/current/zone?timeZone=America%2FNew_York")
}

// Validate fails fast per SPEC_FULL.md §4.2's explicit rules.
func (c *Config) Validate() error {
	var problems []string

	if c.Trading.MaxRiskPerTrade.Mul(c.Trading.AccountSize).GreaterThan(c.Trading.AccountSize) {
		problems = append(problems, "max_risk_per_trade implies risk-per-trade greater than account size")
	}
	if c.Trading.MaxAllocationPercent.GreaterThan(decimal.NewFromInt(1)) {
		problems = append(problems, "max_allocation_percent must not exceed 100%")
	}
	if !(c.VIX.Low.LessThan(c.VIX.Normal) && c.VIX.Normal.LessThan(c.VIX.Panic)) {
		problems = append(problems, "vix thresholds must be strictly ascending: low < normal < panic")
	}
	if c.Greeks.CreditDeltaMin.GreaterThanOrEqual(c.Greeks.CreditDeltaMax) {
		problems = append(problems, "credit_delta_min must be less than credit_delta_max")
	}
	if c.OrderTTLMinutes <= 0 {
		problems = append(problems, "order_ttl_minutes must be positive")
	}
	if c.ConsecutiveLossLimit <= 0 {
		problems = append(problems, "consecutive_loss_limit must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}
