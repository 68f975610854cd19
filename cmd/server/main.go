// Command server is the CLI entry point for the options-trading
// engine (SPEC_FULL.md §6): it loads configuration, builds every
// collaborator, and runs the Engine's scheduler/monitor/reconciler
// loops until a termination signal arrives. It makes no trading
// decisions itself — that is the Engine's job.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/options-engine/internal/api"
	"github.com/atlas-desktop/options-engine/internal/broker"
	"github.com/atlas-desktop/options-engine/internal/clock"
	"github.com/atlas-desktop/options-engine/internal/config"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/atlas-desktop/options-engine/internal/engine"
	"github.com/atlas-desktop/options-engine/internal/external"
	"github.com/atlas-desktop/options-engine/internal/notify"
	"github.com/atlas-desktop/options-engine/internal/orders"
	"github.com/atlas-desktop/options-engine/internal/position"
	"github.com/atlas-desktop/options-engine/internal/pricing"
	"github.com/atlas-desktop/options-engine/internal/reconcile"
	"github.com/atlas-desktop/options-engine/internal/regime"
	"github.com/atlas-desktop/options-engine/internal/risk"
	"github.com/atlas-desktop/options-engine/internal/roll"
	"github.com/atlas-desktop/options-engine/internal/screener"
	"github.com/atlas-desktop/options-engine/internal/store"
	"github.com/atlas-desktop/options-engine/internal/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	apiAddr := flag.String("addr", ":8080", "operational status/metrics server address")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("starting options-trading engine",
		zap.Bool("paper_trading", cfg.Safety.PaperTrading),
		zap.String("database_path", cfg.DatabasePath),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clk, err := clock.New(logger, &clock.HTTPTimeSource{URL: cfg.TimeSourceURL, Client: &http.Client{Timeout: 5 * time.Second}})
	if err != nil {
		logger.Fatal("failed to start clock", zap.Error(err))
	}
	go clk.Run(ctx)

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()
	st := store.New(db, logger)

	// The broker's wire protocol (proprietary TWS/Gateway binary
	// framing over a local socket) is an out-of-scope external
	// collaborator per SPEC_FULL.md §1/§6; this engine plugs in the
	// in-repo paper transport as the concrete rawClient the Adapter
	// wraps, the same way the teacher's executor took its exchange
	// adapters "set via env." A production deployment supplies a real
	// TWS/Gateway client satisfying the same broker.Broker contract.
	if !cfg.Safety.PaperTrading {
		logger.Warn("live trading requested but no TWS/Gateway client is wired in this build; falling back to the paper transport")
	}
	seedAccount := domain.AccountSummary{
		NetLiquidation:     cfg.Trading.AccountSize,
		AvailableFunds:     cfg.Trading.AccountSize,
		BuyingPower:        cfg.Trading.AccountSize,
		TotalCash:          cfg.Trading.AccountSize,
		GrossPositionValue: decimal.Zero,
	}
	brk := broker.NewAdapter(logger, broker.NewPaperTransport(seedAccount), broker.Config{AllowDelayedData: cfg.Safety.AllowDelayedData})
	if err := brk.Connect(ctx); err != nil {
		logger.Fatal("failed to connect to broker after retries", zap.Error(err))
	}
	defer brk.Disconnect(ctx)

	spy, err := brk.Qualify(ctx, broker.Contract{Symbol: "SPY"})
	if err != nil {
		logger.Fatal("failed to qualify SPY benchmark contract", zap.Error(err))
	}

	notifier := notify.New(logger, cfg.NotifierURL, cfg.NotifierChatID)
	newID := func() string { return uuid.NewString() }

	pricingEngine := pricing.NewEngine(logger, brk)
	regimeEngine := regime.NewEngine(regime.NewMLClassifier(logger, 252), cfg.VIX.Panic.InexactFloat64())

	scr := screener.New(logger, brk, screener.Config{MinPrice: 20, MaxPrice: 500})

	registry := strategy.NewRegistry(logger)
	registry.Register(strategy.NewVerticalCreditBuilder(logger, domain.StrategyVerticalCreditCall))
	registry.Register(strategy.NewVerticalCreditBuilder(logger, domain.StrategyVerticalCreditPut))
	registry.Register(strategy.NewVerticalDebitBuilder(logger, domain.StrategyVerticalDebitCall))
	registry.Register(strategy.NewVerticalDebitBuilder(logger, domain.StrategyVerticalDebitPut))
	registry.Register(strategy.NewIronCondorBuilder(logger))
	registry.Register(strategy.NewIronButterflyBuilder(logger))
	registry.Register(strategy.NewCalendarBuilder(logger))

	breaker := risk.NewCircuitBreaker(logger, st, newID, cfg.ConsecutiveLossLimit, cfg.DailyMaxLossPct, cfg.Trading.AccountSize)
	gates := risk.NewGates(logger, breaker, cfg, pricingEngine)
	betaSource := risk.NewGonumBetaSource(logger, brk, spy)

	orderManager := orders.NewManager(logger, brk, st, newID)
	tracker := position.NewTracker(logger, brk)

	var advisor *external.Advisor
	if cfg.External.AdvisorEndpoint != "" {
		advisor = external.NewAdvisor(logger, "primary", cfg.External.AdvisorEndpoint, cfg.AI.OpenAIKey, cfg.External.AdvisorDailyLimitUSD, cfg.External.AdvisorCostPerCall, cfg.External.AdvisorRequestsPerMinute)
	}
	var exitAdvisor position.Advisor
	if advisor != nil {
		exitAdvisor = advisor
	}
	exitManager := position.NewExitManager(logger, st, orderManager, nil, exitAdvisor, newID, cfg.Exit.TimeExitDTE, cfg.External.AITriggerPct)
	rollManager := roll.NewManager(logger, orderManager, engine.NewChainLookup(brk, clk.Now))
	reconciler := reconcile.NewReconciler(logger, st, brk, clk.Now)

	var newsClient *external.NewsClient
	if cfg.External.NewsEndpoint != "" {
		newsClient = external.NewNewsClient(logger, cfg.External.NewsEndpoint, cfg.External.NewsDailyLimitUSD, cfg.External.NewsCostPerCall)
	}
	var predictionClient *external.PredictionMarketClient
	if cfg.External.PredictionEndpoint != "" {
		predictionClient = external.NewPredictionMarketClient(logger, cfg.External.PredictionEndpoint, cfg.External.PredictionDailyLimitUSD, cfg.External.PredictionCostPerCall)
	}
	var dividendClient *external.DividendClient
	if cfg.External.DividendEndpoint != "" {
		dividendClient = external.NewDividendClient(logger, cfg.External.DividendEndpoint, cfg.External.DividendDailyLimitUSD, cfg.External.DividendCostPerCall)
	}

	eng := engine.New(engine.Deps{
		Logger: logger,
		Cfg:    cfg,
		Clock:  clk,

		Store:  st,
		Broker: brk,

		Pricing:  pricingEngine,
		Regime:   regimeEngine,
		Screener: scr,
		Registry: registry,
		Gates:    gates,
		Breaker:  breaker,

		OrderManager: orderManager,
		Tracker:      tracker,
		ExitManager:  exitManager,
		RollManager:  rollManager,
		Reconciler:   reconciler,
		Notifier:     notifier,

		Advisor:    advisor,
		News:       newsClient,
		Prediction: predictionClient,
		Dividend:   dividendClient,
		Beta:       betaSource,

		SPY: spy,
	})

	statusServer := api.NewStatusServer(logger, *apiAddr, st)
	go func() {
		if err := statusServer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("status server error", zap.Error(err))
		}
	}()

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("engine stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
