// Command watchdog is the external liveness monitor for cmd/server
// (SPEC_FULL.md §4.16): a standalone process, run out of systemd or
// cron alongside the engine, never imported by it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/options-engine/internal/notify"
	"github.com/atlas-desktop/options-engine/internal/watchdog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	serviceName := flag.String("service", "options-engine", "systemd unit name to monitor")
	logPath := flag.String("log-path", "logs/engine.log", "engine log file to check for freshness/activity")
	maxLogAge := flag.Duration("max-log-age", 5*time.Minute, "log file is considered stale past this age")
	checkInterval := flag.Duration("check-interval", 60*time.Second, "how often to run health checks")
	maxRestartsPerHour := flag.Int("max-restarts-per-hour", 3, "restart budget before giving up and alerting")
	notifierURL := flag.String("notifier-url", "", "Notifier channel URL for WatchdogRestart alerts")
	notifierChatID := flag.String("notifier-chat-id", "", "Notifier channel chat id")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier := notify.New(logger, *notifierURL, *notifierChatID)
	cfg := watchdog.Config{
		ServiceName:        *serviceName,
		LogPath:            *logPath,
		MaxLogAge:          *maxLogAge,
		CheckInterval:      *checkInterval,
		MaxRestartsPerHour: *maxRestartsPerHour,
		ActivityLines:      100,
	}

	w := watchdog.New(logger, cfg, notifier)
	logger.Info("watchdog starting", zap.String("service", cfg.ServiceName), zap.String("log_path", cfg.LogPath))
	w.Run(ctx)
	logger.Info("watchdog stopped")
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
