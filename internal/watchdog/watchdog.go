// Package watchdog is the external liveness monitor for cmd/server
// (SPEC_FULL.md §4.16): a separate process that restarts the service
// when the systemd unit goes inactive, its log goes stale, or its log
// stops showing recent activity, rate-limited to 3 restarts/hour with
// a loud alert on exhaustion. Grounded verbatim on original_source's
// watchdog.py (ServiceWatchdog), restructured into the teacher's
// long-running-loop-under-shared-context idiom
// (internal/scheduler.Scheduler) and its gopsutil/v3 process-liveness
// check on aristath-sentinel/internal/server/system_handlers.go's
// getSystemStats use of the same library.
package watchdog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/atlas-desktop/options-engine/internal/notify"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Config holds every tunable the Python original read from the
// environment (LOG_FILE, MAX_LOG_AGE_SECONDS, SERVICE_NAME).
type Config struct {
	ServiceName        string
	LogPath            string
	MaxLogAge          time.Duration
	CheckInterval       time.Duration
	MaxRestartsPerHour int
	ActivityLines       int // tail window for the recent-activity check
}

// DefaultConfig matches the Python original's defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "options-engine",
		LogPath:            "logs/engine.log",
		MaxLogAge:          5 * time.Minute,
		CheckInterval:      60 * time.Second,
		MaxRestartsPerHour: 3,
		ActivityLines:      100,
	}
}

// activityPattern matches the Python original's substring list
// (VIX, Position, Update, Trading, Analysis) as one compiled regexp.
var activityPattern = regexp.MustCompile(`VIX|Position|Update|Trading|Analysis`)

// Watchdog runs run-health-check on an interval, restarting the
// monitored service through systemctl when checks fail.
type Watchdog struct {
	logger   *zap.Logger
	cfg      Config
	notifier *notify.Notifier

	restartTimes []time.Time
}

func New(logger *zap.Logger, cfg Config, notifier *notify.Notifier) *Watchdog {
	return &Watchdog{logger: logger.Named("watchdog"), cfg: cfg, notifier: notifier}
}

// Run checks health every CheckInterval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

// checkOnce runs every health check and restarts on failure, mirroring
// watchdog.py's run_health_check: any single failed check triggers a
// restart attempt, not just the service-active check.
func (w *Watchdog) checkOnce(ctx context.Context) {
	w.logger.Info("watchdog check started")

	serviceUp := w.checkServiceActive(ctx)
	if !serviceUp {
		w.logger.Error("service is not active")
	}
	logFresh := w.checkLogFreshness()
	if !logFresh {
		w.logger.Error("log file is stale or missing")
	}
	responsive := w.checkRecentActivity()
	if !responsive {
		w.logger.Warn("process may be hung, no recent activity in log")
	}

	if serviceUp && logFresh && responsive {
		w.logger.Info("watchdog check passed")
		return
	}

	w.logger.Warn("health checks failed, restarting service")
	reason := healthFailureReason(serviceUp, logFresh, responsive)
	if err := w.restart(ctx, reason); err != nil {
		w.logger.Error("restart attempt failed", zap.Error(err))
	}
}

func healthFailureReason(serviceUp, logFresh, responsive bool) string {
	var reasons []string
	if !serviceUp {
		reasons = append(reasons, "service inactive")
	}
	if !logFresh {
		reasons = append(reasons, "log stale")
	}
	if !responsive {
		reasons = append(reasons, "no recent activity")
	}
	return strings.Join(reasons, ", ")
}

// checkServiceActive runs `systemctl is-active <service>`, matching
// watchdog.py's check_service_running.
func (w *Watchdog) checkServiceActive(ctx context.Context) bool {
	cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(cmdCtx, "systemctl", "is-active", w.cfg.ServiceName).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}

// checkLogFreshness compares the log file's mtime against MaxLogAge,
// matching watchdog.py's check_log_freshness.
func (w *Watchdog) checkLogFreshness() bool {
	info, err := os.Stat(w.cfg.LogPath)
	if err != nil {
		w.logger.Warn("log file not found", zap.String("path", w.cfg.LogPath), zap.Error(err))
		return false
	}
	age := time.Since(info.ModTime())
	if age > w.cfg.MaxLogAge {
		w.logger.Warn("log file is stale", zap.Duration("age", age), zap.Duration("max_age", w.cfg.MaxLogAge))
		return false
	}
	return true
}

// checkRecentActivity tails the last ActivityLines of the log and
// looks for the trading-related keywords watchdog.py treats as signs
// of a live, non-hung process.
func (w *Watchdog) checkRecentActivity() bool {
	f, err := os.Open(w.cfg.LogPath)
	if err != nil {
		return false
	}
	defer f.Close()

	lines := tailLines(f, w.cfg.ActivityLines)
	for _, line := range lines {
		if activityPattern.MatchString(line) {
			return true
		}
	}
	return false
}

// tailLines reads the whole file and returns at most n trailing lines;
// good enough for the small log windows this check scans.
func tailLines(f *os.File, n int) []string {
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}

// restart enforces the 3/hour rate limit, then stops the service,
// kills any straggling process by name via gopsutil (the Go analogue
// of watchdog.py's `pkill -9 -f python.*main.py` backup step), and
// starts it again.
func (w *Watchdog) restart(ctx context.Context, reason string) error {
	w.pruneRestartWindow()
	if len(w.restartTimes) >= w.cfg.MaxRestartsPerHour {
		w.logger.Error("too many restarts in the last hour, manual intervention required",
			zap.Int("restart_count", len(w.restartTimes)))
		if w.notifier != nil {
			w.notifier.Publish(ctx, notify.WatchdogRestart("restart budget exhausted: "+reason, time.Now()), false)
		}
		return fmt.Errorf("watchdog: restart budget exhausted")
	}

	w.logger.Warn("attempting service restart", zap.String("service", w.cfg.ServiceName), zap.String("reason", reason))

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	_ = exec.CommandContext(stopCtx, "systemctl", "stop", w.cfg.ServiceName).Run()
	cancel()

	w.killStragglers(ctx)

	startCtx, cancel2 := context.WithTimeout(ctx, 10*time.Second)
	defer cancel2()
	if err := exec.CommandContext(startCtx, "systemctl", "start", w.cfg.ServiceName).Run(); err != nil {
		return fmt.Errorf("watchdog: start %s: %w", w.cfg.ServiceName, err)
	}

	w.restartTimes = append(w.restartTimes, time.Now())
	w.logger.Info("service restarted", zap.String("service", w.cfg.ServiceName), zap.Int("restart_count", len(w.restartTimes)))
	if w.notifier != nil {
		w.notifier.Publish(ctx, notify.WatchdogRestart(reason, time.Now()), false)
	}
	return nil
}

// killStragglers force-kills any process whose executable name
// matches the service binary, a backstop for a systemd stop that
// didn't actually end the process.
func (w *Watchdog) killStragglers(ctx context.Context) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		w.logger.Warn("failed to list processes for straggler check", zap.Error(err))
		return
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !strings.Contains(name, w.cfg.ServiceName) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			w.logger.Debug("failed to kill straggler process", zap.Int32("pid", p.Pid), zap.Error(err))
		}
	}
}

// pruneRestartWindow drops restart timestamps older than an hour,
// matching watchdog.py's can_restart counter reset.
func (w *Watchdog) pruneRestartWindow() {
	cutoff := time.Now().Add(-time.Hour)
	var kept []time.Time
	for _, t := range w.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.restartTimes = kept
}
