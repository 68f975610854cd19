package watchdog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testWatchdog(t *testing.T, cfg Config) *Watchdog {
	t.Helper()
	return New(zap.NewNop(), cfg, nil)
}

func TestCheckLogFreshnessFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	w := testWatchdog(t, Config{LogPath: path, MaxLogAge: time.Minute})
	if !w.checkLogFreshness() {
		t.Fatalf("expected fresh log to pass")
	}
}

func TestCheckLogFreshnessStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	w := testWatchdog(t, Config{LogPath: path, MaxLogAge: time.Minute})
	if w.checkLogFreshness() {
		t.Fatalf("expected stale log to fail")
	}
}

func TestCheckLogFreshnessMissingFile(t *testing.T) {
	w := testWatchdog(t, Config{LogPath: filepath.Join(t.TempDir(), "missing.log"), MaxLogAge: time.Minute})
	if w.checkLogFreshness() {
		t.Fatalf("expected missing log to fail")
	}
}

func TestCheckRecentActivityDetectsKeyword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	content := "2026-07-29 10:00:00 INFO starting scan\n2026-07-29 10:00:05 INFO VIX regime updated\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	w := testWatchdog(t, Config{LogPath: path, ActivityLines: 100})
	if !w.checkRecentActivity() {
		t.Fatalf("expected keyword match to count as activity")
	}
}

func TestCheckRecentActivityNoKeyword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	content := "2026-07-29 10:00:00 INFO heartbeat\n2026-07-29 10:00:05 INFO heartbeat\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	w := testWatchdog(t, Config{LogPath: path, ActivityLines: 100})
	if w.checkRecentActivity() {
		t.Fatalf("expected no activity match")
	}
}

func TestPruneRestartWindowDropsOldEntries(t *testing.T) {
	w := testWatchdog(t, Config{MaxRestartsPerHour: 3})
	w.restartTimes = []time.Time{
		time.Now().Add(-2 * time.Hour),
		time.Now().Add(-30 * time.Minute),
		time.Now(),
	}
	w.pruneRestartWindow()
	if len(w.restartTimes) != 2 {
		t.Fatalf("expected 2 restarts within the last hour, got %d", len(w.restartTimes))
	}
}

func TestHealthFailureReasonListsEveryFailedCheck(t *testing.T) {
	reason := healthFailureReason(false, false, true)
	if reason != "service inactive, log stale" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}
