package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func et(hour, minute int) time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	return time.Date(2026, 7, 29, hour, minute, 0, 0, loc)
}

func TestTierIntervalBoundaries(t *testing.T) {
	cases := []struct {
		name         string
		t            time.Time
		wantInterval time.Duration
		wantInWindow bool
	}{
		{"before open", et(9, 0), 0, false},
		{"at open", et(9, 30), 15 * time.Minute, true},
		{"mid first tier", et(10, 0), 15 * time.Minute, true},
		{"second tier start", et(10, 30), 30 * time.Minute, true},
		{"third tier start", et(11, 0), 60 * time.Minute, true},
		{"mid third tier", et(13, 0), 60 * time.Minute, true},
		{"fourth tier start", et(14, 30), 30 * time.Minute, true},
		{"at close", et(16, 0), 0, false},
		{"after close", et(17, 0), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotInterval, gotInWindow := tierInterval(tc.t)
			if gotInWindow != tc.wantInWindow {
				t.Fatalf("inWindow: got %v, want %v", gotInWindow, tc.wantInWindow)
			}
			if gotInWindow && gotInterval != tc.wantInterval {
				t.Fatalf("interval: got %s, want %s", gotInterval, tc.wantInterval)
			}
		})
	}
}

func TestSleepOrDoneReturnsTrueOnTimerFire(t *testing.T) {
	if !sleepOrDone(context.Background(), time.Millisecond) {
		t.Fatalf("expected true when timer fires before cancellation")
	}
}

func TestSleepOrDoneReturnsFalseOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepOrDone(ctx, time.Hour) {
		t.Fatalf("expected false when context already cancelled")
	}
}

func TestRunJobLogsAndSwallowsError(t *testing.T) {
	s := &Scheduler{logger: zap.NewNop()}
	called := false
	fn := s.runJob(context.Background(), "test", func(ctx context.Context) error {
		called = true
		return errors.New("job failed")
	})
	fn()
	if !called {
		t.Fatalf("expected wrapped job to run")
	}
}
