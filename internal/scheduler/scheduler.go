// Package scheduler drives every event clock the engine runs on
// (SPEC_FULL.md §4.15): premarket scan, the tiered market-hours scan
// cadence, the order-TTL sweep, 16:15 shadow-trade evaluation, the
// Monday 17:00 loss-analysis summary and the first-of-month retrain
// signal. Grounded on two sources: the teacher's
// internal/workers/pool.go long-running-loop-under-shared-context
// idiom for every hand-rolled loop here, and aristath-sentinel's
// internal/scheduler package for the robfig/cron/v3 wiring used by the
// calendar-style cadences.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/options-engine/internal/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one independently-failing unit of scheduled work: a single
// failure is logged and the next tick retries (SPEC_FULL.md §4.15,
// "a single failure never corrupts state").
type Job func(ctx context.Context) error

// Jobs is every cadence the Scheduler drives, wired in by
// internal/engine.
type Jobs struct {
	Premarket     Job // 08:45 ET, at most once/day
	Scan          Job // tiered market-hours cadence
	TTLSweep      Job // every CleanupInterval, market hours only
	ShadowEval    Job // 16:15 ET daily
	LossAnalysis  Job // Monday 17:00 ET
	RetrainSignal Job // first-of-month 00:00 UTC
}

// Scheduler owns every cadence loop under one shared cancellation
// context (SPEC_FULL.md §4.15/§5).
type Scheduler struct {
	logger          *zap.Logger
	clk             *clock.Clock
	jobs            Jobs
	cleanupInterval time.Duration

	easternCron *cron.Cron
	utcCron     *cron.Cron
}

// New builds a Scheduler. cleanupInterval is read from
// config.Config.CleanupIntervalMinutes by the caller.
func New(logger *zap.Logger, clk *clock.Clock, jobs Jobs, cleanupInterval time.Duration) (*Scheduler, error) {
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("scheduler: load America/New_York: %w", err)
	}
	return &Scheduler{
		logger:          logger.Named("scheduler"),
		clk:             clk,
		jobs:            jobs,
		cleanupInterval: cleanupInterval,
		easternCron:     cron.New(cron.WithLocation(eastern)),
		utcCron:         cron.New(cron.WithLocation(time.UTC)),
	}, nil
}

// Run registers every calendar cadence on its cron instance, starts
// the two hand-rolled interval loops, and blocks until ctx is
// cancelled, at which point it stops both crons and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.easternCron.AddFunc("0 45 8 * * *", s.runJob(ctx, "premarket", s.jobs.Premarket)); err != nil {
		return fmt.Errorf("scheduler: register premarket: %w", err)
	}
	if _, err := s.easternCron.AddFunc("0 15 16 * * *", s.runJob(ctx, "shadow_eval", s.jobs.ShadowEval)); err != nil {
		return fmt.Errorf("scheduler: register shadow_eval: %w", err)
	}
	if _, err := s.easternCron.AddFunc("0 0 17 * * MON", s.runJob(ctx, "loss_analysis", s.jobs.LossAnalysis)); err != nil {
		return fmt.Errorf("scheduler: register loss_analysis: %w", err)
	}
	if _, err := s.utcCron.AddFunc("0 0 0 1 * *", s.runJob(ctx, "retrain_signal", s.jobs.RetrainSignal)); err != nil {
		return fmt.Errorf("scheduler: register retrain_signal: %w", err)
	}

	s.easternCron.Start()
	s.utcCron.Start()
	defer func() {
		<-s.easternCron.Stop().Done()
		<-s.utcCron.Stop().Done()
	}()

	done := make(chan struct{}, 2)
	go func() { s.tieredScanLoop(ctx); done <- struct{}{} }()
	go func() { s.ttlSweepLoop(ctx); done <- struct{}{} }()

	<-ctx.Done()
	<-done
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}

// runJob wraps a Job as the plain func() cron.AddFunc wants, logging
// failures instead of propagating them — one cadence's error never
// blocks another.
func (s *Scheduler) runJob(ctx context.Context, name string, job Job) func() {
	return func() {
		if job == nil {
			return
		}
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// tierInterval returns the scan cadence for t-of-day in US/Eastern and
// whether t falls within the scan window at all (SPEC_FULL.md §4.15):
//
//	09:30-10:30 every 15m; 10:30-11:00 every 30m;
//	11:00-14:30 every 60m; 14:30-16:00 every 30m.
func tierInterval(t time.Time) (time.Duration, bool) {
	minutesOfDay := t.Hour()*60 + t.Minute()
	switch {
	case minutesOfDay >= 9*60+30 && minutesOfDay < 10*60+30:
		return 15 * time.Minute, true
	case minutesOfDay >= 10*60+30 && minutesOfDay < 11*60:
		return 30 * time.Minute, true
	case minutesOfDay >= 11*60 && minutesOfDay < 14*60+30:
		return 60 * time.Minute, true
	case minutesOfDay >= 14*60+30 && minutesOfDay < 16*60:
		return 30 * time.Minute, true
	default:
		return 0, false
	}
}

// tieredScanLoop runs the Scan job on the tiered market-hours cadence.
// Deadlines are computed from the fixed origin of today's market open
// rather than "now + interval" per tick, so a slow scan never drifts
// the cadence forward (SPEC_FULL.md §9 redesign flag on scheduler
// drift from naive sleep loops).
func (s *Scheduler) tieredScanLoop(ctx context.Context) {
	const idlePoll = time.Minute
	for {
		now := s.clk.NowEastern()
		interval, inWindow := tierInterval(now)
		if !s.clk.IsMarketOpen() || !inWindow {
			if !sleepOrDone(ctx, idlePoll) {
				return
			}
			continue
		}

		if s.jobs.Scan != nil {
			if err := s.jobs.Scan(ctx); err != nil {
				s.logger.Error("scan job failed", zap.Error(err))
			}
		}

		open := s.clk.MarketOpen()
		elapsed := now.Sub(open)
		ticks := elapsed/interval + 1
		next := open.Add(ticks * interval)
		if !sleepOrDone(ctx, time.Until(next)) {
			return
		}
	}
}

// ttlSweepLoop runs the TTLSweep job on a fixed interval, skipping
// ticks outside market hours (SPEC_FULL.md §4.15).
func (s *Scheduler) ttlSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.clk.IsMarketOpen() {
				continue
			}
			if s.jobs.TTLSweep == nil {
				continue
			}
			if err := s.jobs.TTLSweep(ctx); err != nil {
				s.logger.Error("ttl sweep job failed", zap.Error(err))
			}
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, reporting which
// happened first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
