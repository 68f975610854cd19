// Package clock provides the engine's one authoritative wall clock.
// Every other component reads time through this package instead of
// calling time.Now() directly, so drift correction and market-hours
// logic live in exactly one place.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const driftCheckInterval = 6 * time.Hour

// TimeSource fetches an authoritative timestamp; in production this is
// an HTTP GET against the external time source described in
// SPEC_FULL.md §6. A fake is substituted in tests.
type TimeSource interface {
	FetchNow(ctx context.Context) (time.Time, error)
}

// Clock is the engine's wall clock. Now() is lock-free: the drift
// offset is stored in an atomic int64 of nanoseconds and applied on
// every read.
type Clock struct {
	logger   *zap.Logger
	eastern  *time.Location
	source   TimeSource
	offsetNs atomic.Int64
	stop     chan struct{}
}

// New loads America/New_York and returns a Clock; it starts no
// background work. Run drives the drift-correction loop until ctx is
// cancelled or Stop is called.
func New(logger *zap.Logger, source TimeSource) (*Clock, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("clock: load America/New_York: %w", err)
	}
	c := &Clock{
		logger:  logger.Named("clock"),
		eastern: loc,
		source:  source,
		stop:    make(chan struct{}),
	}
	return c, nil
}

// Run starts the periodic drift-correction loop; it blocks until ctx
// is cancelled. Callers run this in its own goroutine.
func (c *Clock) Run(ctx context.Context) {
	c.syncOnce(ctx)
	ticker := time.NewTicker(driftCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.syncOnce(ctx)
		}
	}
}

// Stop ends the drift-correction loop.
func (c *Clock) Stop() { close(c.stop) }

func (c *Clock) syncOnce(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	remote, err := c.source.FetchNow(callCtx)
	if err != nil {
		c.logger.Warn("time source fetch failed, keeping previous offset", zap.Error(err))
		return
	}
	offset := remote.Sub(time.Now())
	c.offsetNs.Store(int64(offset))
	c.logger.Info("clock synced", zap.Duration("offset", offset))
}

// Now returns the offset-corrected instant, in UTC.
func (c *Clock) Now() time.Time {
	offset := time.Duration(c.offsetNs.Load())
	return time.Now().Add(offset).UTC()
}

// NowEastern returns the same instant in America/New_York.
func (c *Clock) NowEastern() time.Time {
	return c.Now().In(c.eastern)
}

// IsMarketOpen is true only on weekdays 09:30-16:00 US/Eastern and
// only on a non-holiday trading day.
func (c *Clock) IsMarketOpen() bool {
	now := c.NowEastern()
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	if isHoliday(now) {
		return false
	}
	open, close := c.boundsFor(now)
	return !now.Before(open) && now.Before(close)
}

// MarketOpen returns today's open boundary in US/Eastern.
func (c *Clock) MarketOpen() time.Time {
	open, _ := c.boundsFor(c.NowEastern())
	return open
}

// MarketClose returns today's close boundary in US/Eastern.
func (c *Clock) MarketClose() time.Time {
	_, close := c.boundsFor(c.NowEastern())
	return close
}

func (c *Clock) boundsFor(t time.Time) (time.Time, time.Time) {
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, c.eastern)
	close := time.Date(t.Year(), t.Month(), t.Day(), 16, 0, 0, 0, c.eastern)
	return open, close
}

// isHoliday checks a small static table of US market holidays. A full
// calendar library is not warranted here (see DESIGN.md) — this is a
// fixed, slow-changing list, not an algorithm.
func isHoliday(t time.Time) bool {
	md := fmt.Sprintf("%02d-%02d", t.Month(), t.Day())
	switch md {
	case "01-01", "07-04", "12-25":
		return true
	}
	return false
}

// HTTPTimeSource is the production TimeSource: a single GET returning
// an ISO-8601 zoned timestamp for America/New_York (SPEC_FULL.md §6).
type HTTPTimeSource struct {
	URL    string
	Client *http.Client
}

type timeResponse struct {
	DateTime string `json:"dateTime"`
}

func (s *HTTPTimeSource) FetchNow(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()
	var tr timeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return time.Time{}, fmt.Errorf("time source: decode: %w", err)
	}
	return time.Parse(time.RFC3339, tr.DateTime)
}
