package clock

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fixedSource struct{ t time.Time }

func (f fixedSource) FetchNow(ctx context.Context) (time.Time, error) { return f.t, nil }

func TestIsMarketOpen(t *testing.T) {
	c, err := New(zap.NewNop(), fixedSource{t: time.Now()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		name string
		in   time.Time
		want bool
	}{
		{"weekday midday", time.Date(2024, 6, 12, 11, 0, 0, 0, c.eastern), true},
		{"weekday before open", time.Date(2024, 6, 12, 9, 0, 0, 0, c.eastern), false},
		{"weekday after close", time.Date(2024, 6, 12, 16, 30, 0, 0, c.eastern), false},
		{"saturday", time.Date(2024, 6, 15, 11, 0, 0, 0, c.eastern), false},
		{"new years day", time.Date(2024, 1, 1, 11, 0, 0, 0, c.eastern), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.offsetNs.Store(int64(tc.in.Sub(time.Now())))
			if got := c.IsMarketOpen(); got != tc.want {
				t.Fatalf("IsMarketOpen() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDriftApplied(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)
	c, err := New(zap.NewNop(), fixedSource{t: future})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.syncOnce(context.Background())
	if diff := c.Now().Sub(future); diff < -time.Second || diff > time.Second {
		t.Fatalf("Now() did not apply drift offset, diff=%v", diff)
	}
}
