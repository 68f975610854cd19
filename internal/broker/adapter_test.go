package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestSnapshotRejectsDelayedDataWhenDisallowed(t *testing.T) {
	paper := NewPaperTransport(domain.AccountSummary{AvailableFunds: decimal.NewFromInt(75000)})
	c := Contract{Symbol: "SPY", Strike: "455", Right: domain.OptionCall, Expiration: "2024-12-20"}
	qc, _ := paper.Qualify(context.Background(), c)
	paper.SeedQuote(domain.OptionQuote{ConID: qc.ConID, Symbol: "SPY", DataType: domain.DataDelayed})

	adapter := NewAdapter(zap.NewNop(), paper, Config{AllowDelayedData: false})

	_, err := adapter.Snapshot(context.Background(), qc)
	if !errors.Is(err, apperr.ErrDelayedData) {
		t.Fatalf("expected ErrDelayedData, got %v", err)
	}
}

func TestSnapshotAllowsDelayedDataWhenAllowed(t *testing.T) {
	paper := NewPaperTransport(domain.AccountSummary{})
	c := Contract{Symbol: "SPY"}
	qc, _ := paper.Qualify(context.Background(), c)
	paper.SeedQuote(domain.OptionQuote{ConID: qc.ConID, DataType: domain.DataDelayed})

	adapter := NewAdapter(zap.NewNop(), paper, Config{AllowDelayedData: true})
	q, err := adapter.Snapshot(context.Background(), qc)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if q.DataType != domain.DataDelayed {
		t.Fatalf("expected delayed data type passthrough, got %v", q.DataType)
	}
}

func TestSnapshotAllowsRealTimeData(t *testing.T) {
	paper := NewPaperTransport(domain.AccountSummary{})
	c := Contract{Symbol: "SPY"}
	qc, _ := paper.Qualify(context.Background(), c)
	paper.SeedQuote(domain.OptionQuote{ConID: qc.ConID, DataType: domain.DataRealTime})

	adapter := NewAdapter(zap.NewNop(), paper, Config{AllowDelayedData: false})
	_, err := adapter.Snapshot(context.Background(), qc)
	if err != nil {
		t.Fatalf("expected no error for real-time data, got %v", err)
	}
}

func TestEnsureConnectedConnectsOnce(t *testing.T) {
	paper := NewPaperTransport(domain.AccountSummary{})
	adapter := NewAdapter(zap.NewNop(), paper, Config{})
	if err := adapter.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if !adapter.connected {
		t.Fatalf("expected connected=true after EnsureConnected")
	}
}
