package config

import (
	"errors"
	"testing"

	"github.com/atlas-desktop/options-engine/internal/apperr"
	"github.com/shopspring/decimal"
)

func validConfig() *Config {
	return &Config{
		Trading: Trading{
			AccountSize:          decimal.NewFromInt(100000),
			MaxRiskPerTrade:      decimal.NewFromFloat(0.02),
			MaxAllocationPercent: decimal.NewFromFloat(0.5),
		},
		VIX: VIXThresholds{
			Low:    decimal.NewFromInt(15),
			Normal: decimal.NewFromInt(20),
			Panic:  decimal.NewFromInt(30),
		},
		Greeks: Greeks{
			CreditDeltaMin: decimal.NewFromFloat(0.10),
			CreditDeltaMax: decimal.NewFromFloat(0.30),
		},
		OrderTTLMinutes:      30,
		ConsecutiveLossLimit: 3,
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateRejectsNonAscendingVIX(t *testing.T) {
	c := validConfig()
	c.VIX.Normal = decimal.NewFromInt(10)
	err := c.Validate()
	if !errors.Is(err, apperr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsInvertedDeltaRange(t *testing.T) {
	c := validConfig()
	c.Greeks.CreditDeltaMin = decimal.NewFromFloat(0.30)
	c.Greeks.CreditDeltaMax = decimal.NewFromFloat(0.10)
	err := c.Validate()
	if !errors.Is(err, apperr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestValidateRejectsOverAllocation(t *testing.T) {
	c := validConfig()
	c.Trading.MaxAllocationPercent = decimal.NewFromFloat(1.5)
	err := c.Validate()
	if !errors.Is(err, apperr.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}
