package config

import (
	"math/big"
	"testing"
)

func TestEnsureDefaultsFillsZeroValues(t *testing.T) {
	var c Config
	c.EnsureDefaults()
	if c.MinFeeBps == 0 || c.MaxFeeBps == 0 {
		t.Fatalf("expected fee bounds to be populated, got %+v", c)
	}
	if _, err := c.MinVolatilityWad(); err != nil {
		t.Fatalf("min volatility: %v", err)
	}
}

func TestValidateFee(t *testing.T) {
	var c Config
	c.EnsureDefaults()
	if !c.ValidateFee(c.MinFeeBps) {
		t.Fatalf("expected min fee to validate")
	}
	if c.ValidateFee(c.MaxFeeBps + 1) {
		t.Fatalf("expected fee above max to be rejected")
	}
}

func TestValidateVolatility(t *testing.T) {
	var c Config
	c.EnsureDefaults()
	ok, err := c.ValidateVolatility(big.NewInt(0))
	if err != nil {
		t.Fatalf("validate volatility: %v", err)
	}
	if ok {
		t.Fatalf("expected zero volatility to fail validation")
	}
}

func TestParseWadRejectsGarbage(t *testing.T) {
	c := Config{MinVolatility: "not-a-number"}
	if _, err := c.MinVolatilityWad(); err == nil {
		t.Fatalf("expected parse error")
	}
}
