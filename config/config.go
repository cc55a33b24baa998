// Package config captures the protocol-wide bounds, loaded from a TOML file
// the way native/lending's Config is. The dispatcher enforces the fee and
// volatility ranges and pins DefaultJitPolicySeconds onto controller-less
// pools; it does not read MinLiquidityFloor.
package config

import "math/big"

// Config is the protocol-wide configuration loaded at startup.
type Config struct {
	MinFeeBps      int64  `toml:"MinFeeBps"`
	MaxFeeBps      int64  `toml:"MaxFeeBps"`
	MinVolatility  string `toml:"MinVolatilityWad"`
	MaxVolatility  string `toml:"MaxVolatilityWad"`
	SecondsPerYear int64  `toml:"SecondsPerYear"`

	// MinLiquidityFloor is a WAD liquidity floor, expressed as a decimal
	// string so it round-trips through TOML without precision loss. Nothing
	// in the module applies it: pool.Store.Deallocate enforces only the floor
	// passed to it with each call.
	MinLiquidityFloor string `toml:"MinLiquidityFloorWad"`

	// DefaultJitPolicySeconds is the jit window pinned onto controller-less
	// pools: a newly-allocated position must wait this many seconds before
	// it may be deallocated, guarding against just-in-time liquidity
	// sniping a single swap's fee.
	DefaultJitPolicySeconds int64 `toml:"DefaultJitPolicySeconds"`
}

// EnsureDefaults populates zero-valued fields with the protocol's default
// bounds so a partially-specified TOML file still produces a usable config.
func (c *Config) EnsureDefaults() {
	if c.MinFeeBps == 0 {
		c.MinFeeBps = 1
	}
	if c.MaxFeeBps == 0 {
		c.MaxFeeBps = 1_000
	}
	if c.MinVolatility == "" {
		c.MinVolatility = "10000000000000000" // 0.01
	}
	if c.MaxVolatility == "" {
		c.MaxVolatility = "10000000000000000000" // 10.0
	}
	if c.SecondsPerYear == 0 {
		c.SecondsPerYear = 365 * 24 * 60 * 60
	}
	if c.MinLiquidityFloor == "" {
		c.MinLiquidityFloor = "1000000000000000000" // 1 unit of liquidity
	}
	if c.DefaultJitPolicySeconds == 0 {
		c.DefaultJitPolicySeconds = 4
	}
}

// MinVolatilityWad parses MinVolatility into a big.Int.
func (c *Config) MinVolatilityWad() (*big.Int, error) {
	return parseWad(c.MinVolatility)
}

// MaxVolatilityWad parses MaxVolatility into a big.Int.
func (c *Config) MaxVolatilityWad() (*big.Int, error) {
	return parseWad(c.MaxVolatility)
}

// MinLiquidityFloorWad parses MinLiquidityFloor into a big.Int.
func (c *Config) MinLiquidityFloorWad() (*big.Int, error) {
	return parseWad(c.MinLiquidityFloor)
}

func parseWad(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &ParseError{Value: s}
	}
	return v, nil
}

// ParseError reports a malformed WAD decimal string in the configuration.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return "config: invalid WAD decimal value " + e.Value
}

// ValidateFee reports whether a fee_bps value (without the priority
// component) falls inside the configured bounds.
func (c *Config) ValidateFee(feeBps int64) bool {
	return feeBps >= c.MinFeeBps && feeBps <= c.MaxFeeBps
}

// ValidateVolatility reports whether sigma (WAD) falls inside the
// configured bounds.
func (c *Config) ValidateVolatility(sigma *big.Int) (bool, error) {
	minV, err := c.MinVolatilityWad()
	if err != nil {
		return false, err
	}
	maxV, err := c.MaxVolatilityWad()
	if err != nil {
		return false, err
	}
	return sigma.Cmp(minV) >= 0 && sigma.Cmp(maxV) <= 0, nil
}
