// Package scenarios replays the end-to-end scenarios from the testable
// properties section as YAML fixtures, supplementing (not replacing) the
// package-local unit tests colocated with each component -- the same split
// the teacher keeps between its package _test.go files and its separate
// tests/ integration suite.
package scenarios

import (
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the union of every field a scenario file may set; a given
// scenario only populates what it needs.
type Fixture struct {
	Name            string `yaml:"name"`
	RiskyDecimals   int    `yaml:"riskyDecimals"`
	StableDecimals  int    `yaml:"stableDecimals"`
	HasController   bool   `yaml:"hasController"`
	FeeBps          int64  `yaml:"feeBps"`
	VolBps          int64  `yaml:"volBps"`
	DurationSeconds int64  `yaml:"durationSeconds"`
	JitSeconds      int64  `yaml:"jitSeconds"`
	MaxPrice        string `yaml:"maxPrice"`
	Price           string `yaml:"price"`

	AllocateLiquidity   string `yaml:"allocateLiquidity"`
	DeallocateLiquidity string `yaml:"deallocateLiquidity"`
	SwapAmountIn        string `yaml:"swapAmountIn"`
}

// Load reads and decodes one scenario fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Sigma converts VolBps (a basis-point volatility, 10000 == 100%) into a
// WAD-scaled sigma.
func (f *Fixture) Sigma() *big.Int {
	return wadFromBps(f.VolBps)
}

func wadFromBps(bps int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(bps), big.NewInt(1_000_000_000_000_000_000))
	return v.Div(v, big.NewInt(10_000))
}

// MustWad parses a decimal WAD string, panicking on malformed fixtures --
// acceptable here since fixtures are a fixed, checked-in corpus.
func MustWad(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("scenarios: malformed WAD constant " + s)
	}
	return v
}
