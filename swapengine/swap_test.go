package swapengine

import (
	"math/big"
	"testing"

	"rmmcore/crypto"
	"rmmcore/curve"
	"rmmcore/pool"
)

func testAddr(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.NHBPrefix, raw)
}

func mustWad(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad constant " + s)
	}
	return v
}

func newTestPool(t *testing.T) (*pool.Store, pool.PoolID) {
	t.Helper()
	store := pool.NewStore()
	risky, stable, controller := testAddr(1), testAddr(2), testAddr(3)
	pairID, err := store.CreatePair(risky, stable, 18, 18)
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	in := pool.CreatePoolInput{
		Pair:          pairID,
		Controller:    controller,
		HasController: true,
		Params: curve.Params{
			Strike: mustWad("1000000000000000000000"),
			Sigma:  mustWad("1000000000000000000"),
			Tau:    mustWad("1000000000000000000"),
		},
		MaturityUnix:     1000,
		FeeBps:           30,
		InitialPrice:     mustWad("1000000000000000000000"),
		InitialLiquidity: mustWad("1000000000000000000000"),
	}
	poolID, _, _, err := store.CreatePool(in, nil)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return store, poolID
}

func TestSwapRiskyForStableProducesOutput(t *testing.T) {
	store, poolID := newTestPool(t)
	engine := New(store)

	result, err := engine.Swap(poolID, Request{
		Direction: RiskyForStable,
		AmountIn:  mustWad("1000000000000000000"), // 1 unit of risky (0.001 per unit of liquidity)
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if result.AmountOut.Sign() <= 0 {
		t.Fatalf("expected positive amount out, got %s", result.AmountOut)
	}
	if result.FeeAmount.Sign() <= 0 {
		t.Fatalf("expected positive fee, got %s", result.FeeAmount)
	}
}

func TestSwapRejectsZeroAmount(t *testing.T) {
	store, poolID := newTestPool(t)
	engine := New(store)
	if _, err := engine.Swap(poolID, Request{Direction: RiskyForStable, AmountIn: big.NewInt(0)}); err == nil {
		t.Fatalf("expected zero-amount swap to be rejected")
	}
}

func TestSwapRejectsSlippage(t *testing.T) {
	store, poolID := newTestPool(t)
	engine := New(store)
	huge := mustWad("1000000000000000000000000") // unreachable min-out
	if _, err := engine.Swap(poolID, Request{
		Direction:    RiskyForStable,
		AmountIn:     mustWad("1000000000000000000"),
		MinAmountOut: huge,
	}); err == nil {
		t.Fatalf("expected slippage rejection")
	}
}

func TestSwapInvariantNeverDecreases(t *testing.T) {
	store, poolID := newTestPool(t)
	engine := New(store)

	p, err := store.Pool(poolID)
	if err != nil {
		t.Fatalf("pool lookup: %v", err)
	}
	before := new(big.Int).Set(p.Invariant)

	if _, err := engine.Swap(poolID, Request{
		Direction: RiskyForStable,
		AmountIn:  mustWad("5000000000000000000"),
	}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if p.Invariant.Cmp(before) < 0 {
		t.Fatalf("invariant decreased from %s to %s", before, p.Invariant)
	}
}

func TestSwapClampsOversizedInput(t *testing.T) {
	store, poolID := newTestPool(t)
	engine := New(store)

	huge := mustWad("1000000000000000000000000") // far larger than the curve can absorb
	result, err := engine.Swap(poolID, Request{Direction: RiskyForStable, AmountIn: huge})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !result.Clamped {
		t.Fatalf("expected the oversized input to be clamped")
	}
	if result.AmountIn.Cmp(huge) >= 0 {
		t.Fatalf("expected clamped amount in to be less than requested amount")
	}
}
