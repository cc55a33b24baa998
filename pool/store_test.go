package pool

import (
	"math/big"
	"testing"

	"rmmcore/adapters"
	"rmmcore/crypto"
	"rmmcore/curve"
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

func testParams() curve.Params {
	return curve.Params{
		Strike: mustWad("1000000000000000000000"),
		Sigma:  mustWad("1000000000000000000"),
		Tau:    mustWad("1000000000000000000"),
	}
}

func TestCreatePairRejectsDuplicates(t *testing.T) {
	s := NewStore()
	risky, stable := testAddr(1), testAddr(2)
	if _, err := s.CreatePair(risky, stable, 18, 18); err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if _, err := s.CreatePair(risky, stable, 18, 18); err == nil {
		t.Fatalf("expected duplicate pair to be rejected")
	}
}

func TestCreatePoolAndAllocateDeallocate(t *testing.T) {
	s := NewStore()
	risky, stable, controller := testAddr(1), testAddr(2), testAddr(3)
	pairID, err := s.CreatePair(risky, stable, 18, 18)
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}

	in := CreatePoolInput{
		Pair:             pairID,
		Controller:       controller,
		HasController:    true,
		Params:           testParams(),
		MaturityUnix:     1000,
		FeeBps:           30,
		InitialPrice:     mustWad("1000000000000000000000"),
		InitialLiquidity: mustWad("1000000000000000000"),
	}
	poolID, pos, delta, err := s.CreatePool(in, nil)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if pos.Liquidity.Sign() <= 0 {
		t.Fatalf("expected positive initial liquidity")
	}
	if delta.Risky.Sign() < 0 || delta.Stable.Sign() < 0 {
		t.Fatalf("expected non-negative initial deltas, got %+v", delta)
	}

	lp := testAddr(4)
	allocDelta, err := s.Allocate(poolID, lp, mustWad("500000000000000000"), 0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if allocDelta.Risky.Sign() <= 0 {
		t.Fatalf("expected positive risky delta on allocate")
	}

	p, err := s.Pool(poolID)
	if err != nil {
		t.Fatalf("pool lookup: %v", err)
	}
	liquidityAfterAlloc := new(big.Int).Set(p.Liquidity)

	deallocDelta, err := s.Deallocate(poolID, lp, mustWad("500000000000000000"), 0, nil)
	if err != nil {
		t.Fatalf("deallocate: %v", err)
	}
	if deallocDelta.Risky.Sign() <= 0 {
		t.Fatalf("expected positive risky delta on deallocate")
	}
	if p.Liquidity.Cmp(new(big.Int).Sub(liquidityAfterAlloc, mustWad("500000000000000000"))) != 0 {
		t.Fatalf("unexpected pool liquidity after deallocate: %s", p.Liquidity)
	}
}

func TestDeallocateRejectsInsufficientLiquidity(t *testing.T) {
	s := NewStore()
	risky, stable, controller := testAddr(1), testAddr(2), testAddr(3)
	pairID, _ := s.CreatePair(risky, stable, 18, 18)
	in := CreatePoolInput{
		Pair:             pairID,
		Controller:       controller,
		HasController:    true,
		Params:           testParams(),
		MaturityUnix:     1000,
		InitialPrice:     mustWad("1000000000000000000000"),
		InitialLiquidity: mustWad("1000000000000000000"),
	}
	poolID, _, _, err := s.CreatePool(in, nil)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if _, err := s.Deallocate(poolID, controller, mustWad("2000000000000000000"), 0, nil); err == nil {
		t.Fatalf("expected insufficient liquidity error")
	}
}

func TestDeallocateRejectsBeforeJitWindowElapses(t *testing.T) {
	s := NewStore()
	risky, stable, controller := testAddr(1), testAddr(2), testAddr(3)
	pairID, _ := s.CreatePair(risky, stable, 18, 18)
	in := CreatePoolInput{
		Pair:             pairID,
		Controller:       controller,
		HasController:    true,
		Params:           testParams(),
		MaturityUnix:     100000,
		Jit:              4,
		InitialPrice:     mustWad("1000000000000000000000"),
		InitialLiquidity: mustWad("1000000000000000000"),
	}
	poolID, _, _, err := s.CreatePool(in, nil)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}

	lp := testAddr(4)
	if _, err := s.Allocate(poolID, lp, mustWad("500000000000000000"), 100); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if _, err := s.Deallocate(poolID, lp, mustWad("500000000000000000"), 103, nil); err == nil {
		t.Fatalf("expected jit rejection one second before the window elapses")
	}
	if _, err := s.Deallocate(poolID, lp, mustWad("500000000000000000"), 104, nil); err != nil {
		t.Fatalf("expected deallocate to succeed once the jit window elapses: %v", err)
	}
}

func TestChangeParametersRequiresController(t *testing.T) {
	s := NewStore()
	risky, stable, controller := testAddr(1), testAddr(2), testAddr(3)
	pairID, _ := s.CreatePair(risky, stable, 18, 18)
	in := CreatePoolInput{
		Pair:             pairID,
		Controller:       controller,
		HasController:    true,
		Params:           testParams(),
		MaturityUnix:     1000,
		InitialPrice:     mustWad("1000000000000000000000"),
		InitialLiquidity: mustWad("1000000000000000000"),
	}
	poolID, _, _, err := s.CreatePool(in, nil)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}

	clock := adapters.SystemClock{Seconds: 500}
	impostor := testAddr(9)
	if err := s.ChangeParameters(poolID, impostor, mustWad("2000000000000000000"), 2000, clock); err == nil {
		t.Fatalf("expected non-controller to be rejected")
	}
	if err := s.ChangeParameters(poolID, controller, mustWad("2000000000000000000"), 2000, clock); err != nil {
		t.Fatalf("change parameters: %v", err)
	}
}

func TestPackPoolIDRoundTrip(t *testing.T) {
	id := PackPoolID(PairID(7), true, 42)
	if id.PairID() != 7 {
		t.Fatalf("unexpected pair id: %d", id.PairID())
	}
	if !id.HasController() {
		t.Fatalf("expected has-controller bit set")
	}
	if id.Nonce() != 42 {
		t.Fatalf("unexpected nonce: %d", id.Nonce())
	}
}
