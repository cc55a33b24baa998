package curve

import (
	"math/big"
	"testing"

	"rmmcore/fixedpoint"
)

func testParams() Params {
	return Params{
		Strike: mustWad("1000000000000000000000"), // 1000
		Sigma:  mustWad("1000000000000000000"),     // sigma = 1.0 (100%)
		Tau:    mustWad("1000000000000000000"),     // tau = 1 year
	}
}

func mustWad(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad constant " + s)
	}
	return v
}

func TestPriceXRoundTrip(t *testing.T) {
	p := testParams()
	x := mustWad("500000000000000000") // x = 0.5

	price, err := PriceOfX(x, p)
	if err != nil {
		t.Fatalf("price of x: %v", err)
	}
	if price.Sign() <= 0 {
		t.Fatalf("expected positive price, got %s", price)
	}

	back, err := XOfPrice(price, p)
	if err != nil {
		t.Fatalf("x of price: %v", err)
	}

	diff := new(big.Int).Sub(back, x)
	diff.Abs(diff)
	tolerance := mustWad("1000000000000000") // 1e-3 WAD
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("round trip x=%s -> price=%s -> x=%s exceeds tolerance", x, price, back)
	}
}

func TestInvariantZeroOnCanonicalCurve(t *testing.T) {
	p := testParams()
	x := mustWad("500000000000000000")

	y, err := YOfX(x, big.NewInt(0), p)
	if err != nil {
		t.Fatalf("y of x: %v", err)
	}

	k, err := Invariant(x, y, p)
	if err != nil {
		t.Fatalf("invariant: %v", err)
	}
	tolerance := mustWad("1000000000000")
	if new(big.Int).Abs(k).Cmp(tolerance) > 0 {
		t.Fatalf("expected invariant close to zero, got %s", k)
	}
}

func TestYXRoundTrip(t *testing.T) {
	p := testParams()
	x := mustWad("300000000000000000") // 0.3
	invariant := big.NewInt(0)

	y, err := YOfX(x, invariant, p)
	if err != nil {
		t.Fatalf("y of x: %v", err)
	}
	back, err := XOfY(y, invariant, p)
	if err != nil {
		t.Fatalf("x of y: %v", err)
	}

	diff := new(big.Int).Sub(back, x)
	diff.Abs(diff)
	tolerance := mustWad("1000000000000000")
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("round trip x=%s -> y=%s -> x=%s exceeds tolerance", x, y, back)
	}
}

func TestPriceOfXRejectsOutOfDomain(t *testing.T) {
	p := testParams()
	if _, err := PriceOfX(fixedpoint.WAD, p); err == nil {
		t.Fatalf("expected domain error for x=1")
	}
	if _, err := PriceOfX(big.NewInt(-1), p); err == nil {
		t.Fatalf("expected domain error for negative x")
	}
}

func TestInvalidParamsRejected(t *testing.T) {
	bad := Params{Strike: big.NewInt(0), Sigma: mustWad("1000000000000000000"), Tau: mustWad("1000000000000000000")}
	if _, err := PriceOfX(mustWad("500000000000000000"), bad); err == nil {
		t.Fatalf("expected error for zero strike")
	}
}
