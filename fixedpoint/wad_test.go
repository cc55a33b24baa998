package fixedpoint

import (
	"math/big"
	"testing"
)

func TestMulDivWadRoundingDirection(t *testing.T) {
	a := big.NewInt(3)
	b := mustBigInt("333333333333333333") // 1/3 WAD

	down := MulWadDown(a, b)
	up := MulWadUp(a, b)
	if down.Cmp(up) > 0 {
		t.Fatalf("round-down result %s exceeds round-up result %s", down, up)
	}

	quotDown, err := DivWadDown(big.NewInt(1), big.NewInt(3))
	if err != nil {
		t.Fatalf("div wad down: %v", err)
	}
	quotUp, err := DivWadUp(big.NewInt(1), big.NewInt(3))
	if err != nil {
		t.Fatalf("div wad up: %v", err)
	}
	if quotDown.Cmp(quotUp) >= 0 {
		t.Fatalf("expected down quotient %s to be strictly less than up quotient %s", quotDown, quotUp)
	}
}

func TestDivWadUpByZero(t *testing.T) {
	if _, err := DivWadUp(big.NewInt(1), big.NewInt(0)); err == nil {
		t.Fatalf("expected error dividing by zero")
	}
}

func TestExpLnRoundTrip(t *testing.T) {
	x := mustBigInt("2718281828459045235") // ~e
	ln, err := LnWad(x)
	if err != nil {
		t.Fatalf("ln wad: %v", err)
	}
	// ln(e) should be close to 1 WAD.
	diff := new(big.Int).Sub(ln, WAD)
	diff.Abs(diff)
	tolerance := mustBigInt("1000000000000") // 1e-6 WAD
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("ln(e) = %s, want close to WAD (%s)", ln, WAD)
	}

	back := ExpWad(ln)
	diff2 := new(big.Int).Sub(back, x)
	diff2.Abs(diff2)
	if diff2.Cmp(tolerance) > 0 {
		t.Fatalf("exp(ln(e)) = %s, want close to %s", back, x)
	}
}

func TestGaussianCDFMidpoint(t *testing.T) {
	cdf := GaussianCDF(big.NewInt(0))
	tolerance := mustBigInt("1000000000000")
	diff := new(big.Int).Sub(cdf, halfWADForTest())
	diff.Abs(diff)
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("CDF(0) = %s, want close to 0.5 WAD", cdf)
	}
}

func halfWADForTest() *big.Int {
	return new(big.Int).Rsh(WAD, 1)
}

func TestGaussianPPFCDFRoundTrip(t *testing.T) {
	p := mustBigInt("800000000000000000") // 0.8 WAD
	x, err := GaussianPPF(p)
	if err != nil {
		t.Fatalf("gaussian ppf: %v", err)
	}
	back := GaussianCDF(x)
	diff := new(big.Int).Sub(back, p)
	diff.Abs(diff)
	tolerance := mustBigInt("10000000000000") // 1e-5 WAD
	if diff.Cmp(tolerance) > 0 {
		t.Fatalf("CDF(PPF(p)) = %s, want close to p = %s", back, p)
	}
}

func TestGaussianPPFDomainError(t *testing.T) {
	if _, err := GaussianPPF(big.NewInt(0)); err == nil {
		t.Fatalf("expected domain error for p=0")
	}
	if _, err := GaussianPPF(new(big.Int).Set(WAD)); err == nil {
		t.Fatalf("expected domain error for p=1")
	}
}

func TestScaleToFromWad(t *testing.T) {
	amount := big.NewInt(1_000_000) // 1 USDC at 6 decimals
	wad := ScaleToWad(amount, 6)
	want := mustBigInt("1000000000000000000")
	if wad.Cmp(want) != 0 {
		t.Fatalf("scale to wad = %s, want %s", wad, want)
	}
	back := ScaleFromWadDown(wad, 6)
	if back.Cmp(amount) != 0 {
		t.Fatalf("scale from wad = %s, want %s", back, amount)
	}
}
