// Package fixedpoint implements the WAD (18-decimal) fixed-point arithmetic
// the RMM pricing kernel is built on: directed multiply/divide, natural log
// and exponential, integer square root, and the Gaussian CDF/PPF pair the
// covered-call trading function needs. Every operation is deterministic
// integer arithmetic over math/big so replay is bit-identical across runs.
package fixedpoint

import (
	"math"
	"math/big"

	"rmmcore/rmmerrors"
)

// WAD is the fixed-point scale: 1.0 is represented as 10^18.
var WAD = mustBigInt("1000000000000000000")

var two = big.NewInt(2)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("fixedpoint: invalid big integer constant " + value)
	}
	return v
}

// roundUpDiv divides num by denom rounding away from zero when there is a
// remainder, assuming both operands are non-negative.
func roundUpDiv(num, denom *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, denom, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// MulWadDown computes floor(a*b/WAD).
func MulWadDown(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return new(big.Int).Quo(product, WAD)
}

// MulWadUp computes ceil(a*b/WAD). Both a and b must be non-negative.
func MulWadUp(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	if product.Sign() == 0 {
		return big.NewInt(0)
	}
	return roundUpDiv(product, WAD)
}

// DivWadDown computes floor(a*WAD/b). b must be strictly positive.
func DivWadDown(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() == 0 {
		return nil, rmmerrors.ErrMathDomain
	}
	numerator := new(big.Int).Mul(a, WAD)
	return new(big.Int).Quo(numerator, b), nil
}

// DivWadUp computes ceil(a*WAD/b). b must be strictly positive and a must be
// non-negative.
func DivWadUp(a, b *big.Int) (*big.Int, error) {
	if b == nil || b.Sign() == 0 {
		return nil, rmmerrors.ErrMathDomain
	}
	numerator := new(big.Int).Mul(a, WAD)
	if numerator.Sign() == 0 {
		return big.NewInt(0), nil
	}
	return roundUpDiv(numerator, b), nil
}

// ScaleToWad converts an integer amount expressed with `decimals` fractional
// digits into WAD scale.
func ScaleToWad(amount *big.Int, decimals uint8) *big.Int {
	if decimals == 18 {
		return new(big.Int).Set(amount)
	}
	if decimals < 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Mul(amount, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return new(big.Int).Quo(amount, factor)
}

// ScaleFromWadDown converts a WAD-scaled amount back to `decimals` fractional
// digits, rounding down (the direction that never overcredits a caller).
func ScaleFromWadDown(amount *big.Int, decimals uint8) *big.Int {
	if decimals == 18 {
		return new(big.Int).Set(amount)
	}
	if decimals < 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Quo(amount, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return new(big.Int).Mul(amount, factor)
}

// BpsToWad converts a basis-points value (0-10000 for 0%-100%, though callers
// may pass larger magnitudes for leveraged parameters) into a WAD fraction.
func BpsToWad(bps int64) *big.Int {
	v := big.NewInt(bps)
	v.Mul(v, WAD)
	return v.Quo(v, big.NewInt(10_000))
}

// SqrtWad returns floor(sqrt(x)) in WAD scale, i.e. sqrt(x/WAD)*WAD, as the
// integer square root (big.Int.Sqrt) of x*WAD.
func SqrtWad(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		return nil, rmmerrors.ErrMathDomain
	}
	if x.Sign() == 0 {
		return big.NewInt(0), nil
	}
	scaled := new(big.Int).Mul(x, WAD)
	return new(big.Int).Sqrt(scaled), nil
}

// expSeriesTerms bounds the Taylor series used by ExpWad; 60 terms gives
// full WAD precision for the |x| <= ~42 WAD domain the curve needs.
const expSeriesTerms = 60

// ExpWad returns e^(x/WAD) in WAD scale using a Taylor expansion around 0,
// range-reduced by repeated halving (exp(x) = exp(x/2)^2) to keep the series
// converging quickly for larger magnitudes.
func ExpWad(x *big.Int) *big.Int {
	if x.Sign() == 0 {
		return new(big.Int).Set(WAD)
	}
	// Range-reduce: find k such that |x|/2^k < WAD (i.e. |value| < 1).
	abs := new(big.Int).Abs(x)
	k := 0
	reduced := new(big.Int).Set(abs)
	for reduced.Cmp(WAD) > 0 {
		reduced.Rsh(reduced, 1)
		k++
	}
	if x.Sign() < 0 {
		reduced.Neg(reduced)
	}

	term := new(big.Int).Set(WAD)
	sum := new(big.Int).Set(WAD)
	for n := int64(1); n <= expSeriesTerms; n++ {
		term = MulWadDown(term, reduced)
		term.Quo(term, big.NewInt(n))
		sum.Add(sum, term)
		if term.Sign() == 0 {
			break
		}
	}

	for i := 0; i < k; i++ {
		sum = MulWadDown(sum, sum)
	}
	return sum
}

// LnWad returns ln(x/WAD) in WAD scale for x > 0, using the identity
// ln(x) = 2*atanh((x-1)/(x+1)) expanded as a series, which converges quickly
// once x has been range-reduced into [1, 2) by repeated halving/doubling
// tracked as an integer power-of-two correction added back at the end.
func LnWad(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, rmmerrors.ErrMathDomain
	}

	// Range reduce x into [WAD, 2*WAD) by dividing by powers of two, tracking
	// k so that ln(x) = ln(reduced) + k*ln(2).
	reduced := new(big.Int).Set(x)
	k := 0
	two := big.NewInt(2)
	for reduced.Cmp(WAD) < 0 {
		reduced.Mul(reduced, two)
		k--
	}
	twoWad := new(big.Int).Lsh(WAD, 1)
	for reduced.Cmp(twoWad) >= 0 {
		reduced.Quo(reduced, two)
		k++
	}

	// y = (reduced - WAD) / (reduced + WAD), ln(reduced) = 2*atanh(y)
	num := new(big.Int).Sub(reduced, WAD)
	den := new(big.Int).Add(reduced, WAD)
	y, err := DivWadDown(num, den)
	if err != nil {
		return nil, err
	}

	ySq := MulWadDown(y, y)
	term := new(big.Int).Set(y)
	sum := new(big.Int).Set(y)
	for n := int64(3); n <= 41; n += 2 {
		term = MulWadDown(term, ySq)
		contribution := new(big.Int).Quo(term, big.NewInt(n))
		sum.Add(sum, contribution)
		if contribution.Sign() == 0 {
			break
		}
	}
	lnReduced := new(big.Int).Lsh(sum, 1)

	ln2 := mustBigInt("693147180559945309")
	correction := new(big.Int).Mul(ln2, big.NewInt(int64(k)))
	return new(big.Int).Add(lnReduced, correction), nil
}

// asP and asA1..asA5 are the Abramowitz & Stegun 7.1.26 rational
// approximation coefficients for the error function, scaled into WAD fixed
// point. The approximation has a maximum absolute error of about 1.5e-7, so
// GaussianCDF is accurate to that bound, far coarser than the WAD's 1e-18
// granularity.
var (
	asP  = mustBigInt("327591100000000000")
	asA1 = mustBigInt("254829592000000000")
	asA2 = mustBigInt("-284496736000000000")
	asA3 = mustBigInt("1421413741000000000")
	asA4 = mustBigInt("-1453152027000000000")
	asA5 = mustBigInt("1061405429000000000")
)

// erf returns erf(x/WAD) in WAD scale for any signed x.
func erf(x *big.Int) *big.Int {
	sign := int64(1)
	ax := new(big.Int).Set(x)
	if x.Sign() < 0 {
		sign = -1
		ax.Neg(ax)
	}

	t, _ := DivWadDown(WAD, new(big.Int).Add(WAD, MulWadDown(asP, ax)))

	poly := new(big.Int).Set(asA5)
	poly = MulWadDown(poly, t)
	poly.Add(poly, asA4)
	poly = MulWadDown(poly, t)
	poly.Add(poly, asA3)
	poly = MulWadDown(poly, t)
	poly.Add(poly, asA2)
	poly = MulWadDown(poly, t)
	poly.Add(poly, asA1)
	poly = MulWadDown(poly, t)

	negAxSq := new(big.Int).Neg(MulWadDown(ax, ax))
	expTerm := ExpWad(negAxSq)
	y := new(big.Int).Sub(WAD, MulWadDown(poly, expTerm))

	if sign < 0 {
		y.Neg(y)
	}
	return y
}

// sqrt2Wad is sqrt(2) in WAD scale, used to convert the standard normal CDF
// into the error-function domain.
var sqrt2Wad = mustBigInt("1414213562373095049")

// GaussianCDF returns Phi(x/WAD), the standard normal cumulative
// distribution function, in WAD scale.
func GaussianCDF(x *big.Int) *big.Int {
	arg, _ := DivWadDown(x, sqrt2Wad)
	e := erf(arg)
	sum := new(big.Int).Add(WAD, e)
	return new(big.Int).Quo(sum, two)
}

// GaussianPPF returns Phi^-1(p/WAD), the inverse standard normal CDF, for
// 0 < p < WAD, using Acklam's rational approximation refined by two
// Newton steps against GaussianCDF, so the result inverts GaussianCDF.
func GaussianPPF(p *big.Int) (*big.Int, error) {
	if p.Sign() <= 0 || p.Cmp(WAD) >= 0 {
		return nil, rmmerrors.ErrMathDomain
	}

	pf := toFloat(p)
	x := acklamPPF(pf)

	// Two Newton refinement steps using the CDF/erf machinery above so the
	// result is consistent with GaussianCDF:
	// x_{n+1} = x_n - (CDF(x_n) - p) / phi(x_n)
	xWad := fromFloat(x)
	for i := 0; i < 2; i++ {
		cdf := GaussianCDF(xWad)
		diff := new(big.Int).Sub(cdf, p)
		density := normalDensity(xWad)
		if density.Sign() == 0 {
			break
		}
		correction, err := DivWadDown(diff, density)
		if err != nil {
			break
		}
		xWad = new(big.Int).Sub(xWad, correction)
	}
	return xWad, nil
}

// normalDensity returns phi(x/WAD) = exp(-x^2/2) / sqrt(2*pi), in WAD scale.
func normalDensity(x *big.Int) *big.Int {
	xSq := MulWadDown(x, x)
	half := new(big.Int).Quo(xSq, two)
	exponent := new(big.Int).Neg(half)
	numerator := ExpWad(exponent)
	sqrt2Pi := mustBigInt("2506628274631000502")
	q, _ := DivWadDown(numerator, sqrt2Pi)
	return q
}

// toFloat/fromFloat bridge the WAD domain to float64 for the PPF's initial
// Acklam-approximation seed only; the Newton steps above then refine it in
// fixed point.
func toFloat(x *big.Int) float64 {
	f := new(big.Float).SetInt(x)
	wadF := new(big.Float).SetInt(WAD)
	f.Quo(f, wadF)
	v, _ := f.Float64()
	return v
}

func fromFloat(v float64) *big.Int {
	f := big.NewFloat(v)
	wadF := new(big.Float).SetInt(WAD)
	f.Mul(f, wadF)
	out, _ := f.Int(nil)
	return out
}

// acklamPPF is Peter Acklam's rational approximation to the inverse normal
// CDF, accurate to about 1.15e-9 absolute error -- used only as a seed for
// the fixed-point Newton refinement in GaussianPPF.
func acklamPPF(p float64) float64 {
	const (
		a1 = -3.969683028665376e+01
		a2 = 2.209460984245205e+02
		a3 = -2.759285104469687e+02
		a4 = 1.383577518672690e+02
		a5 = -3.066479806614716e+01
		a6 = 2.506628277459239e+00

		b1 = -5.447609879822406e+01
		b2 = 1.615858368580409e+02
		b3 = -1.556989798598866e+02
		b4 = 6.680131188771972e+01
		b5 = -1.328068155288572e+01

		c1 = -7.784894002430293e-03
		c2 = -3.223964580411365e-01
		c3 = -2.400758277161838e+00
		c4 = -2.549732539343734e+00
		c5 = 4.374664141464968e+00
		c6 = 2.938163982698783e+00

		d1 = 7.784695709041462e-03
		d2 = 3.224671290700398e-01
		d3 = 2.445134137142996e+00
		d4 = 3.754408661907416e+00

		pLow  = 0.02425
		pHigh = 1 - pLow
	)

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c1*q+c2)*q+c3)*q+c4)*q+c5)*q + c6) /
			((((d1*q+d2)*q+d3)*q+d4)*q + 1)
	case p <= pHigh:
		q := p - 0.5
		r := q * q
		return (((((a1*r+a2)*r+a3)*r+a4)*r+a5)*r + a6) * q /
			(((((b1*r+b2)*r+b3)*r+b4)*r+b5)*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c1*q+c2)*q+c3)*q+c4)*q+c5)*q + c6) /
			((((d1*q+d2)*q+d3)*q+d4)*q + 1)
	}
}
