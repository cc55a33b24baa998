// Package curve implements the RMM covered-call trading function: the
// reserve/price relationship that gives a pool constant-invariant,
// covered-call-like payoff at maturity. All quantities are WAD fixed point
// (see package fixedpoint) and are expressed per unit of liquidity -- callers
// multiply/divide by a pool's liquidity to go to/from actual reserves.
package curve

import (
	"math/big"

	"rmmcore/fixedpoint"
	"rmmcore/rmmerrors"
)

// Params bundles the three inputs that parameterize a pool's trading
// function: strike price, annualized implied volatility, and time to
// maturity, all WAD scaled (Tau in WAD years).
type Params struct {
	Strike *big.Int
	Sigma  *big.Int
	Tau    *big.Int
}

// Clone returns a deep copy so callers can snapshot parameters before a
// change_parameters call mutates a pool in place.
func (p Params) Clone() Params {
	clone := Params{}
	if p.Strike != nil {
		clone.Strike = new(big.Int).Set(p.Strike)
	}
	if p.Sigma != nil {
		clone.Sigma = new(big.Int).Set(p.Sigma)
	}
	if p.Tau != nil {
		clone.Tau = new(big.Int).Set(p.Tau)
	}
	return clone
}

func (p Params) validate() error {
	if p.Strike == nil || p.Strike.Sign() <= 0 {
		return rmmerrors.ErrStrikeZero
	}
	if p.Sigma == nil || p.Sigma.Sign() < 0 {
		return rmmerrors.ErrSigmaOutOfRange
	}
	if p.Tau == nil || p.Tau.Sign() < 0 {
		return rmmerrors.ErrTauNegative
	}
	return nil
}

// sigmaSqrtTau returns sigma*sqrt(tau) in WAD scale.
func sigmaSqrtTau(p Params) (*big.Int, error) {
	sqrtTau, err := fixedpoint.SqrtWad(p.Tau)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulWadDown(p.Sigma, sqrtTau), nil
}

// PriceOfX returns the marginal (spot) price of the risky asset implied by
// a per-liquidity risky reserve x, per:
//
//	price = K * exp(sigma*sqrt(tau)*PPF(1-x) - 0.5*sigma^2*tau)
func PriceOfX(x *big.Int, p Params) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if x.Sign() < 0 || x.Cmp(fixedpoint.WAD) >= 0 {
		return nil, rmmerrors.ErrMathDomain
	}

	oneMinusX := new(big.Int).Sub(fixedpoint.WAD, x)
	ppf, err := fixedpoint.GaussianPPF(oneMinusX)
	if err != nil {
		return nil, err
	}

	sst, err := sigmaSqrtTau(p)
	if err != nil {
		return nil, err
	}
	drift := fixedpoint.MulWadDown(sst, ppf)

	sigmaSq := fixedpoint.MulWadDown(p.Sigma, p.Sigma)
	variance := fixedpoint.MulWadDown(sigmaSq, p.Tau)
	halfVariance := new(big.Int).Quo(variance, big.NewInt(2))

	exponent := new(big.Int).Sub(drift, halfVariance)
	multiplier := fixedpoint.ExpWad(exponent)
	return fixedpoint.MulWadDown(p.Strike, multiplier), nil
}

// XOfPrice inverts PriceOfX: given a marginal price, returns the per-liquidity
// risky reserve x that would produce it.
//
//	x = 1 - CDF( (ln(price/K) + 0.5*sigma^2*tau) / (sigma*sqrt(tau)) )
func XOfPrice(price *big.Int, p Params) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, rmmerrors.ErrZeroPrice
	}

	ratio, err := fixedpoint.DivWadDown(price, p.Strike)
	if err != nil {
		return nil, err
	}
	lnRatio, err := fixedpoint.LnWad(ratio)
	if err != nil {
		return nil, err
	}

	sigmaSq := fixedpoint.MulWadDown(p.Sigma, p.Sigma)
	variance := fixedpoint.MulWadDown(sigmaSq, p.Tau)
	halfVariance := new(big.Int).Quo(variance, big.NewInt(2))

	numerator := new(big.Int).Add(lnRatio, halfVariance)

	sst, err := sigmaSqrtTau(p)
	if err != nil {
		return nil, err
	}
	if sst.Sign() == 0 {
		// Zero volatility or maturity: the risky reserve is zero at any price.
		return big.NewInt(0), nil
	}

	d, err := fixedpoint.DivWadDown(numerator, sst)
	if err != nil {
		return nil, err
	}
	cdf := fixedpoint.GaussianCDF(d)
	return new(big.Int).Sub(fixedpoint.WAD, cdf), nil
}

// YOfX returns the per-liquidity stable reserve y implied by risky reserve x
// and the pool's current invariant k:
//
//	y = K * CDF(PPF(1-x) - sigma*sqrt(tau)) + k
func YOfX(x, invariant *big.Int, p Params) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if x.Sign() < 0 || x.Cmp(fixedpoint.WAD) >= 0 {
		return nil, rmmerrors.ErrMathDomain
	}

	oneMinusX := new(big.Int).Sub(fixedpoint.WAD, x)
	ppf, err := fixedpoint.GaussianPPF(oneMinusX)
	if err != nil {
		return nil, err
	}
	sst, err := sigmaSqrtTau(p)
	if err != nil {
		return nil, err
	}
	arg := new(big.Int).Sub(ppf, sst)
	cdf := fixedpoint.GaussianCDF(arg)
	y := fixedpoint.MulWadDown(p.Strike, cdf)
	if invariant != nil {
		y.Add(y, invariant)
	}
	return y, nil
}

// XOfY inverts YOfX: given stable reserve y and invariant k, returns the
// risky reserve x.
//
//	x = 1 - CDF(PPF((y-k)/K) + sigma*sqrt(tau))
func XOfY(y, invariant *big.Int, p Params) (*big.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	netY := new(big.Int).Set(y)
	if invariant != nil {
		netY.Sub(netY, invariant)
	}
	if netY.Sign() < 0 {
		netY = big.NewInt(0)
	}

	ratio, err := fixedpoint.DivWadDown(netY, p.Strike)
	if err != nil {
		return nil, err
	}
	if ratio.Cmp(fixedpoint.WAD) > 0 {
		ratio = new(big.Int).Set(fixedpoint.WAD)
	}
	ppf, err := fixedpoint.GaussianPPF(clampOpenInterval(ratio))
	if err != nil {
		return nil, err
	}

	sst, err := sigmaSqrtTau(p)
	if err != nil {
		return nil, err
	}
	arg := new(big.Int).Add(ppf, sst)
	cdf := fixedpoint.GaussianCDF(arg)
	return new(big.Int).Sub(fixedpoint.WAD, cdf), nil
}

// Invariant returns the pool's trading-function invariant k = y - Y(x) for
// the canonical (k=0) curve, given the observed reserves x and y.
func Invariant(x, y *big.Int, p Params) (*big.Int, error) {
	yAtZeroK, err := YOfX(x, big.NewInt(0), p)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(y, yAtZeroK), nil
}

// clampOpenInterval nudges a WAD value strictly inside (0, WAD) so it is a
// valid GaussianPPF input; reserves sitting exactly on a curve boundary are
// an expected edge case (fully-allocated-to-one-side pools), not an error.
func clampOpenInterval(v *big.Int) *big.Int {
	epsilon := big.NewInt(1)
	if v.Sign() <= 0 {
		return epsilon
	}
	if v.Cmp(fixedpoint.WAD) >= 0 {
		return new(big.Int).Sub(fixedpoint.WAD, epsilon)
	}
	return v
}

// ComputeReserves derives both per-liquidity reserves (x, y) from a marginal
// price, the form pool.Store uses to seed a new pool and to re-anchor a pool
// after change_parameters shifts its curve.
func ComputeReserves(price, invariant *big.Int, p Params) (x, y *big.Int, err error) {
	x, err = XOfPrice(price, p)
	if err != nil {
		return nil, nil, err
	}
	y, err = YOfX(x, invariant, p)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// SecondsToWadYears converts a duration in seconds to WAD-scaled years using
// a 365-day year, the convention the pricing kernel's Tau parameter is
// expressed in.
func SecondsToWadYears(seconds int64) *big.Int {
	const secondsPerYear = 365 * 24 * 60 * 60
	v := big.NewInt(seconds)
	v.Mul(v, fixedpoint.WAD)
	return v.Quo(v, big.NewInt(secondsPerYear))
}
