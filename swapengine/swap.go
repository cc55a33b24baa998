// Package swapengine implements the nine-step swap algorithm: max-input
// clamping, fee application, the curve-implied output, an invariant
// non-decrease check, and fee-growth accumulation. It mutates a pool.Pool in
// place and never talks to the ledger or external adapters directly -- the
// dispatcher wires its output into both.
package swapengine

import (
	"math/big"

	"github.com/holiman/uint256"

	"rmmcore/curve"
	"rmmcore/fixedpoint"
	"rmmcore/pool"
	"rmmcore/rmmerrors"
)

// Direction identifies which leg of the pool the caller is selling.
type Direction int

const (
	// RiskyForStable sells the risky asset into the pool for the stable
	// asset.
	RiskyForStable Direction = iota
	// StableForRisky sells the stable asset into the pool for the risky
	// asset.
	StableForRisky
)

// Request describes one swap against a single pool. AmountIn/MinAmountOut
// are raw token units (at the leg's own decimal width), not WAD -- the
// engine scales them to and from WAD internally using the pool's pair.
type Request struct {
	Direction    Direction
	AmountIn     *big.Int
	MinAmountOut *big.Int
	// Now is the caller's Unix-second clock reading, used to recompute the
	// pool's live time-to-maturity and reject swaps against an expired pool
	// rather than trusting the stale Tau stamped at creation or the last
	// change_parameters call.
	Now int64
}

// Result reports what the swap engine actually did, net of fees and
// clamping, scaled back down to the legs' raw decimal widths so the
// dispatcher can apply the corresponding ledger deltas directly.
type Result struct {
	AmountIn  *big.Int // the amount actually pulled from the caller, <= Request.AmountIn
	AmountOut *big.Int
	FeeAmount *big.Int
	Clamped   bool
}

// Engine executes swaps against a pool.Store.
type Engine struct {
	Store *pool.Store
}

// New returns a swap engine bound to the given pool store.
func New(store *pool.Store) *Engine {
	return &Engine{Store: store}
}

// maxInputClamp bounds the amount of the sold asset the pool can absorb
// before its curve-implied reserve on that side would reach its ceiling (per
// unit liquidity: 1.0 for the risky reserve, the strike for the stable
// reserve), the point at which the trading function's inverse stops being
// defined.
func maxInputClamp(p *pool.Pool, dir Direction) *big.Int {
	var headroomPerLiquidity *big.Int
	if dir == RiskyForStable {
		headroomPerLiquidity = new(big.Int).Sub(fixedpoint.WAD, p.VirtualX)
	} else {
		headroomPerLiquidity = new(big.Int).Sub(p.Params.Strike, p.VirtualY)
	}
	if headroomPerLiquidity.Sign() < 0 {
		headroomPerLiquidity = big.NewInt(0)
	}
	// Leave a small safety margin below the asymptote so GaussianPPF never
	// sees an input at the exact domain boundary.
	margin := big.NewInt(1_000) // 1e-15 WAD
	headroomPerLiquidity = new(big.Int).Sub(headroomPerLiquidity, margin)
	if headroomPerLiquidity.Sign() < 0 {
		headroomPerLiquidity = big.NewInt(0)
	}
	return fixedpoint.MulWadDown(headroomPerLiquidity, p.Liquidity)
}

// Swap executes req against pool id, mutating the pool's reserves,
// invariant, and fee-growth checkpoints in place.
func (e *Engine) Swap(id pool.PoolID, req Request) (Result, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return Result{}, rmmerrors.ErrSwapZeroAmount
	}
	p, err := e.Store.Pool(id)
	if err != nil {
		return Result{}, err
	}
	if p.Paused {
		return Result{}, rmmerrors.ErrPoolPaused
	}

	pair, err := e.Store.Pair(p.Pair)
	if err != nil {
		return Result{}, err
	}
	inDecimals, outDecimals := pair.RiskyDecimals, pair.StableDecimals
	if req.Direction == StableForRisky {
		inDecimals, outDecimals = pair.StableDecimals, pair.RiskyDecimals
	}

	// Tau for a live pool is recomputed from the pool's maturity and the
	// caller's clock on every swap rather than trusted from a stale stamp;
	// a pool whose recomputed Tau has reached zero is expired and may no
	// longer be swapped against (it may still be deallocated or claimed).
	tau := curve.SecondsToWadYears(p.MaturityUnix - req.Now)
	if tau.Sign() < 0 {
		tau = big.NewInt(0)
	}
	if tau.Sign() == 0 {
		return Result{}, rmmerrors.ErrPoolExpired
	}
	p.Params.Tau = tau

	amountInRaw := req.AmountIn
	var minOutWad *big.Int
	if req.MinAmountOut != nil {
		minOutWad = fixedpoint.ScaleToWad(req.MinAmountOut, outDecimals)
	}

	// Step 1: clamp the requested input (scaled up to WAD) to what the
	// curve can absorb.
	amountIn := fixedpoint.ScaleToWad(amountInRaw, inDecimals)
	clamped := false
	maxIn := maxInputClamp(p, req.Direction)
	if amountIn.Cmp(maxIn) > 0 {
		amountIn = maxIn
		clamped = true
	}
	if amountIn.Sign() <= 0 {
		return Result{}, rmmerrors.ErrInsufficientLiquidity
	}

	// Step 2: apply the pool's fee, rounding the fee up (never in the
	// trader's favour) so the net amount entering the curve rounds down.
	feeBps := p.FeeBps + p.PriorityFeeBps
	feeAmount := fixedpoint.MulWadUp(amountIn, fixedpoint.BpsToWad(feeBps))
	netAmountIn := new(big.Int).Sub(amountIn, feeAmount)
	if netAmountIn.Sign() < 0 {
		netAmountIn = big.NewInt(0)
	}

	prevX, prevY := p.VirtualX, p.VirtualY
	prevInvariantValue, err := curve.Invariant(prevX, prevY, p.Params)
	if err != nil {
		return Result{}, err
	}

	// Step 3-5: convert the net input into a per-liquidity reserve delta and
	// derive the output side of the curve.
	netInPerLiquidity, err := fixedpoint.DivWadDown(netAmountIn, p.Liquidity)
	if err != nil {
		return Result{}, err
	}

	var amountOut *big.Int
	var newX, newY *big.Int
	if req.Direction == RiskyForStable {
		newX = new(big.Int).Add(p.VirtualX, netInPerLiquidity)
		newY, err = curve.YOfX(newX, p.Invariant, p.Params)
		if err != nil {
			return Result{}, err
		}
		outPerLiquidity := new(big.Int).Sub(p.VirtualY, newY)
		if outPerLiquidity.Sign() < 0 {
			outPerLiquidity = big.NewInt(0)
		}
		amountOut = fixedpoint.MulWadDown(outPerLiquidity, p.Liquidity)
	} else {
		newY = new(big.Int).Add(p.VirtualY, netInPerLiquidity)
		newX, err = curve.XOfY(newY, p.Invariant, p.Params)
		if err != nil {
			return Result{}, err
		}
		outPerLiquidity := new(big.Int).Sub(p.VirtualX, newX)
		if outPerLiquidity.Sign() < 0 {
			outPerLiquidity = big.NewInt(0)
		}
		amountOut = fixedpoint.MulWadDown(outPerLiquidity, p.Liquidity)
	}

	if minOutWad != nil && amountOut.Cmp(minOutWad) < 0 {
		return Result{}, rmmerrors.ErrSlippageExceeded
	}

	// Step 6: reject any step that would decrease the invariant (fee income
	// is allowed to increase it; it must never decrease).
	newInvariantValue, err := curve.Invariant(newX, newY, p.Params)
	if err != nil {
		return Result{}, err
	}
	if newInvariantValue.Cmp(prevInvariantValue) < 0 {
		return Result{}, &rmmerrors.InvalidInvariantError{
			Prev: prevInvariantValue.String(),
			Next: newInvariantValue.String(),
		}
	}

	// Step 7: commit the new reserves and invariant, and accumulate the
	// invariant's growth into the wrapping checkpoint positions sync
	// against (distinct from p.Invariant, the live k value stored here).
	invariantDelta, overflow := uint256.FromBig(new(big.Int).Sub(newInvariantValue, prevInvariantValue))
	if overflow {
		return Result{}, rmmerrors.ErrMathOverflow
	}
	p.VirtualX = newX
	p.VirtualY = newY
	p.Invariant = newInvariantValue
	p.InvariantGrowthGlobal.Add(p.InvariantGrowthGlobal, invariantDelta)

	// Step 8: accumulate fee growth, scaled per unit of liquidity, on the
	// side the fee was collected in. The checkpoint wraps modulo 2^256 by
	// construction (uint256.Int.Add), which is the point: consumers only
	// ever read the difference between two checkpoints.
	feeGrowthDeltaWad, err := fixedpoint.DivWadDown(feeAmount, p.Liquidity)
	if err != nil {
		return Result{}, err
	}
	feeGrowthDelta, overflow := uint256.FromBig(feeGrowthDeltaWad)
	if overflow {
		return Result{}, rmmerrors.ErrMathOverflow
	}
	if req.Direction == RiskyForStable {
		p.FeeGrowthGlobal.Risky.Add(p.FeeGrowthGlobal.Risky, feeGrowthDelta)
	} else {
		p.FeeGrowthGlobal.Stable.Add(p.FeeGrowthGlobal.Stable, feeGrowthDelta)
	}

	// Step 9: scale the WAD-internal amounts back down to the legs' raw
	// decimal widths before reporting what happened.
	return Result{
		AmountIn:  fixedpoint.ScaleFromWadDown(amountIn, inDecimals),
		AmountOut: fixedpoint.ScaleFromWadDown(amountOut, outDecimals),
		FeeAmount: fixedpoint.ScaleFromWadDown(feeAmount, inDecimals),
		Clamped:   clamped,
	}, nil
}
