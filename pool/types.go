// Package pool owns the Pair/Pool/Position state tables: dense monotonic
// ids, bit-packed pool identifiers, and the create/allocate/deallocate/claim
// mutators. State lives entirely in memory -- there is no backing store or
// wire-format persistence, matching the core's in-process scope.
package pool

import (
	"math/big"

	"github.com/holiman/uint256"

	"rmmcore/crypto"
	"rmmcore/curve"
)

// PairID is a dense, monotonically assigned identifier for a (risky, stable)
// token pair.
type PairID uint32

// Pair records the two tokens traded against each other by every pool
// created on top of it. Pairs are created once and never mutated.
type Pair struct {
	ID          PairID
	RiskyToken  crypto.Address
	StableToken crypto.Address

	// RiskyDecimals/StableDecimals are the tokens' raw decimal widths,
	// pinned at create_pair time (6..18) and used to scale every amount
	// crossing the external/WAD boundary for this pair.
	RiskyDecimals  uint8
	StableDecimals uint8
}

// PoolID packs a pair id, a controller flag, and a per-pair pool nonce into a
// single uint64: pair_id:24 | has_controller:8 | pool_nonce:32.
type PoolID uint64

// PackPoolID assembles a PoolID from its three fields.
func PackPoolID(pairID PairID, hasController bool, nonce uint32) PoolID {
	var controllerBit uint64
	if hasController {
		controllerBit = 1
	}
	return PoolID((uint64(pairID) << 40) | (controllerBit << 32) | uint64(nonce))
}

// PairID extracts the 24-bit pair id component.
func (id PoolID) PairID() PairID {
	return PairID(uint64(id) >> 40)
}

// HasController reports whether the pool was created with a controller.
func (id PoolID) HasController() bool {
	return (uint64(id)>>32)&0xFF != 0
}

// Nonce extracts the 32-bit per-pair pool nonce component.
func (id PoolID) Nonce() uint32 {
	return uint32(id)
}

// FeeGrowth is a pair of 256-bit fee-growth checkpoints backed by
// uint256.Int, which wraps modulo 2^256 on every Add by construction;
// overflow on accumulation is expected behaviour, not an error condition,
// and settleFees relies on the wraparound Sub to recover the correct
// distance even once a checkpoint has wrapped past zero.
type FeeGrowth struct {
	Risky  *uint256.Int
	Stable *uint256.Int
}

// Pool is the mutable per-pool state: its curve parameters, its reserves,
// and the bookkeeping needed to settle liquidity providers' fee shares.
type Pool struct {
	ID         PoolID
	Pair       PairID
	Controller crypto.Address
	HasController bool

	Params curve.Params
	// MaturityUnix is the Unix timestamp (seconds) at which Tau reaches
	// zero; change_parameters recomputes Params.Tau from this and the
	// pool's clock on every call rather than storing a stale duration.
	MaturityUnix int64

	FeeBps         int64
	PriorityFeeBps int64
	// Jit is the minimum number of seconds a position must hold its
	// liquidity before deallocating, guarding against just-in-time
	// liquidity sniping a single swap's fee.
	Jit int64

	// Liquidity is total WAD liquidity currently allocated to the pool.
	Liquidity *big.Int
	// VirtualX/VirtualY are the curve's per-liquidity reserves; actual
	// reserves are VirtualX*Liquidity/WAD and VirtualY*Liquidity/WAD.
	VirtualX *big.Int
	VirtualY *big.Int
	// Invariant is the curve's k term (see package curve) as stored by the
	// last swap (zero at creation). Swaps derive the output side of the curve
	// from it and change_parameters re-anchors reserves with it; a swap's
	// monotonicity check instead recomputes the previous k from the reserves
	// at the live Tau. It is a live WAD value, not a wrapping checkpoint.
	Invariant *big.Int

	FeeGrowthGlobal FeeGrowth
	// InvariantGrowthGlobal is the wrapping 256-bit accumulator of k
	// appreciation across swaps, distinct from Invariant above; positions
	// sync against it the same way they sync against FeeGrowthGlobal.
	InvariantGrowthGlobal *uint256.Int

	Paused bool
}

// Clone returns a deep copy of the pool, used so callers can snapshot state
// before a mutating operation that might fail partway through.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Params = p.Params.Clone()
	clone.Liquidity = cloneBig(p.Liquidity)
	clone.VirtualX = cloneBig(p.VirtualX)
	clone.VirtualY = cloneBig(p.VirtualY)
	clone.Invariant = cloneBig(p.Invariant)
	clone.FeeGrowthGlobal = FeeGrowth{
		Risky:  cloneU256(p.FeeGrowthGlobal.Risky),
		Stable: cloneU256(p.FeeGrowthGlobal.Stable),
	}
	clone.InvariantGrowthGlobal = cloneU256(p.InvariantGrowthGlobal)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

// PositionKey identifies a liquidity provider's stake in a single pool.
type PositionKey struct {
	Pool  PoolID
	Owner string
}

// Position tracks one owner's liquidity in one pool along with the
// fee-growth checkpoint recorded the last time fees were settled, so a
// claim only pays out the delta accrued since the last settlement.
type Position struct {
	Pool      PoolID
	Owner     crypto.Address
	Liquidity *big.Int

	FeeGrowthCheckpoint FeeGrowth
	InvariantGrowthLast *uint256.Int
	OwedRisky           *big.Int
	OwedStable          *big.Int

	// LastTimestamp is the Unix second of the position's most recent
	// allocate, used to enforce the pool's jit policy on deallocate.
	LastTimestamp int64
}

// Clone returns a deep copy of the position.
func (pos *Position) Clone() *Position {
	if pos == nil {
		return nil
	}
	clone := *pos
	clone.Liquidity = cloneBig(pos.Liquidity)
	clone.FeeGrowthCheckpoint = FeeGrowth{
		Risky:  cloneU256(pos.FeeGrowthCheckpoint.Risky),
		Stable: cloneU256(pos.FeeGrowthCheckpoint.Stable),
	}
	clone.InvariantGrowthLast = cloneU256(pos.InvariantGrowthLast)
	clone.OwedRisky = cloneBig(pos.OwedRisky)
	clone.OwedStable = cloneBig(pos.OwedStable)
	return &clone
}
