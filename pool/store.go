package pool

import (
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"rmmcore/adapters"
	"rmmcore/crypto"
	"rmmcore/curve"
	"rmmcore/fixedpoint"
	"rmmcore/ledger"
	"rmmcore/rmmerrors"
)

// Store holds every Pair/Pool/Position in memory. There is no backing
// persistence layer -- the core's Non-goals exclude any wire format beyond
// these in-process tables -- but the map-plus-sorted-key-iteration shape
// mirrors the deterministic ordering a trie-backed store would also need to
// provide for events and hashing.
type Store struct {
	pairs     map[PairID]*Pair
	pairOrder []PairID
	nextPair  PairID

	pools     map[PoolID]*Pool
	poolNonce map[PairID]uint32

	positions map[PositionKey]*Position
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		pairs:     make(map[PairID]*Pair),
		pools:     make(map[PoolID]*Pool),
		poolNonce: make(map[PairID]uint32),
		positions: make(map[PositionKey]*Position),
	}
}

// minDecimals/maxDecimals bound the raw decimal widths create_pair accepts,
// per spec.md's InvalidDecimals failure mode.
const (
	minDecimals = 6
	maxDecimals = 18
)

// CreatePair registers a new (risky, stable) token pair and returns its
// dense id. Re-registering the same token ordering returns ErrPairExists;
// pairing a token with itself returns ErrSameToken; a decimal width outside
// [6, 18] on either leg returns ErrInvalidDecimals.
func (s *Store) CreatePair(risky, stable crypto.Address, riskyDecimals, stableDecimals uint8) (PairID, error) {
	if risky.Equal(stable) {
		return 0, rmmerrors.ErrSameToken
	}
	if riskyDecimals < minDecimals || riskyDecimals > maxDecimals ||
		stableDecimals < minDecimals || stableDecimals > maxDecimals {
		return 0, rmmerrors.ErrInvalidDecimals
	}
	for _, existing := range s.pairs {
		if existing.RiskyToken.Equal(risky) && existing.StableToken.Equal(stable) {
			return 0, rmmerrors.ErrPairExists
		}
	}
	id := s.nextPair
	s.nextPair++
	s.pairs[id] = &Pair{
		ID:             id,
		RiskyToken:     risky,
		StableToken:    stable,
		RiskyDecimals:  riskyDecimals,
		StableDecimals: stableDecimals,
	}
	s.pairOrder = append(s.pairOrder, id)
	return id, nil
}

// Pair looks up a pair by id.
func (s *Store) Pair(id PairID) (*Pair, error) {
	p, ok := s.pairs[id]
	if !ok {
		return nil, rmmerrors.ErrPairNotFound
	}
	return p, nil
}

// Pairs returns every registered pair in creation order.
func (s *Store) Pairs() []*Pair {
	out := make([]*Pair, 0, len(s.pairOrder))
	for _, id := range s.pairOrder {
		out = append(out, s.pairs[id])
	}
	return out
}

// CreatePoolInput bundles the parameters needed to bootstrap a new pool.
type CreatePoolInput struct {
	Pair          PairID
	Controller    crypto.Address
	HasController bool
	Params        curve.Params
	MaturityUnix  int64
	FeeBps        int64
	PriorityFeeBps int64
	// Jit is the pool's just-in-time liquidity policy window in seconds. A
	// controller-less pool pins this to the configured protocol default
	// rather than accepting a caller-supplied value.
	Jit int64
	// InitialPrice seeds the pool's reserves via curve.ComputeReserves so a
	// freshly created pool starts on its canonical (zero-invariant) curve.
	InitialPrice *big.Int
	// InitialLiquidity is the WAD liquidity the controller is allocating in
	// the same call that creates the pool.
	InitialLiquidity *big.Int
	// Now is the creation timestamp (Unix seconds), stamped onto the
	// creator's first position so its jit window starts here.
	Now int64
}

// CreatePool bootstraps a new pool on an existing pair, seeding its
// reserves from an initial marginal price, and opens the creator's first
// position. Deltas owed to the ledger (risky/stable amounts to debit from
// the caller) are returned so the dispatcher can apply them within the same
// settlement window.
func (s *Store) CreatePool(in CreatePoolInput, l *ledger.Ledger) (PoolID, *Position, Delta, error) {
	if _, err := s.Pair(in.Pair); err != nil {
		return 0, nil, Delta{}, err
	}
	if in.InitialLiquidity == nil || in.InitialLiquidity.Sign() <= 0 {
		return 0, nil, Delta{}, rmmerrors.ErrZeroLiquidity
	}
	if in.FeeBps < 0 || in.FeeBps > 10_000 {
		return 0, nil, Delta{}, rmmerrors.ErrFeeOutOfRange
	}

	x, y, err := curve.ComputeReserves(in.InitialPrice, big.NewInt(0), in.Params)
	if err != nil {
		return 0, nil, Delta{}, err
	}

	nonce := s.poolNonce[in.Pair] + 1
	s.poolNonce[in.Pair] = nonce
	id := PackPoolID(in.Pair, in.HasController, nonce)

	p := &Pool{
		ID:             id,
		Pair:           in.Pair,
		Controller:     in.Controller,
		HasController:  in.HasController,
		Params:         in.Params.Clone(),
		MaturityUnix:   in.MaturityUnix,
		FeeBps:         in.FeeBps,
		PriorityFeeBps: in.PriorityFeeBps,
		Jit:            in.Jit,
		Liquidity:      new(big.Int).Set(in.InitialLiquidity),
		VirtualX:       x,
		VirtualY:       y,
		Invariant:             big.NewInt(0),
		FeeGrowthGlobal:       FeeGrowth{Risky: uint256.NewInt(0), Stable: uint256.NewInt(0)},
		InvariantGrowthGlobal: uint256.NewInt(0),
	}
	s.pools[id] = p

	riskyAmount := fixedpoint.MulWadUp(x, in.InitialLiquidity)
	stableAmount := fixedpoint.MulWadUp(y, in.InitialLiquidity)

	pos := &Position{
		Pool:      id,
		Owner:     in.Controller,
		Liquidity: new(big.Int).Set(in.InitialLiquidity),
		FeeGrowthCheckpoint: FeeGrowth{
			Risky:  new(uint256.Int).Set(p.FeeGrowthGlobal.Risky),
			Stable: new(uint256.Int).Set(p.FeeGrowthGlobal.Stable),
		},
		InvariantGrowthLast: new(uint256.Int).Set(p.InvariantGrowthGlobal),
		OwedRisky:           big.NewInt(0),
		OwedStable:          big.NewInt(0),
		LastTimestamp:       in.Now,
	}
	s.positions[PositionKey{Pool: id, Owner: string(in.Controller.Bytes())}] = pos

	return id, pos, Delta{Risky: riskyAmount, Stable: stableAmount}, nil
}

// Delta is the pair of token amounts an operation requires the
// caller to fund (positive) or is owed back (negative), scaled to raw token
// units by the caller.
type Delta struct {
	Risky  *big.Int
	Stable *big.Int
}

// Pool looks up a pool by id.
func (s *Store) Pool(id PoolID) (*Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return nil, rmmerrors.ErrPoolNotFound
	}
	return p, nil
}

// Pools returns every pool belonging to a pair, ordered by nonce.
func (s *Store) Pools(pair PairID) []*Pool {
	out := make([]*Pool, 0)
	for id, p := range s.pools {
		if id.PairID() == pair {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Nonce() < out[j].ID.Nonce() })
	return out
}

// ChangeParameters lets the pool's controller re-anchor its curve -- a new
// Sigma and/or MaturityUnix -- recomputing reserves at the pool's current
// marginal price so the pool's value is unchanged by the parameter switch,
// per the invariant that change_parameters must not move the mark price.
func (s *Store) ChangeParameters(id PoolID, caller crypto.Address, newSigma *big.Int, newMaturityUnix int64, clock adapters.Clock) error {
	p, err := s.Pool(id)
	if err != nil {
		return err
	}
	if p.HasController && !p.Controller.Equal(caller) {
		return rmmerrors.ErrNotController
	}
	if p.Paused {
		return rmmerrors.ErrPoolPaused
	}

	price, err := curve.PriceOfX(p.VirtualX, p.Params)
	if err != nil {
		return err
	}

	newParams := p.Params.Clone()
	if newSigma != nil {
		newParams.Sigma = new(big.Int).Set(newSigma)
	}
	p.MaturityUnix = newMaturityUnix
	newParams.Tau = curve.SecondsToWadYears(p.MaturityUnix - clock.UnixSeconds())
	if newParams.Tau.Sign() < 0 {
		newParams.Tau = big.NewInt(0)
	}

	x, y, err := curve.ComputeReserves(price, p.Invariant, newParams)
	if err != nil {
		return err
	}

	p.Params = newParams
	p.VirtualX = x
	p.VirtualY = y
	return nil
}

// Position looks up a liquidity provider's position in a pool.
func (s *Store) Position(id PoolID, owner crypto.Address) (*Position, error) {
	pos, ok := s.positions[PositionKey{Pool: id, Owner: string(owner.Bytes())}]
	if !ok {
		return nil, rmmerrors.ErrPositionNotFound
	}
	return pos, nil
}

func (s *Store) ensurePosition(id PoolID, owner crypto.Address, pool *Pool) *Position {
	key := PositionKey{Pool: id, Owner: string(owner.Bytes())}
	pos, ok := s.positions[key]
	if !ok {
		pos = &Position{
			Pool:      id,
			Owner:     owner,
			Liquidity: big.NewInt(0),
			FeeGrowthCheckpoint: FeeGrowth{
				Risky:  new(uint256.Int).Set(pool.FeeGrowthGlobal.Risky),
				Stable: new(uint256.Int).Set(pool.FeeGrowthGlobal.Stable),
			},
			InvariantGrowthLast: new(uint256.Int).Set(pool.InvariantGrowthGlobal),
			OwedRisky:           big.NewInt(0),
			OwedStable:          big.NewInt(0),
		}
		s.positions[key] = pos
	}
	return pos
}

// settleFees rolls a position's fee-growth checkpoint forward to the pool's
// current global checkpoint, crediting the delta (scaled by the position's
// liquidity) to OwedRisky/OwedStable, and rolls the invariant-growth
// checkpoint forward the same way with no owed-balance effect. Both
// subtractions use uint256.Int.Sub, which wraps modulo 2^256 -- the correct
// way to recover the distance between two checkpoints even after one of
// them has wrapped past zero, unlike a big.Int subtraction.
func settleFees(pos *Position, p *Pool) {
	deltaRisky := new(uint256.Int).Sub(p.FeeGrowthGlobal.Risky, pos.FeeGrowthCheckpoint.Risky)
	deltaStable := new(uint256.Int).Sub(p.FeeGrowthGlobal.Stable, pos.FeeGrowthCheckpoint.Stable)

	owedRisky := fixedpoint.MulWadDown(deltaRisky.ToBig(), pos.Liquidity)
	owedStable := fixedpoint.MulWadDown(deltaStable.ToBig(), pos.Liquidity)

	pos.OwedRisky.Add(pos.OwedRisky, owedRisky)
	pos.OwedStable.Add(pos.OwedStable, owedStable)
	pos.FeeGrowthCheckpoint.Risky.Set(p.FeeGrowthGlobal.Risky)
	pos.FeeGrowthCheckpoint.Stable.Set(p.FeeGrowthGlobal.Stable)
	pos.InvariantGrowthLast.Set(p.InvariantGrowthGlobal)
}

// Allocate adds liquidity to a pool on behalf of owner, returning the
// risky/stable amounts owed to the pool. now is the caller's Unix-second
// clock reading, stamped onto the position to start its jit window.
func (s *Store) Allocate(id PoolID, owner crypto.Address, liquidity *big.Int, now int64) (Delta, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return Delta{}, rmmerrors.ErrZeroLiquidity
	}
	p, err := s.Pool(id)
	if err != nil {
		return Delta{}, err
	}
	if p.Paused {
		return Delta{}, rmmerrors.ErrPoolPaused
	}

	pos := s.ensurePosition(id, owner, p)
	settleFees(pos, p)

	riskyAmount := fixedpoint.MulWadUp(p.VirtualX, liquidity)
	stableAmount := fixedpoint.MulWadUp(p.VirtualY, liquidity)

	p.Liquidity.Add(p.Liquidity, liquidity)
	pos.Liquidity.Add(pos.Liquidity, liquidity)
	pos.LastTimestamp = now

	return Delta{Risky: riskyAmount, Stable: stableAmount}, nil
}

// Deallocate removes liquidity from a pool on behalf of owner, returning the
// risky/stable amounts owed back to owner. It enforces the pool's jit
// policy (now - position.LastTimestamp >= pool.Jit) and refuses to drop the
// pool's liquidity below minLiquidityFloor, except to exactly zero.
func (s *Store) Deallocate(id PoolID, owner crypto.Address, liquidity *big.Int, now int64, minLiquidityFloor *big.Int) (Delta, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return Delta{}, rmmerrors.ErrZeroLiquidity
	}
	p, err := s.Pool(id)
	if err != nil {
		return Delta{}, err
	}
	pos, err := s.Position(id, owner)
	if err != nil {
		return Delta{}, err
	}
	if pos.Liquidity.Cmp(liquidity) < 0 {
		return Delta{}, rmmerrors.ErrInsufficientLiquidity
	}

	elapsed := now - pos.LastTimestamp
	if elapsed < p.Jit {
		return Delta{}, &rmmerrors.JitLiquidityError{RemainingSeconds: p.Jit - elapsed}
	}

	remaining := new(big.Int).Sub(p.Liquidity, liquidity)
	if minLiquidityFloor != nil && remaining.Sign() > 0 && remaining.Cmp(minLiquidityFloor) < 0 {
		return Delta{}, rmmerrors.ErrMinLiquidityBreach
	}

	settleFees(pos, p)

	riskyAmount := fixedpoint.MulWadDown(p.VirtualX, liquidity)
	stableAmount := fixedpoint.MulWadDown(p.VirtualY, liquidity)

	p.Liquidity.Sub(p.Liquidity, liquidity)
	pos.Liquidity.Sub(pos.Liquidity, liquidity)

	return Delta{Risky: riskyAmount, Stable: stableAmount}, nil
}

// ClaimAll is the u128::MAX sentinel a caller passes as a requested amount
// to mean "claim everything owed" rather than a specific amount; any request
// at or above this value is treated the same way.
var ClaimAll = func() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	return max.Sub(max, big.NewInt(1))
}()

// claimAmount returns min(requested, owed); a nil, negative, or
// ClaimAll-or-above request claims everything owed.
func claimAmount(requested, owed *big.Int) *big.Int {
	if requested == nil || requested.Sign() < 0 || requested.Cmp(ClaimAll) >= 0 || requested.Cmp(owed) > 0 {
		return new(big.Int).Set(owed)
	}
	return new(big.Int).Set(requested)
}

// Claim pays out up to riskyRequested/stableRequested of a position's
// accrued fees -- min(requested, owed) per leg, with ClaimAll meaning "all of
// it" -- and reduces the owed balances by exactly what was paid.
func (s *Store) Claim(id PoolID, owner crypto.Address, riskyRequested, stableRequested *big.Int) (Delta, error) {
	p, err := s.Pool(id)
	if err != nil {
		return Delta{}, err
	}
	pos, err := s.Position(id, owner)
	if err != nil {
		return Delta{}, err
	}
	settleFees(pos, p)

	if pos.OwedRisky.Sign() == 0 && pos.OwedStable.Sign() == 0 {
		return Delta{}, rmmerrors.ErrNothingToClaim
	}

	riskyOut := claimAmount(riskyRequested, pos.OwedRisky)
	stableOut := claimAmount(stableRequested, pos.OwedStable)

	pos.OwedRisky.Sub(pos.OwedRisky, riskyOut)
	pos.OwedStable.Sub(pos.OwedStable, stableOut)
	return Delta{Risky: riskyOut, Stable: stableOut}, nil
}
