// Package dispatcher wraps the pool/ledger/swapengine packages behind the
// external operation surface: deposit, fund, draw, multiprocess and
// change_parameters. Every operation opens a ledger settlement window,
// executes, runs the settlement pass, and asserts the ledger came back
// balanced before returning -- the same validate/load/mutate/persist shape
// native/lending.Engine uses for its own operations, generalized with a
// second reentrancy gate on top of the module-pause gate.
package dispatcher

import (
	"errors"
	"math/big"
	"strconv"
	"sync"

	"rmmcore/adapters"
	"rmmcore/config"
	"rmmcore/crypto"
	"rmmcore/curve"
	"rmmcore/fixedpoint"
	"rmmcore/ledger"
	"rmmcore/native/common"
	"rmmcore/observability/metrics"
	"rmmcore/pool"
	"rmmcore/rmmerrors"
	"rmmcore/rmmevents"
	"rmmcore/swapengine"
)

// reentrancyState mirrors the Idle/Busy state machine: a dispatcher may only
// be Busy while servicing one external call at a time.
type reentrancyState int

const (
	stateIdle reentrancyState = iota
	stateBusy
)

// PauseRegistry implements common.PauseView over an in-memory set of paused
// module names (e.g. "swap", "allocate"), independent of any single pool's
// own Paused flag.
type PauseRegistry struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseRegistry returns an empty, all-unpaused registry.
func NewPauseRegistry() *PauseRegistry {
	return &PauseRegistry{paused: make(map[string]bool)}
}

// IsPaused implements common.PauseView.
func (r *PauseRegistry) IsPaused(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused[module]
}

// SetPaused toggles whether a named module is paused.
func (r *PauseRegistry) SetPaused(module string, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused[module] = paused
}

// Dispatcher is the single entry point external callers use to mutate the
// core's state.
type Dispatcher struct {
	Store      *pool.Store
	Ledger     *ledger.Ledger
	SwapEngine *swapengine.Engine
	Tokens     map[string]adapters.Token
	Clock      adapters.Clock
	Emit       rmmevents.Emitter
	Pauses     *PauseRegistry
	Config     *config.Config

	// Self is the engine's own address -- the transfer/transfer_from
	// counterparty the ledger settles shortfalls and draws against.
	Self crypto.Address
	// WrappedNativeToken is the token address Deposit wraps native value
	// into; it must be registered via RegisterToken as an
	// adapters.WrappedNative before Deposit is called.
	WrappedNativeToken crypto.Address

	state reentrancyState
}

// New wires a dispatcher over a fresh store/ledger/swap engine.
func New(store *pool.Store, clock adapters.Clock, emitter rmmevents.Emitter) *Dispatcher {
	if emitter == nil {
		emitter = rmmevents.NoopEmitter{}
	}
	cfg := &config.Config{}
	cfg.EnsureDefaults()
	return &Dispatcher{
		Store:      store,
		Ledger:     ledger.New(),
		SwapEngine: swapengine.New(store),
		Tokens:     make(map[string]adapters.Token),
		Clock:      clock,
		Emit:       emitter,
		Pauses:     NewPauseRegistry(),
		Config:     cfg,
		Self:       crypto.NewAddress(crypto.NHBPrefix, make([]byte, 20)),
	}
}

// RegisterToken wires an external collaborator behind a token address so the
// ledger's settlement pass (and draw/fund/deposit) can actually move it.
func (d *Dispatcher) RegisterToken(token crypto.Address, impl adapters.Token) {
	d.Tokens[string(token.Bytes())] = impl
}

func (d *Dispatcher) lookupToken(token crypto.Address) (adapters.Token, bool) {
	impl, ok := d.Tokens[string(token.Bytes())]
	return impl, ok
}

// pairDecimals returns the risky/stable decimal widths for the pair backing
// pool id.
func (d *Dispatcher) pairDecimals(id pool.PoolID) (risky, stable uint8, err error) {
	p, err := d.Store.Pool(id)
	if err != nil {
		return 0, 0, err
	}
	pair, err := d.Store.Pair(p.Pair)
	if err != nil {
		return 0, 0, err
	}
	return pair.RiskyDecimals, pair.StableDecimals, nil
}

// enter opens a settlement window and rejects reentrant calls; leave closes
// it, settling the ledger, and restores the Idle state regardless of
// outcome.
func (d *Dispatcher) enter(module string) error {
	if d.state == stateBusy {
		metrics.Default().ReentrancyRejected.Inc()
		return rmmerrors.ErrReentrancy
	}
	if err := common.Guard(d.Pauses, module); err != nil {
		return err
	}
	d.state = stateBusy
	return d.Ledger.Begin()
}

func (d *Dispatcher) leave() error {
	defer func() { d.state = stateIdle }()
	return d.Ledger.Settle(d.lookupToken, d.Self)
}

// now returns the dispatcher's clock reading, or zero if none was wired.
func (d *Dispatcher) now() int64 {
	if d.Clock == nil {
		return 0
	}
	return d.Clock.UnixSeconds()
}

// Deposit wraps value of the chain's native asset into owner's virtual
// balance of WrappedNativeToken -- the `deposit` operation from the
// external interface.
func (d *Dispatcher) Deposit(owner crypto.Address, value *big.Int, correlationID string) error {
	if err := d.enter("deposit"); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return d.failAndLeave(rmmerrors.ErrZeroAmount)
	}
	impl, ok := d.lookupToken(d.WrappedNativeToken)
	if !ok {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	wrapped, ok := impl.(adapters.WrappedNative)
	if !ok {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	if err := wrapped.Wrap(owner, value); err != nil {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	d.Ledger.IncreaseReserve(d.WrappedNativeToken, value)
	if err := d.Ledger.Credit(owner, d.WrappedNativeToken, value); err != nil {
		return d.failAndLeave(err)
	}
	if err := d.leave(); err != nil {
		return err
	}
	d.Emit.Emit(rmmevents.Deposit{
		CorrelationID: correlationID,
		Owner:         owner,
		Token:         d.WrappedNativeToken,
		Amount:        value.String(),
	})
	return nil
}

// Fund pulls amount of token from the external token contract into owner's
// virtual balance, emitting a Deposit event on success.
func (d *Dispatcher) Fund(owner, token crypto.Address, amount *big.Int, correlationID string) error {
	if err := d.enter("fund"); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return d.failAndLeave(rmmerrors.ErrZeroAmount)
	}
	impl, ok := d.lookupToken(token)
	if !ok {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	if err := impl.Transfer(owner, d.Self, amount); err != nil {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	d.Ledger.IncreaseReserve(token, amount)
	if err := d.Ledger.Credit(owner, token, amount); err != nil {
		return d.failAndLeave(err)
	}
	if err := d.leave(); err != nil {
		return err
	}
	d.Emit.Emit(rmmevents.Deposit{
		CorrelationID: correlationID,
		Owner:         owner,
		Token:         token,
		Amount:        amount.String(),
	})
	return nil
}

// Draw pushes amount of token from owner's virtual balance out to the
// external token contract at to, unwrapping it first if token is the
// wrapped-native asset.
func (d *Dispatcher) Draw(owner, token, to crypto.Address, amount *big.Int) error {
	if err := d.enter("draw"); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return d.failAndLeave(rmmerrors.ErrZeroAmount)
	}
	if to.Equal(d.Self) {
		return d.failAndLeave(rmmerrors.ErrInvalidTransfer)
	}
	if d.Ledger.Balance(owner, token).Cmp(amount) < 0 {
		return d.failAndLeave(rmmerrors.ErrDrawBalance)
	}
	impl, ok := d.lookupToken(token)
	if !ok {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	if token.Equal(d.WrappedNativeToken) {
		wrapped, ok := impl.(adapters.WrappedNative)
		if !ok {
			return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
		}
		if err := wrapped.Unwrap(owner, amount); err != nil {
			return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
		}
	}
	if err := impl.Transfer(d.Self, to, amount); err != nil {
		return d.failAndLeave(rmmerrors.ErrTokenTransferFailed)
	}
	if err := d.Ledger.Debit(owner, token, amount); err != nil {
		return d.failAndLeave(err)
	}
	if err := d.Ledger.DecreaseReserve(token, amount); err != nil {
		return d.failAndLeave(err)
	}
	return d.leave()
}

// failAndLeave resets the reentrancy gate on an error path. When the failed
// operation touched no balance, its empty settlement window is closed too,
// so the next operation can open a fresh one.
func (d *Dispatcher) failAndLeave(err error) error {
	if d.Ledger.Open() && len(d.Ledger.WarmTokens()) == 0 {
		_ = d.Ledger.Settle(d.lookupToken, d.Self)
	}
	d.state = stateIdle
	return err
}

// CreatePoolRequest bundles the caller-supplied inputs to CreatePool.
type CreatePoolRequest struct {
	Pair             pool.PairID
	Controller       crypto.Address
	HasController    bool
	Params           curve.Params
	MaturityUnix     int64
	FeeBps           int64
	PriorityFeeBps   int64
	Jit              int64
	InitialPrice     *big.Int
	InitialLiquidity *big.Int
	RiskyToken       crypto.Address
	StableToken      crypto.Address
	CorrelationID    string
}

// CreatePool funds a new pool's initial reserves from the controller's
// virtual balances and registers its first position.
func (d *Dispatcher) CreatePool(req CreatePoolRequest) (pool.PoolID, error) {
	if err := d.enter("create_pool"); err != nil {
		return 0, err
	}

	if !req.HasController {
		req.PriorityFeeBps = 0
		req.Jit = d.Config.DefaultJitPolicySeconds
	}

	if !d.Config.ValidateFee(req.FeeBps) {
		return 0, d.failAndLeave(rmmerrors.ErrFeeOutOfRange)
	}
	if ok, err := d.Config.ValidateVolatility(req.Params.Sigma); err != nil {
		return 0, d.failAndLeave(err)
	} else if !ok {
		return 0, d.failAndLeave(rmmerrors.ErrSigmaOutOfRange)
	}

	poolID, _, delta, err := d.Store.CreatePool(pool.CreatePoolInput{
		Pair:             req.Pair,
		Controller:       req.Controller,
		HasController:    req.HasController,
		Params:           req.Params,
		MaturityUnix:     req.MaturityUnix,
		FeeBps:           req.FeeBps,
		PriorityFeeBps:   req.PriorityFeeBps,
		Jit:              req.Jit,
		InitialPrice:     req.InitialPrice,
		InitialLiquidity: req.InitialLiquidity,
		Now:              d.now(),
	}, d.Ledger)
	if err != nil {
		return 0, d.failAndLeave(err)
	}

	pair, err := d.Store.Pair(req.Pair)
	if err != nil {
		return 0, d.failAndLeave(err)
	}
	riskyRaw := fixedpoint.ScaleFromWadDown(delta.Risky, pair.RiskyDecimals)
	stableRaw := fixedpoint.ScaleFromWadDown(delta.Stable, pair.StableDecimals)

	if err := d.Ledger.Debit(req.Controller, req.RiskyToken, riskyRaw); err != nil {
		return 0, d.failAndLeave(err)
	}
	if err := d.Ledger.Debit(req.Controller, req.StableToken, stableRaw); err != nil {
		return 0, d.failAndLeave(err)
	}

	if err := d.leave(); err != nil {
		return 0, err
	}

	d.Emit.Emit(rmmevents.CreatePool{
		CorrelationID: req.CorrelationID,
		PoolID:        poolID,
		Controller:    req.Controller,
		InitialPrice:  req.InitialPrice.String(),
		Liquidity:     req.InitialLiquidity.String(),
	})
	return poolID, nil
}

// AllocateRequest bundles the inputs to Allocate.
type AllocateRequest struct {
	PoolID        pool.PoolID
	Owner         crypto.Address
	Liquidity     *big.Int
	RiskyToken    crypto.Address
	StableToken   crypto.Address
	CorrelationID string
}

// Allocate adds liquidity to a pool, debiting the caller's virtual balances
// for the risky/stable amounts the pool's curve requires.
func (d *Dispatcher) Allocate(req AllocateRequest) error {
	if err := d.enter("allocate"); err != nil {
		return err
	}

	delta, err := d.Store.Allocate(req.PoolID, req.Owner, req.Liquidity, d.now())
	if err != nil {
		return d.failAndLeave(err)
	}

	riskyDecimals, stableDecimals, err := d.pairDecimals(req.PoolID)
	if err != nil {
		return d.failAndLeave(err)
	}
	riskyRaw := fixedpoint.ScaleFromWadDown(delta.Risky, riskyDecimals)
	stableRaw := fixedpoint.ScaleFromWadDown(delta.Stable, stableDecimals)

	if err := d.Ledger.Debit(req.Owner, req.RiskyToken, riskyRaw); err != nil {
		return d.failAndLeave(err)
	}
	if err := d.Ledger.Debit(req.Owner, req.StableToken, stableRaw); err != nil {
		return d.failAndLeave(err)
	}

	if err := d.leave(); err != nil {
		return err
	}

	d.updatePoolLiquidityGauge(req.PoolID)
	d.Emit.Emit(rmmevents.Allocate{
		CorrelationID: req.CorrelationID,
		PoolID:        req.PoolID,
		Owner:         req.Owner,
		Liquidity:     req.Liquidity.String(),
		RiskyIn:       riskyRaw.String(),
		StableIn:      stableRaw.String(),
	})
	return nil
}

// DeallocateRequest bundles the inputs to Deallocate.
type DeallocateRequest struct {
	PoolID            pool.PoolID
	Owner             crypto.Address
	Liquidity         *big.Int
	MinLiquidityFloor *big.Int
	RiskyToken        crypto.Address
	StableToken       crypto.Address
	CorrelationID     string
}

// Deallocate removes liquidity from a pool, crediting the caller's virtual
// balances with the risky/stable amounts returned.
func (d *Dispatcher) Deallocate(req DeallocateRequest) error {
	if err := d.enter("deallocate"); err != nil {
		return err
	}

	delta, err := d.Store.Deallocate(req.PoolID, req.Owner, req.Liquidity, d.now(), req.MinLiquidityFloor)
	if err != nil {
		return d.failAndLeave(err)
	}

	riskyDecimals, stableDecimals, err := d.pairDecimals(req.PoolID)
	if err != nil {
		return d.failAndLeave(err)
	}
	riskyRaw := fixedpoint.ScaleFromWadDown(delta.Risky, riskyDecimals)
	stableRaw := fixedpoint.ScaleFromWadDown(delta.Stable, stableDecimals)

	if err := d.Ledger.Credit(req.Owner, req.RiskyToken, riskyRaw); err != nil {
		return d.failAndLeave(err)
	}
	if err := d.Ledger.Credit(req.Owner, req.StableToken, stableRaw); err != nil {
		return d.failAndLeave(err)
	}

	if err := d.leave(); err != nil {
		return err
	}

	d.updatePoolLiquidityGauge(req.PoolID)
	d.Emit.Emit(rmmevents.Deallocate{
		CorrelationID: req.CorrelationID,
		PoolID:        req.PoolID,
		Owner:         req.Owner,
		Liquidity:     req.Liquidity.String(),
		RiskyOut:      riskyRaw.String(),
		StableOut:     stableRaw.String(),
	})
	return nil
}

// ClaimRequest bundles the inputs to Claim. RiskyRequested/StableRequested
// cap how much of the owed amount is actually paid out -- pool.ClaimAll (the
// u128::MAX sentinel) requests the full owed balance on that leg.
type ClaimRequest struct {
	PoolID          pool.PoolID
	Owner           crypto.Address
	RiskyToken      crypto.Address
	StableToken     crypto.Address
	RiskyRequested  *big.Int
	StableRequested *big.Int
	CorrelationID   string
}

// Claim pays out up to the requested risky/stable amounts of a position's
// accrued fees to the caller's virtual balances.
func (d *Dispatcher) Claim(req ClaimRequest) error {
	if err := d.enter("claim"); err != nil {
		return err
	}

	delta, err := d.Store.Claim(req.PoolID, req.Owner, req.RiskyRequested, req.StableRequested)
	if err != nil {
		return d.failAndLeave(err)
	}

	riskyDecimals, stableDecimals, err := d.pairDecimals(req.PoolID)
	if err != nil {
		return d.failAndLeave(err)
	}
	riskyRaw := fixedpoint.ScaleFromWadDown(delta.Risky, riskyDecimals)
	stableRaw := fixedpoint.ScaleFromWadDown(delta.Stable, stableDecimals)

	if err := d.Ledger.Credit(req.Owner, req.RiskyToken, riskyRaw); err != nil {
		return d.failAndLeave(err)
	}
	if err := d.Ledger.Credit(req.Owner, req.StableToken, stableRaw); err != nil {
		return d.failAndLeave(err)
	}

	if err := d.leave(); err != nil {
		return err
	}

	poolLabel := strconv.FormatUint(uint64(req.PoolID), 10)
	metrics.Default().FeeGrowthTotal.WithLabelValues(poolLabel, "risky").Add(bigFloatApprox(delta.Risky))
	metrics.Default().FeeGrowthTotal.WithLabelValues(poolLabel, "stable").Add(bigFloatApprox(delta.Stable))
	d.Emit.Emit(rmmevents.Collect{
		CorrelationID: req.CorrelationID,
		PoolID:        req.PoolID,
		Owner:         req.Owner,
		RiskyAmount:   riskyRaw.String(),
		StableAmount:  stableRaw.String(),
	})
	return nil
}

// SwapRequest bundles the inputs to Swap.
type SwapRequest struct {
	PoolID        pool.PoolID
	Caller        crypto.Address
	Direction     swapengine.Direction
	AmountIn      *big.Int
	MinAmountOut  *big.Int
	RiskyToken    crypto.Address
	StableToken   crypto.Address
	CorrelationID string
}

// Swap executes a trade against a pool, moving the input token out of the
// caller's virtual balance and the output token in.
func (d *Dispatcher) Swap(req SwapRequest) (swapengine.Result, error) {
	if err := d.enter("swap"); err != nil {
		return swapengine.Result{}, err
	}

	result, err := d.SwapEngine.Swap(req.PoolID, swapengine.Request{
		Direction:    req.Direction,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Now:          d.now(),
	})
	if err != nil {
		var invariantErr *rmmerrors.InvalidInvariantError
		if errors.As(err, &invariantErr) {
			metrics.Default().InvariantViolations.Inc()
		}
		return swapengine.Result{}, d.failAndLeave(err)
	}

	inToken, outToken := req.RiskyToken, req.StableToken
	if req.Direction == swapengine.StableForRisky {
		inToken, outToken = req.StableToken, req.RiskyToken
	}
	if err := d.Ledger.Debit(req.Caller, inToken, result.AmountIn); err != nil {
		return swapengine.Result{}, d.failAndLeave(err)
	}
	if err := d.Ledger.Credit(req.Caller, outToken, result.AmountOut); err != nil {
		return swapengine.Result{}, d.failAndLeave(err)
	}

	if err := d.leave(); err != nil {
		return swapengine.Result{}, err
	}

	direction := "stable_for_risky"
	if req.Direction == swapengine.RiskyForStable {
		direction = "risky_for_stable"
	}
	metrics.Default().SwapsTotal.WithLabelValues(direction).Inc()

	d.Emit.Emit(rmmevents.Swap{
		CorrelationID:  req.CorrelationID,
		PoolID:         req.PoolID,
		Caller:         req.Caller,
		RiskyForStable: req.Direction == swapengine.RiskyForStable,
		AmountIn:       result.AmountIn.String(),
		AmountOut:      result.AmountOut.String(),
		FeeAmount:      result.FeeAmount.String(),
		Clamped:        result.Clamped,
	})
	return result, nil
}

// ChangeParametersRequest bundles the inputs to ChangeParameters.
type ChangeParametersRequest struct {
	PoolID        pool.PoolID
	Caller        crypto.Address
	NewSigma      *big.Int
	NewMaturity   int64
	CorrelationID string
}

// ChangeParameters re-anchors a pool's curve; it touches no token balances,
// so its settlement window opens and closes empty.
func (d *Dispatcher) ChangeParameters(req ChangeParametersRequest) error {
	if err := d.enter("change_parameters"); err != nil {
		return err
	}

	if req.NewSigma != nil {
		if ok, err := d.Config.ValidateVolatility(req.NewSigma); err != nil {
			return d.failAndLeave(err)
		} else if !ok {
			return d.failAndLeave(rmmerrors.ErrSigmaOutOfRange)
		}
	}

	if err := d.Store.ChangeParameters(req.PoolID, req.Caller, req.NewSigma, req.NewMaturity, d.Clock); err != nil {
		return d.failAndLeave(err)
	}

	if err := d.leave(); err != nil {
		return err
	}

	d.Emit.Emit(rmmevents.ChangeParameters{
		CorrelationID: req.CorrelationID,
		PoolID:        req.PoolID,
		Controller:    req.Caller,
		NewSigma:      req.NewSigma.String(),
		NewMaturity:   req.NewMaturity,
	})
	return nil
}

// updatePoolLiquidityGauge refreshes the exported liquidity gauge for a
// pool after an allocate/deallocate call changes it.
func (d *Dispatcher) updatePoolLiquidityGauge(id pool.PoolID) {
	p, err := d.Store.Pool(id)
	if err != nil {
		return
	}
	label := strconv.FormatUint(uint64(id), 10)
	metrics.Default().PoolLiquidity.WithLabelValues(label).Set(bigFloatApprox(p.Liquidity))
}

// bigFloatApprox converts a WAD-scaled big.Int into a float64 approximation
// suitable for a prometheus counter/gauge, which only stores float64s; the
// dispatcher's ledger and pool state remain exact, this is purely an
// observability-side rounding.
func bigFloatApprox(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	scaled := new(big.Float).Quo(f, new(big.Float).SetInt(fixedpoint.WAD))
	out, _ := scaled.Float64()
	return out
}
