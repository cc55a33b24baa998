package instructions

import (
	"math/big"

	"rmmcore/crypto"
	"rmmcore/curve"
	"rmmcore/dispatcher"
	"rmmcore/fixedpoint"
	"rmmcore/pool"
	"rmmcore/rmmerrors"
	"rmmcore/swapengine"
)

// TokenResolver maps a pair id to the token addresses a wire-decoded
// instruction doesn't itself carry (ALLOCATE/DEALLOCATE/SWAP/CLAIM name a
// pool, not a pair, so the token legs are looked up rather than re-sent on
// every frame).
type TokenResolver interface {
	PairTokens(pool.PairID) (risky, stable crypto.Address, err error)
}

// Execute drives every instruction in a decoded multiprocess batch against
// one dispatcher, in order, stopping at the first error. It returns the
// batch's blake3 audit digest alongside any execution error so a caller can
// log the digest even on a failed batch.
func Execute(d *dispatcher.Dispatcher, resolver TokenResolver, caller crypto.Address, correlationID string, instrs []Instruction) ([32]byte, error) {
	digest := BatchDigest(instrs)
	for _, inst := range instrs {
		if err := executeOne(d, resolver, caller, correlationID, inst); err != nil {
			return digest, err
		}
	}
	return digest, nil
}

func executeOne(d *dispatcher.Dispatcher, resolver TokenResolver, caller crypto.Address, correlationID string, inst Instruction) error {
	switch inst.Opcode {
	case OpCreatePair:
		_, err := d.Store.CreatePair(inst.RiskyToken, inst.StableToken, inst.RiskyDecimals, inst.StableDecimals)
		return err

	case OpCreatePool:
		risky, stable, err := resolver.PairTokens(inst.Pair)
		if err != nil {
			return err
		}
		var clockSeconds int64
		if d.Clock != nil {
			clockSeconds = d.Clock.UnixSeconds()
		}
		tau := curve.SecondsToWadYears(inst.MaturityUnix - clockSeconds)
		if tau.Sign() < 0 {
			tau = big.NewInt(0)
		}
		_, err = d.CreatePool(dispatcher.CreatePoolRequest{
			Pair:          inst.Pair,
			Controller:    inst.Controller,
			HasController: inst.HasController,
			Params: curve.Params{
				Strike: inst.Strike,
				Sigma:  inst.Sigma,
				Tau:    tau,
			},
			MaturityUnix:     inst.MaturityUnix,
			FeeBps:           inst.FeeBps,
			InitialPrice:     inst.InitialPrice,
			InitialLiquidity: new(big.Int).Set(fixedpoint.WAD),
			RiskyToken:       risky,
			StableToken:      stable,
			CorrelationID:    correlationID,
		})
		return err

	case OpAllocate:
		risky, stable, err := tokensForPool(d, resolver, inst.PoolID)
		if err != nil {
			return err
		}
		return d.Allocate(dispatcher.AllocateRequest{
			PoolID:        inst.PoolID,
			Owner:         caller,
			Liquidity:     inst.Liquidity,
			RiskyToken:    risky,
			StableToken:   stable,
			CorrelationID: correlationID,
		})

	case OpDeallocate:
		risky, stable, err := tokensForPool(d, resolver, inst.PoolID)
		if err != nil {
			return err
		}
		return d.Deallocate(dispatcher.DeallocateRequest{
			PoolID:            inst.PoolID,
			Owner:             caller,
			Liquidity:         inst.Liquidity,
			MinLiquidityFloor: big.NewInt(0),
			RiskyToken:        risky,
			StableToken:       stable,
			CorrelationID:     correlationID,
		})

	case OpSwap:
		risky, stable, err := tokensForPool(d, resolver, inst.PoolID)
		if err != nil {
			return err
		}
		direction := swapengine.RiskyForStable
		if !inst.SellAsset {
			direction = swapengine.StableForRisky
		}
		_, err = d.Swap(dispatcher.SwapRequest{
			PoolID:        inst.PoolID,
			Caller:        caller,
			Direction:     direction,
			AmountIn:      inst.AmountIn,
			MinAmountOut:  inst.MinOut,
			RiskyToken:    risky,
			StableToken:   stable,
			CorrelationID: correlationID,
		})
		return err

	case OpClaim:
		risky, stable, err := tokensForPool(d, resolver, inst.PoolID)
		if err != nil {
			return err
		}
		return d.Claim(dispatcher.ClaimRequest{
			PoolID:          inst.PoolID,
			Owner:           caller,
			RiskyToken:      risky,
			StableToken:     stable,
			RiskyRequested:  inst.RiskyRequested,
			StableRequested: inst.StableRequested,
			CorrelationID:   correlationID,
		})

	default:
		return rmmerrors.ErrUnknownOpcode
	}
}

func tokensForPool(d *dispatcher.Dispatcher, resolver TokenResolver, id pool.PoolID) (risky, stable crypto.Address, err error) {
	p, err := d.Store.Pool(id)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, err
	}
	return resolver.PairTokens(p.Pair)
}
