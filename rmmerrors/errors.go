// Package rmmerrors collects the sentinel and typed errors returned by the
// RMM core packages. Callers should compare with errors.Is / errors.As rather
// than matching on error strings.
package rmmerrors

import (
	"errors"
	"strconv"
)

var (
	// Fixed-point and curve domain errors.
	ErrZeroPrice       = errors.New("rmm: price must be strictly positive")
	ErrNegativePrice   = errors.New("rmm: price must not be negative")
	ErrStrikeZero      = errors.New("rmm: strike must be strictly positive")
	ErrSigmaOutOfRange = errors.New("rmm: volatility outside configured bounds")
	ErrTauNegative     = errors.New("rmm: time to maturity must not be negative")
	ErrMathOverflow    = errors.New("rmm: fixed-point operation overflowed")
	ErrMathDomain      = errors.New("rmm: fixed-point operation outside its domain")

	// Pool/pair lifecycle errors.
	ErrPairExists       = errors.New("rmm: pair already exists")
	ErrPairNotFound     = errors.New("rmm: pair not found")
	ErrSameToken        = errors.New("rmm: a pair's risky and stable tokens must differ")
	ErrInvalidDecimals  = errors.New("rmm: token decimals must be between 6 and 18")
	ErrPoolExists       = errors.New("rmm: pool already exists")
	ErrPoolNotFound     = errors.New("rmm: pool not found")
	ErrPoolExpired      = errors.New("rmm: pool has matured")
	ErrPoolPaused       = errors.New("rmm: pool is paused")
	ErrPositionNotFound = errors.New("rmm: position not found")
	ErrNotController    = errors.New("rmm: caller is not the pool controller")
	ErrFeeOutOfRange    = errors.New("rmm: fee outside configured bounds")

	// Allocate/deallocate/claim errors.
	ErrInsufficientLiquidity = errors.New("rmm: insufficient liquidity")
	ErrZeroLiquidity         = errors.New("rmm: liquidity amount must be strictly positive")
	ErrMinLiquidityBreach    = errors.New("rmm: operation would breach the pool's minimum liquidity floor")
	ErrNothingToClaim        = errors.New("rmm: no accrued fees to claim")

	// Swap errors.
	ErrSwapZeroAmount    = errors.New("rmm: swap amount must be strictly positive")
	ErrSlippageExceeded  = errors.New("rmm: swap output below the caller's minimum")
	ErrAmountInExceedsCap = errors.New("rmm: requested input exceeds the pool's max input clamp")

	// Deposit/fund/draw errors.
	ErrZeroAmount      = errors.New("rmm: amount must be strictly positive")
	ErrDrawBalance     = errors.New("rmm: draw amount exceeds the caller's available balance")
	ErrInvalidTransfer = errors.New("rmm: transfer recipient must not be the engine itself")

	// Accounting/ledger errors.
	ErrInsufficientBalance = errors.New("rmm: insufficient virtual balance")
	ErrLedgerNotSettled    = errors.New("rmm: ledger was not settled before the operation returned")
	ErrLedgerAlreadyOpen   = errors.New("rmm: settlement window already open")
	ErrLedgerNotOpen       = errors.New("rmm: no settlement window is open")

	// Dispatcher/reentrancy errors.
	ErrReentrancy       = errors.New("rmm: reentrant call rejected")
	ErrUnknownOperation = errors.New("rmm: unknown operation")
	ErrUnknownOpcode    = errors.New("rmm: unknown instruction opcode")
	ErrEmptyBatch       = errors.New("rmm: instruction batch is empty")

	// Adapter/collaborator errors.
	ErrTokenTransferFailed = errors.New("rmm: token transfer failed")
	ErrCallerUnauthorized  = errors.New("rmm: caller is not authorized for this operation")
)

// InvalidInvariantError reports that a swap or allocation step would have
// decreased the pool's trading-function invariant.
type InvalidInvariantError struct {
	Prev, Next string
}

func (e *InvalidInvariantError) Error() string {
	return "rmm: invariant decreased from " + e.Prev + " to " + e.Next
}

// JitLiquidityError reports that a deallocate step arrived before the
// position's just-in-time policy window elapsed since its last allocate.
type JitLiquidityError struct {
	// RemainingSeconds is how much longer the caller must wait.
	RemainingSeconds int64
}

func (e *JitLiquidityError) Error() string {
	return "rmm: deallocate blocked by jit policy for " + strconv.FormatInt(e.RemainingSeconds, 10) + " more seconds"
}
