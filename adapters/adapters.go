// Package adapters declares the external collaborators the RMM core treats
// as abstract: the token contracts it moves balances through, the
// wrapped-native unwrap/wrap path, the execution host's clock, and the
// caller's identity. No chain-backed implementation lives here -- the
// on-chain execution host that would back them is out of this module's
// scope; the package carries only the small reference implementations
// SystemClock, StaticCaller and MemoryToken. The dispatcher, ledger and pool
// store are written against these interfaces, the same way native/lending's engineState abstracts over
// persistence without the engine knowing how state is actually stored.
package adapters

import (
	"math/big"

	"rmmcore/crypto"
)

// Token is the minimal ERC-20-shaped surface the core needs from a risky or
// stable asset: balance inspection and a transfer that the host executes
// and reports the outcome of.
type Token interface {
	BalanceOf(owner crypto.Address) (*big.Int, error)
	Decimals() uint8
	Transfer(from, to crypto.Address, amount *big.Int) error
}

// WrappedNative extends Token with the wrap/unwrap operations needed when a
// pool's risky or stable leg is the chain's native asset rather than an
// ERC-20.
type WrappedNative interface {
	Token
	Wrap(owner crypto.Address, amount *big.Int) error
	Unwrap(owner crypto.Address, amount *big.Int) error
}

// Clock exposes the execution host's notion of current time, used to
// recompute a pool's time-to-maturity on every operation rather than storing
// a stale duration.
type Clock interface {
	UnixSeconds() int64
}

// CallerContext identifies who is invoking the current operation, the
// identity the dispatcher uses for position ownership and controller checks.
type CallerContext interface {
	Caller() crypto.Address
}

// SystemClock is a trivial Clock backed by a caller-supplied seconds value,
// used by tests and by any host that already computes wall-clock time
// itself rather than delegating to time.Now.
type SystemClock struct {
	Seconds int64
}

// UnixSeconds implements Clock.
func (c SystemClock) UnixSeconds() int64 {
	return c.Seconds
}

// StaticCaller is a CallerContext that always returns the same address,
// useful for tests and for single-caller batch execution contexts.
type StaticCaller struct {
	Address crypto.Address
}

// Caller implements CallerContext.
func (c StaticCaller) Caller() crypto.Address {
	return c.Address
}

// MemoryToken is a trivial in-memory Token/WrappedNative implementation:
// every caller has an effectively unlimited balance and every transfer
// succeeds unconditionally. It is a reference collaborator for hosts that
// have no real chain-backed token behind an address yet still need the
// settlement pass to exercise the adapter surface, the same role a stub
// clock or stub caller plays elsewhere in this package.
type MemoryToken struct {
	decimals uint8
}

// NewMemoryToken returns a MemoryToken reporting the given decimal width.
func NewMemoryToken(decimals uint8) *MemoryToken {
	return &MemoryToken{decimals: decimals}
}

// Decimals implements Token.
func (t *MemoryToken) Decimals() uint8 {
	return t.decimals
}

// BalanceOf implements Token with an unlimited balance.
func (t *MemoryToken) BalanceOf(owner crypto.Address) (*big.Int, error) {
	return new(big.Int).Lsh(big.NewInt(1), 128), nil
}

// Transfer implements Token. There is no backing balance sheet to move
// tokens between, so every transfer simply succeeds.
func (t *MemoryToken) Transfer(from, to crypto.Address, amount *big.Int) error {
	return nil
}

// Wrap implements WrappedNative.
func (t *MemoryToken) Wrap(owner crypto.Address, amount *big.Int) error {
	return nil
}

// Unwrap implements WrappedNative.
func (t *MemoryToken) Unwrap(owner crypto.Address, amount *big.Int) error {
	return nil
}
