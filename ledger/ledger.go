// Package ledger implements the accounting layer that sits between the pool
// engine and the external token/wrapped-native collaborators: per-token
// reserves, per-owner virtual balances, a warm-token set used to order
// settlement, and the settlement pass that must run to completion before any
// operation returns control to its caller.
package ledger

import (
	"math/big"

	"rmmcore/adapters"
	"rmmcore/crypto"
	"rmmcore/rmmerrors"
)

// WarmEntry is one owner/token pair touched during a settlement window.
type WarmEntry struct {
	Owner crypto.Address
	Token crypto.Address
}

// balanceKey is a comparable projection of WarmEntry suitable for use as a
// map key -- crypto.Address embeds a []byte and so cannot be compared or
// hashed directly.
type balanceKey struct {
	owner string
	token string
}

func keyOf(owner, token crypto.Address) balanceKey {
	return balanceKey{owner: string(owner.Bytes()), token: string(token.Bytes())}
}

// TokenLookup resolves the external collaborator backing a token address.
// The dispatcher supplies it at Settle time so the ledger itself never owns
// a token registry.
type TokenLookup func(token crypto.Address) (adapters.Token, bool)

// Ledger is the accounting layer shared across every dispatcher operation.
// reserves and balances persist across calls -- only the warm set is
// per-window -- so a debit the caller hasn't pre-funded survives Begin and
// actually pulls from the external token during the next Settle, instead of
// being reversed within the same window.
type Ledger struct {
	reserves map[string]*big.Int
	balances map[balanceKey]*big.Int
	entries  map[balanceKey]WarmEntry

	warm     []balanceKey
	warmSeen map[balanceKey]bool

	open    bool
	settled bool
}

// New returns a closed, unsettled ledger with empty reserves/balances; call
// Begin to open a settlement window before using it.
func New() *Ledger {
	return &Ledger{
		reserves: make(map[string]*big.Int),
		balances: make(map[balanceKey]*big.Int),
		entries:  make(map[balanceKey]WarmEntry),
	}
}

// Begin opens a fresh settlement window. It is an error to Begin while a
// previous window is still open. Reserves and balances are left untouched --
// they are persistent ledger state, not per-call scratch -- only the warm
// set resets.
func (l *Ledger) Begin() error {
	if l.open {
		return rmmerrors.ErrLedgerAlreadyOpen
	}
	l.warm = nil
	l.warmSeen = make(map[balanceKey]bool)
	l.open = true
	l.settled = false
	return nil
}

func (l *Ledger) touch(owner, token crypto.Address) balanceKey {
	key := keyOf(owner, token)
	if _, ok := l.balances[key]; !ok {
		l.balances[key] = big.NewInt(0)
	}
	if _, ok := l.entries[key]; !ok {
		l.entries[key] = WarmEntry{Owner: owner, Token: token}
	}
	if !l.warmSeen[key] {
		l.warmSeen[key] = true
		l.warm = append(l.warm, key)
	}
	return key
}

// Credit increases owner's persistent virtual balance of token by amount.
func (l *Ledger) Credit(owner, token crypto.Address, amount *big.Int) error {
	if !l.open {
		return rmmerrors.ErrLedgerNotOpen
	}
	if amount == nil || amount.Sign() < 0 {
		return rmmerrors.ErrInsufficientBalance
	}
	key := l.touch(owner, token)
	l.balances[key].Add(l.balances[key], amount)
	return nil
}

// Debit decreases owner's persistent virtual balance of token by amount. The
// balance is allowed to go negative -- it then represents a shortfall Settle
// must pull from the external token contract -- but an external transfer
// that fails to cover it leaves the window unsettled.
func (l *Ledger) Debit(owner, token crypto.Address, amount *big.Int) error {
	if !l.open {
		return rmmerrors.ErrLedgerNotOpen
	}
	if amount == nil || amount.Sign() < 0 {
		return rmmerrors.ErrInsufficientBalance
	}
	key := l.touch(owner, token)
	l.balances[key].Sub(l.balances[key], amount)
	return nil
}

// Balance returns owner's current persistent virtual balance of token, zero
// if never touched.
func (l *Ledger) Balance(owner, token crypto.Address) *big.Int {
	key := keyOf(owner, token)
	if v, ok := l.balances[key]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// Reserve returns the ledger's tracked reserve of token -- the amount it
// believes the engine physically holds -- zero if untouched.
func (l *Ledger) Reserve(token crypto.Address) *big.Int {
	if v, ok := l.reserves[string(token.Bytes())]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *Ledger) reserveSlot(token crypto.Address) *big.Int {
	key := string(token.Bytes())
	v, ok := l.reserves[key]
	if !ok {
		v = big.NewInt(0)
		l.reserves[key] = v
	}
	return v
}

// IncreaseReserve records that amount more of token has entered the engine.
func (l *Ledger) IncreaseReserve(token crypto.Address, amount *big.Int) {
	slot := l.reserveSlot(token)
	slot.Add(slot, amount)
}

// DecreaseReserve records that amount of token has left the engine, failing
// with ErrDrawBalance if the tracked reserve can't cover it.
func (l *Ledger) DecreaseReserve(token crypto.Address, amount *big.Int) error {
	slot := l.reserveSlot(token)
	if slot.Cmp(amount) < 0 {
		return rmmerrors.ErrDrawBalance
	}
	slot.Sub(slot, amount)
	return nil
}

// WarmTokens returns the owner/token pairs touched this window, in the order
// they were first touched (insertion order; Settle drains LIFO).
func (l *Ledger) WarmTokens() []WarmEntry {
	out := make([]WarmEntry, len(l.warm))
	for i, key := range l.warm {
		out[i] = l.entries[key]
	}
	return out
}

// Settle walks the warm set LIFO (most-recently-touched first). Any balance
// left negative is a shortfall the caller owes the engine: Settle pulls it
// from the token's external contract via Transfer(owner, self, shortfall)
// and credits the matching reserve, the reconciliation pass that actually
// moves tokens rather than merely zeroing a scratch balance. self is the
// engine's own address, the transfer counterparty. A token touched this
// window with no registered adapter, or whose external transfer fails,
// leaves the window unsettled and the error propagates to the caller.
func (l *Ledger) Settle(lookup TokenLookup, self crypto.Address) error {
	if !l.open {
		return rmmerrors.ErrLedgerNotOpen
	}
	for i := len(l.warm) - 1; i >= 0; i-- {
		key := l.warm[i]
		entry := l.entries[key]
		bal := l.balances[key]
		if bal.Sign() >= 0 {
			continue
		}
		shortfall := new(big.Int).Neg(bal)
		impl, ok := lookup(entry.Token)
		if !ok {
			return rmmerrors.ErrTokenTransferFailed
		}
		if err := impl.Transfer(entry.Owner, self, shortfall); err != nil {
			return rmmerrors.ErrTokenTransferFailed
		}
		bal.Add(bal, shortfall)
		l.IncreaseReserve(entry.Token, shortfall)
	}
	l.open = false
	l.settled = true
	return nil
}

// Settled reports whether the most recently opened window closed cleanly.
func (l *Ledger) Settled() bool {
	return l.settled
}

// Open reports whether a settlement window is currently active.
func (l *Ledger) Open() bool {
	return l.open
}
