package rmmevents

import (
	"strconv"

	"rmmcore/crypto"
	"rmmcore/pool"
)

func addrAttr(a crypto.Address) string {
	return a.String()
}

func poolIDAttr(id pool.PoolID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// CreatePair is emitted when a new (risky, stable) pair is registered.
type CreatePair struct {
	CorrelationID string
	PairID        pool.PairID
	RiskyToken    crypto.Address
	StableToken   crypto.Address
}

func (CreatePair) EventType() string { return "create_pair" }

// Event converts the event into its wire-agnostic Record form.
func (e CreatePair) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"pairId":      strconv.FormatUint(uint64(e.PairID), 10),
			"riskyToken":  addrAttr(e.RiskyToken),
			"stableToken": addrAttr(e.StableToken),
		},
		CorrelationID: e.CorrelationID,
	}
}

// CreatePool is emitted when a new pool is bootstrapped on a pair.
type CreatePool struct {
	CorrelationID string
	PoolID        pool.PoolID
	Controller    crypto.Address
	InitialPrice  string
	Liquidity     string
}

func (CreatePool) EventType() string { return "create_pool" }

// Event converts the event into its wire-agnostic Record form.
func (e CreatePool) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"poolId":       poolIDAttr(e.PoolID),
			"controller":   addrAttr(e.Controller),
			"initialPrice": e.InitialPrice,
			"liquidity":    e.Liquidity,
		},
		CorrelationID: e.CorrelationID,
	}
}

// Allocate is emitted when a liquidity provider adds liquidity to a pool.
type Allocate struct {
	CorrelationID string
	PoolID        pool.PoolID
	Owner         crypto.Address
	Liquidity     string
	RiskyIn       string
	StableIn      string
}

func (Allocate) EventType() string { return "allocate" }

// Event converts the event into its wire-agnostic Record form.
func (e Allocate) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"poolId":    poolIDAttr(e.PoolID),
			"owner":     addrAttr(e.Owner),
			"liquidity": e.Liquidity,
			"riskyIn":   e.RiskyIn,
			"stableIn":  e.StableIn,
		},
		CorrelationID: e.CorrelationID,
	}
}

// Deallocate is emitted when a liquidity provider removes liquidity.
type Deallocate struct {
	CorrelationID string
	PoolID        pool.PoolID
	Owner         crypto.Address
	Liquidity     string
	RiskyOut      string
	StableOut     string
}

func (Deallocate) EventType() string { return "deallocate" }

// Event converts the event into its wire-agnostic Record form.
func (e Deallocate) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"poolId":    poolIDAttr(e.PoolID),
			"owner":     addrAttr(e.Owner),
			"liquidity": e.Liquidity,
			"riskyOut":  e.RiskyOut,
			"stableOut": e.StableOut,
		},
		CorrelationID: e.CorrelationID,
	}
}

// Swap is emitted for every completed swap, clamped or not.
type Swap struct {
	CorrelationID string
	PoolID        pool.PoolID
	Caller        crypto.Address
	RiskyForStable bool
	AmountIn      string
	AmountOut     string
	FeeAmount     string
	Clamped       bool
}

func (Swap) EventType() string { return "swap" }

// Event converts the event into its wire-agnostic Record form.
func (e Swap) Event() *Record {
	direction := "stable_for_risky"
	if e.RiskyForStable {
		direction = "risky_for_stable"
	}
	clamped := "false"
	if e.Clamped {
		clamped = "true"
	}
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"poolId":    poolIDAttr(e.PoolID),
			"caller":    addrAttr(e.Caller),
			"direction": direction,
			"amountIn":  e.AmountIn,
			"amountOut": e.AmountOut,
			"fee":       e.FeeAmount,
			"clamped":   clamped,
		},
		CorrelationID: e.CorrelationID,
	}
}

// Collect is emitted when a liquidity provider claims accrued fees.
type Collect struct {
	CorrelationID string
	PoolID        pool.PoolID
	Owner         crypto.Address
	RiskyAmount   string
	StableAmount  string
}

func (Collect) EventType() string { return "collect" }

// Event converts the event into its wire-agnostic Record form.
func (e Collect) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"poolId":       poolIDAttr(e.PoolID),
			"owner":        addrAttr(e.Owner),
			"riskyAmount":  e.RiskyAmount,
			"stableAmount": e.StableAmount,
		},
		CorrelationID: e.CorrelationID,
	}
}

// ChangeParameters is emitted when a pool's controller re-anchors its curve.
type ChangeParameters struct {
	CorrelationID string
	PoolID        pool.PoolID
	Controller    crypto.Address
	NewSigma      string
	NewMaturity   int64
}

func (ChangeParameters) EventType() string { return "change_parameters" }

// Event converts the event into its wire-agnostic Record form.
func (e ChangeParameters) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"poolId":      poolIDAttr(e.PoolID),
			"controller":  addrAttr(e.Controller),
			"newSigma":    e.NewSigma,
			"newMaturity": strconv.FormatInt(e.NewMaturity, 10),
		},
		CorrelationID: e.CorrelationID,
	}
}

// Deposit is emitted when a caller funds their virtual balance from an
// external token transfer (the `fund` operation) or by wrapping native
// value (the `deposit` operation).
type Deposit struct {
	CorrelationID string
	Owner         crypto.Address
	Token         crypto.Address
	Amount        string
}

func (Deposit) EventType() string { return "deposit" }

// Event converts the event into its wire-agnostic Record form.
func (e Deposit) Event() *Record {
	return &Record{
		Type: e.EventType(),
		Attributes: map[string]string{
			"owner":  addrAttr(e.Owner),
			"token":  addrAttr(e.Token),
			"amount": e.Amount,
		},
		CorrelationID: e.CorrelationID,
	}
}
