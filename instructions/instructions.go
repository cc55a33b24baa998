// Package instructions decodes and executes the wire format a
// `multiprocess` batch carries: a sequence of length-prefixed instruction
// frames, each headed by a single `(use_max<<4)|opcode` byte, mirroring the
// small fixed-opcode, explicit-byte-offset codec shape of
// native/fees/codec.go rather than anything reflection-based.
package instructions

import (
	"encoding/binary"
	"math/big"

	"rmmcore/crypto"
	"rmmcore/pool"
	"rmmcore/rmmerrors"

	"lukechampine.com/blake3"
)

// Opcode identifies which dispatcher operation an instruction frame drives.
type Opcode byte

// The six opcodes a multiprocess batch may carry, matching the lower nibble
// of each frame's header byte.
const (
	OpCreatePair Opcode = 0
	OpCreatePool Opcode = 1
	OpAllocate   Opcode = 2
	OpDeallocate Opcode = 3
	OpSwap       Opcode = 4
	OpClaim      Opcode = 5

	// opJump is a reserved marker: a frame whose lower nibble is opJump does
	// not drive a dispatcher call directly, it instead carries a count and
	// an offset table pointing at nested frames elsewhere in the payload.
	opJump Opcode = 0x0F
)

const (
	wadWidth  = 32 // bytes per 256-bit WAD-scaled operand
	addrWidth = 20 // bytes per raw account/token address
)

// frameHeaderSize is the leading opcode byte plus the big-endian uint32
// length prefix every frame carries, jump frames included.
const frameHeaderSize = 1 + 4

// Instruction is one decoded frame. Only the fields relevant to Opcode are
// populated; the rest are left at their zero value.
type Instruction struct {
	Opcode Opcode
	UseMax bool

	Pair           pool.PairID
	RiskyToken     crypto.Address
	StableToken    crypto.Address
	RiskyDecimals  uint8
	StableDecimals uint8
	Controller     crypto.Address
	HasController  bool
	Strike         *big.Int
	Sigma          *big.Int
	InitialPrice   *big.Int
	MaturityUnix   int64
	FeeBps         int64

	PoolID    pool.PoolID
	Liquidity *big.Int

	SellAsset bool
	AmountIn  *big.Int
	MinOut    *big.Int

	RiskyRequested  *big.Int
	StableRequested *big.Int
}

// Decode walks a multiprocess payload into its ordered instruction sequence.
// A JUMP frame is resolved transparently: its nested frames are decoded and
// spliced into the returned sequence in offset-table order.
func Decode(payload []byte) ([]Instruction, error) {
	out, err := decodeFrom(payload, 0, len(payload))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, rmmerrors.ErrEmptyBatch
	}
	return out, nil
}

func decodeFrom(payload []byte, start, end int) ([]Instruction, error) {
	var out []Instruction
	offset := start
	for offset < end {
		if offset+frameHeaderSize > end {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		header := payload[offset]
		useMax := header&0xF0 != 0
		op := Opcode(header & 0x0F)
		length := binary.BigEndian.Uint32(payload[offset+1 : offset+5])
		bodyStart := offset + frameHeaderSize
		bodyEnd := bodyStart + int(length)
		if bodyEnd > end {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		body := payload[bodyStart:bodyEnd]

		if op == opJump {
			nested, err := decodeJump(payload, body)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		} else {
			inst, err := decodeOperands(op, useMax, body)
			if err != nil {
				return nil, err
			}
			out = append(out, *inst)
		}
		offset = bodyEnd
	}
	return out, nil
}

// decodeJump reads a count followed by that many big-endian uint32 offsets
// into payload, each naming the start of a nested frame, and decodes every
// one of them in table order.
func decodeJump(payload []byte, body []byte) ([]Instruction, error) {
	if len(body) < 2 {
		return nil, rmmerrors.ErrUnknownOpcode
	}
	count := binary.BigEndian.Uint16(body[0:2])
	offsets := body[2:]
	if len(offsets) < int(count)*4 {
		return nil, rmmerrors.ErrUnknownOpcode
	}
	var out []Instruction
	for i := 0; i < int(count); i++ {
		at := int(binary.BigEndian.Uint32(offsets[i*4 : i*4+4]))
		nested, err := decodeFrom(payload, at, len(payload))
		if err != nil {
			return nil, err
		}
		if len(nested) > 0 {
			out = append(out, nested[0])
		}
	}
	return out, nil
}

func decodeOperands(op Opcode, useMax bool, body []byte) (*Instruction, error) {
	switch op {
	case OpCreatePair:
		const want = 2*addrWidth + 2
		if len(body) < want {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		return &Instruction{
			Opcode:         op,
			UseMax:         useMax,
			RiskyToken:     crypto.NewAddress(crypto.NHBPrefix, body[0:addrWidth]),
			StableToken:    crypto.NewAddress(crypto.NHBPrefix, body[addrWidth:2*addrWidth]),
			RiskyDecimals:  body[2*addrWidth],
			StableDecimals: body[2*addrWidth+1],
		}, nil

	case OpCreatePool:
		const want = 4 + 1 + addrWidth + 3*wadWidth + 8 + 2
		if len(body) < want {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		pairID := binary.BigEndian.Uint32(body[0:4])
		hasController := body[4] != 0
		off := 5
		controller := crypto.NewAddress(crypto.NHBPrefix, body[off:off+addrWidth])
		off += addrWidth
		strike := new(big.Int).SetBytes(body[off : off+wadWidth])
		off += wadWidth
		sigma := new(big.Int).SetBytes(body[off : off+wadWidth])
		off += wadWidth
		price := new(big.Int).SetBytes(body[off : off+wadWidth])
		off += wadWidth
		maturity := int64(binary.BigEndian.Uint64(body[off : off+8]))
		off += 8
		feeBps := int64(binary.BigEndian.Uint16(body[off : off+2]))
		return &Instruction{
			Opcode:        op,
			UseMax:        useMax,
			Pair:          pool.PairID(pairID),
			HasController: hasController,
			Controller:    controller,
			Strike:        strike,
			Sigma:         sigma,
			InitialPrice:  price,
			MaturityUnix:  maturity,
			FeeBps:        feeBps,
		}, nil

	case OpAllocate, OpDeallocate:
		const want = 8 + wadWidth
		if len(body) < want {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		poolID := pool.PoolID(binary.BigEndian.Uint64(body[0:8]))
		liquidity := new(big.Int).SetBytes(body[8:want])
		return &Instruction{
			Opcode:    op,
			UseMax:    useMax,
			PoolID:    poolID,
			Liquidity: liquidity,
		}, nil

	case OpSwap:
		const want = 8 + 1 + wadWidth + wadWidth
		if len(body) < want {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		poolID := pool.PoolID(binary.BigEndian.Uint64(body[0:8]))
		sellAsset := body[8] != 0
		amountIn := new(big.Int).SetBytes(body[9 : 9+wadWidth])
		minOut := new(big.Int).SetBytes(body[9+wadWidth : want])
		return &Instruction{
			Opcode:    op,
			UseMax:    useMax,
			PoolID:    poolID,
			SellAsset: sellAsset,
			AmountIn:  amountIn,
			MinOut:    minOut,
		}, nil

	case OpClaim:
		const want = 8 + wadWidth + wadWidth
		if len(body) < want {
			return nil, rmmerrors.ErrUnknownOpcode
		}
		poolID := pool.PoolID(binary.BigEndian.Uint64(body[0:8]))
		riskyRequested := new(big.Int).SetBytes(body[8 : 8+wadWidth])
		stableRequested := new(big.Int).SetBytes(body[8+wadWidth : want])
		return &Instruction{
			Opcode:          op,
			UseMax:          useMax,
			PoolID:          poolID,
			RiskyRequested:  riskyRequested,
			StableRequested: stableRequested,
		}, nil

	default:
		return nil, rmmerrors.ErrUnknownOpcode
	}
}

// BatchDigest returns the blake3 digest of a decoded instruction sequence's
// canonical byte form, giving operators a stable id to correlate a
// multiprocess batch's log line with the events it produced without
// introducing any persistence format -- the digest is only ever logged.
func BatchDigest(instrs []Instruction) [32]byte {
	var buf []byte
	for _, inst := range instrs {
		flag := byte(0)
		if inst.UseMax {
			flag = 1
		}
		buf = append(buf, byte(inst.Opcode), flag)
		var poolBuf [8]byte
		binary.BigEndian.PutUint64(poolBuf[:], uint64(inst.PoolID))
		buf = append(buf, poolBuf[:]...)
		if inst.Liquidity != nil {
			buf = append(buf, inst.Liquidity.Bytes()...)
		}
		if inst.AmountIn != nil {
			buf = append(buf, inst.AmountIn.Bytes()...)
		}
	}
	return blake3.Sum256(buf)
}
