package position

import (
	"encoding/hex"
	"fmt"

	"PerpTrade/internal/event"

	"github.com/google/uuid"
)

// ID is the collision-resistant position identifier: SHA-256 over owner,
// market, and a per-owner nonce. Once assigned it is immutable and never
// reused, even after the position is closed or liquidated.
type ID [32]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID decodes the hex form produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse position id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("parse position id: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Status tracks the position lifecycle: Open is the only live state,
// Closed and Liquidated are terminal.
type Status int32

const (
	StatusOpen Status = iota
	StatusClosed
	StatusLiquidated
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusClosed:
		return "Closed"
	case StatusLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

// Position is a leveraged exposure record for one owner in one market.
type Position struct {
	ID               ID
	Owner            uuid.UUID
	Market           string
	Side             event.Side
	Collateral       int64 // Fixed-point: quote scale, > 0 while open
	Leverage         int64 // Fixed-point: leverage scale (hundredths)
	PositionSize     int64 // Fixed-point: quantity scale, fixed at open
	EntryPrice       int64 // Fixed-point: price scale, fixed at open
	LiquidationPrice int64 // Fixed-point: price scale, recomputed on resize
	Status           Status
	Version          int64
}

// SideSign returns +1 for long, -1 for short
func (p *Position) SideSign() int64 {
	return p.Side.Sign()
}

// CanonicalBytes returns deterministic serialization for state hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)

	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.Owner[:]...)

	// market (length-prefixed)
	buf = append(buf, byte(len(p.Market)))
	buf = append(buf, []byte(p.Market)...)

	buf = append(buf, byte(p.Side))
	buf = appendInt64LE(buf, p.Collateral)
	buf = appendInt64LE(buf, p.Leverage)
	buf = appendInt64LE(buf, p.PositionSize)
	buf = appendInt64LE(buf, p.EntryPrice)
	buf = appendInt64LE(buf, p.LiquidationPrice)
	buf = append(buf, byte(p.Status))

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
