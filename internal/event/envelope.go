package event

import (
	"time"
)

// Side of a position.
// Wire encoding matches the external convention: 0 = long, 1 = short.
type Side int32

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "Long"
	case SideShort:
		return "Short"
	default:
		return "Unknown"
	}
}

// Sign returns +1 for long, -1 for short
func (s Side) Sign() int64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// ParseSide converts a wire string into a Side.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "Long", "long", "LONG":
		return SideLong, true
	case "Short", "short", "SHORT":
		return SideShort, true
	default:
		return SideLong, false
	}
}

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypePositionOpened
	TypePositionResized
	TypePositionClosed
	TypePositionLiquidated
	TypeMarkPriceUpdate
)

func (t Type) String() string {
	switch t {
	case TypePositionOpened:
		return "PositionOpened"
	case TypePositionResized:
		return "PositionResized"
	case TypePositionClosed:
		return "PositionClosed"
	case TypePositionLiquidated:
		return "PositionLiquidated"
	case TypeMarkPriceUpdate:
		return "MarkPriceUpdate"
	default:
		return "Unknown"
	}
}

// Envelope wraps every event emitted by a market engine.
// Sequence is per-market and monotonic; StateHash chains over the engine's
// canonical state so downstream consumers can verify replay integrity.
type Envelope struct {
	// Per-market monotonic sequence assigned by the engine
	Sequence int64 `json:"sequence"`

	// Price-feed identity of the market
	Market string `json:"market"`

	// Event type discriminator
	Type Type `json:"event_type"`

	// Engine-local timestamp of the mutation
	Timestamp time.Time `json:"timestamp"`

	// SHA-256 of engine state AFTER applying this event
	StateHash [32]byte `json:"state_hash"`

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte `json:"prev_hash"`

	// Event-specific payload, JSON-encoded for the log and outbound publishing
	Payload interface{} `json:"payload"`
}
