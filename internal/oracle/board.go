package oracle

import (
	"fmt"
	"sync"
)

// MarkState tracks the latest accepted mark price for one feed.
type MarkState struct {
	Price       int64 // Fixed-point: price scale, always > 0 once set
	Sequence    int64
	TimestampUs int64
}

// Board holds the latest mark price per feed. Feeds are advisory inputs:
// the board validates price positivity and sequence ordering but never
// touches positions. Engines read from it at operation time.
type Board struct {
	mu    sync.RWMutex
	feeds map[string]*MarkState
}

func NewBoard() *Board {
	return &Board{
		feeds: make(map[string]*MarkState),
	}
}

// Set records a price update. Stale or duplicate sequences are silently
// ignored so redelivered feed messages stay idempotent.
func (b *Board) Set(feed string, price, sequence, timestampUs int64) error {
	if price <= 0 {
		return fmt.Errorf("mark price for %s must be > 0, got %d", feed, price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.feeds[feed]
	if current != nil && sequence <= current.Sequence {
		return nil
	}
	// Sequence gaps are tolerable for prices: each update fully
	// supersedes the last, unlike fills.

	b.feeds[feed] = &MarkState{
		Price:       price,
		Sequence:    sequence,
		TimestampUs: timestampUs,
	}
	return nil
}

// Price returns the current mark price for a feed.
// The second return is false until the feed has published at least once.
func (b *Board) Price(feed string) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state := b.feeds[feed]
	if state == nil {
		return 0, false
	}
	return state.Price, true
}

// State returns a copy of the full mark state for a feed.
func (b *Board) State(feed string) (MarkState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state := b.feeds[feed]
	if state == nil {
		return MarkState{}, false
	}
	return *state, true
}

// Feeds returns the names of all feeds that have published.
func (b *Board) Feeds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.feeds))
	for feed := range b.feeds {
		out = append(out, feed)
	}
	return out
}
