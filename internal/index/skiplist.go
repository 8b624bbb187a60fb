package index

import (
	"math/rand"

	"PerpTrade/internal/event"
	"PerpTrade/internal/position"
)

const (
	maxLevel = 16
	pBranch  = 4 // expected 1/4 promotion per level
)

type node struct {
	price   int64
	ids     []position.ID // insertion order preserved within the bucket
	forward []*node
}

// Index is a skip list over liquidation prices for one side of the book.
// Each price node buckets the ids that share that exact liquidation price.
// Traversal order is risk order: longs enumerate descending (the highest
// liquidation price is hit first as price falls), shorts ascending.
//
// The index holds identifiers only, never position records; the store
// remains the single owner of position data.
type Index struct {
	side   event.Side
	head   *node
	level  int
	prices int // number of price nodes
	count  int // number of ids across all buckets
	rng    *rand.Rand
}

func New(side event.Side) *Index {
	return &Index{
		side:  side,
		head:  &node{forward: make([]*node, maxLevel)},
		level: 1,
		// Fixed seed: the structure must be identical across replays of the
		// same operation sequence.
		rng: rand.New(rand.NewSource(1)),
	}
}

// Side returns which side of the book this index covers.
func (ix *Index) Side() event.Side {
	return ix.side
}

// before reports whether price a sorts strictly ahead of b in risk order.
func (ix *Index) before(a, b int64) bool {
	if ix.side == event.SideLong {
		return a > b
	}
	return a < b
}

func (ix *Index) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && ix.rng.Intn(pBranch) == 0 {
		lvl++
	}
	return lvl
}

// Insert appends id to the bucket at price, creating the bucket if absent.
// O(log n) expected in the number of distinct prices.
func (ix *Index) Insert(price int64, id position.ID) {
	update := make([]*node, maxLevel)
	x := ix.head
	for i := ix.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && ix.before(x.forward[i].price, price) {
			x = x.forward[i]
		}
		update[i] = x
	}

	next := x.forward[0]
	if next != nil && next.price == price {
		next.ids = append(next.ids, id)
		ix.count++
		return
	}

	lvl := ix.randomLevel()
	if lvl > ix.level {
		for i := ix.level; i < lvl; i++ {
			update[i] = ix.head
		}
		ix.level = lvl
	}

	n := &node{
		price:   price,
		ids:     []position.ID{id},
		forward: make([]*node, lvl),
	}
	for i := 0; i < lvl; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
	}
	ix.prices++
	ix.count++
}

// Remove deletes id from the bucket at price, unlinking the node when the
// bucket empties. Returns false if the id is not present at that price.
func (ix *Index) Remove(price int64, id position.ID) bool {
	update := make([]*node, maxLevel)
	x := ix.head
	for i := ix.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && ix.before(x.forward[i].price, price) {
			x = x.forward[i]
		}
		update[i] = x
	}

	n := x.forward[0]
	if n == nil || n.price != price {
		return false
	}

	found := false
	for i, other := range n.ids {
		if other == id {
			n.ids = append(n.ids[:i], n.ids[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return false
	}
	ix.count--

	if len(n.ids) > 0 {
		return true
	}

	for i := 0; i < len(n.forward); i++ {
		if update[i].forward[i] == n {
			update[i].forward[i] = n.forward[i]
		}
	}
	for ix.level > 1 && ix.head.forward[ix.level-1] == nil {
		ix.level--
	}
	ix.prices--
	return true
}

// Bucket returns the ids at exactly price, in insertion order.
// Returns an empty slice when no bucket exists.
func (ix *Index) Bucket(price int64) []position.ID {
	x := ix.head
	for i := ix.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && ix.before(x.forward[i].price, price) {
			x = x.forward[i]
		}
	}
	n := x.forward[0]
	if n == nil || n.price != price {
		return []position.ID{}
	}
	out := make([]position.ID, len(n.ids))
	copy(out, n.ids)
	return out
}

// TopK returns up to k ids ordered by proximity to liquidation given the
// current price: for longs, buckets in descending price order starting from
// the highest price <= currentPrice; for shorts, ascending from the lowest
// price >= currentPrice. Ties preserve bucket insertion order.
func (ix *Index) TopK(k int, currentPrice int64) []position.ID {
	out := []position.ID{}
	if k <= 0 {
		return out
	}

	x := ix.head
	for i := ix.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && ix.before(x.forward[i].price, currentPrice) {
			x = x.forward[i]
		}
	}

	for n := x.forward[0]; n != nil; n = n.forward[0] {
		for _, id := range n.ids {
			out = append(out, id)
			if len(out) == k {
				return out
			}
		}
	}
	return out
}

// Len returns the total number of ids in the index.
func (ix *Index) Len() int {
	return ix.count
}

// PriceLevels returns the number of distinct price buckets.
func (ix *Index) PriceLevels() int {
	return ix.prices
}
