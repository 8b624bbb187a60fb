package position

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Store owns the canonical id -> position mapping, the per-owner id sets,
// and the per-owner nonce that makes otherwise-identical positions mint
// distinct identifiers. It performs no validation beyond identity: margin
// rules and access control belong to the engine.
type Store struct {
	positions map[ID]*Position
	byOwner   map[uuid.UUID][]ID
	nonces    map[uuid.UUID]int64
}

func NewStore() *Store {
	return &Store{
		positions: make(map[ID]*Position),
		byOwner:   make(map[uuid.UUID][]ID),
		nonces:    make(map[uuid.UUID]int64),
	}
}

// NextID mints a fresh identifier for owner in market. Each call bumps the
// owner's nonce, so two positions with identical parameters still get
// distinct ids.
func (s *Store) NextID(owner uuid.UUID, market string) ID {
	s.nonces[owner]++
	nonce := s.nonces[owner]

	h := sha256.New()
	h.Write(owner[:])
	h.Write([]byte{byte(len(market))})
	h.Write([]byte(market))

	var nonceBuf [8]byte
	for i := 0; i < 8; i++ {
		nonceBuf[i] = byte(nonce >> (8 * i))
	}
	h.Write(nonceBuf[:])

	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// Insert adds an open position to the store and its owner's set.
func (s *Store) Insert(p *Position) error {
	if _, exists := s.positions[p.ID]; exists {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	s.positions[p.ID] = p
	s.byOwner[p.Owner] = append(s.byOwner[p.Owner], p.ID)
	return nil
}

// Get returns the position record, or nil if unknown.
func (s *Store) Get(id ID) *Position {
	return s.positions[id]
}

// Remove deletes the position from the store and the owner's set.
// Removal is terminal; the id is never reused.
func (s *Store) Remove(id ID) *Position {
	p, ok := s.positions[id]
	if !ok {
		return nil
	}
	delete(s.positions, id)

	ids := s.byOwner[p.Owner]
	for i, other := range ids {
		if other == id {
			s.byOwner[p.Owner] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byOwner[p.Owner]) == 0 {
		delete(s.byOwner, p.Owner)
	}

	return p
}

// ByOwner returns the owner's open position ids in creation order.
func (s *Store) ByOwner(owner uuid.UUID) []ID {
	ids := s.byOwner[owner]
	out := make([]ID, len(ids))
	copy(out, ids)
	return out
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	return len(s.positions)
}

// All returns every open position sorted by id, for deterministic iteration
// (state hashing, snapshots).
func (s *Store) All() []*Position {
	out := make([]*Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID, out[j].ID
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out
}
