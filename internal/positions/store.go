// Package positions holds the authoritative in-memory position set for the
// active session.
//
// The store is single-writer: only the owning session context mutates it.
// Feed events update per-symbol valuation; only authoritative snapshots from
// the trading service change which symbols exist or their quantity and cost
// basis.
package positions

import (
	"sort"
	"sync"

	"tradedesk/internal/model"
)

type entry struct {
	pos model.Position
	// touched orders the snapshot: higher = modified more recently. Bulk
	// replaces stamp all entries with the same generation so their relative
	// order falls back to the symbol tiebreak and stays deterministic.
	touched uint64
}

// Store tracks all positions of one portfolio.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// ReplaceSnapshot overwrites the full position set with an authoritative
// snapshot from the trading service. Symbols absent from the snapshot are
// dropped. Derived fields are recomputed so the stored state is consistent
// even if the service response omitted them.
func (s *Store) ReplaceSnapshot(positions []model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	gen := s.seq
	s.entries = make(map[string]*entry, len(positions))
	for _, p := range positions {
		p.Recompute()
		s.entries[p.Symbol] = &entry{pos: p, touched: gen}
	}
}

// ApplyPriceEvent updates the current price of the position holding the
// event's symbol and recomputes its derived fields. Events for unheld
// symbols are ignored, not errors; the return value reports whether the
// event touched a position. Quantity and average price are never changed
// here — only a confirmed trade moves them.
func (s *Store) ApplyPriceEvent(ev model.PriceEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ev.Symbol]
	if !ok {
		return false
	}
	e.pos.CurrentPrice = ev.Price
	e.pos.Recompute()
	s.seq++
	e.touched = s.seq
	return true
}

// Get returns a copy of the position for the given symbol.
func (s *Store) Get(symbol string) (model.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	if !ok {
		return model.Position{}, false
	}
	return e.pos, true
}

// Snapshot returns a copy of all positions, most recently modified first,
// ties broken by symbol. The order is deterministic for a fixed sequence
// of mutations.
func (s *Store) Snapshot() []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		pos     model.Position
		touched uint64
	}
	rows := make([]row, 0, len(s.entries))
	for _, e := range s.entries {
		rows = append(rows, row{pos: e.pos, touched: e.touched})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].touched != rows[j].touched {
			return rows[i].touched > rows[j].touched
		}
		return rows[i].pos.Symbol < rows[j].pos.Symbol
	})

	result := make([]model.Position, len(rows))
	for i, r := range rows {
		result[i] = r.pos
	}
	return result
}

// Symbols returns the held symbols in snapshot order.
func (s *Store) Symbols() []string {
	snap := s.Snapshot()
	syms := make([]string, len(snap))
	for i, p := range snap {
		syms[i] = p.Symbol
	}
	return syms
}

// Len returns the number of held positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
