package memorystore

import (
	"context"
	"sort"
	"sync"

	"tickbars/pkg/bars"
)

// MemoryTickStore keeps ticks per symbol and answers range queries.
type MemoryTickStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolTickStore
}

type symbolTickStore struct {
	mu     sync.Mutex
	ticks  []bars.Tick
	sorted bool
}

var _ bars.TickSource = (*MemoryTickStore)(nil)

func NewTickStore() *MemoryTickStore {
	return &MemoryTickStore{
		data: make(map[string]*symbolTickStore),
	}
}

func (s *MemoryTickStore) symbolStore(symbol string) *symbolTickStore {
	// Fast path: lock per-symbol store only
	s.globalMu.RLock()
	store, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if ok {
		return store
	}

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if store, ok = s.data[symbol]; !ok {
		store = &symbolTickStore{sorted: true}
		s.data[symbol] = store
	}
	return store
}

// Add appends ticks, in any order, under their own symbols.
func (s *MemoryTickStore) Add(ticks ...bars.Tick) {
	for _, t := range ticks {
		store := s.symbolStore(t.Symbol)

		store.mu.Lock()
		if n := len(store.ticks); n > 0 && t.Timestamp.Before(store.ticks[n-1].Timestamp) {
			store.sorted = false
		}
		store.ticks = append(store.ticks, t)
		store.mu.Unlock()
	}
}

// FetchTicks returns a copy of the symbol's ticks in [q.From(), q.End),
// oldest first. Ticks with equal timestamps keep their insertion order.
func (s *MemoryTickStore) FetchTicks(ctx context.Context, q bars.TickQuery) ([]bars.Tick, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.globalMu.RLock()
	store, ok := s.data[q.Symbol]
	s.globalMu.RUnlock()
	if !ok {
		return []bars.Tick{}, nil
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if !store.sorted {
		sort.SliceStable(store.ticks, func(i, j int) bool {
			return store.ticks[i].Timestamp.Before(store.ticks[j].Timestamp)
		})
		store.sorted = true
	}

	from, end := q.From(), q.End
	lo := sort.Search(len(store.ticks), func(i int) bool {
		return !store.ticks[i].Timestamp.Before(from)
	})
	hi := sort.Search(len(store.ticks), func(i int) bool {
		return !store.ticks[i].Timestamp.Before(end)
	})
	if hi < lo {
		hi = lo
	}

	cp := make([]bars.Tick, hi-lo)
	copy(cp, store.ticks[lo:hi])
	return cp, nil
}

// Symbols returns the stored symbols in lexical order.
func (s *MemoryTickStore) Symbols() []string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]string, 0, len(s.data))
	for sym := range s.data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// ListSymbols is Symbols behind the lister signature the job runner takes.
func (s *MemoryTickStore) ListSymbols(context.Context) ([]string, error) {
	return s.Symbols(), nil
}

// CountAll returns the total number of ticks stored across all symbols.
func (s *MemoryTickStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, store := range s.data {
		store.mu.Lock()
		total += len(store.ticks)
		store.mu.Unlock()
	}
	return total
}
