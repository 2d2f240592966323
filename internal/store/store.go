// Package store implements the hub's authoritative, in-memory event
// log: an append-only, idempotent, Lamport-ordered log with aggregate
// and time indexes, capped in size with oldest-first eviction.
package store

import (
	"sort"
	"sync"

	"github.com/luxfi/posync-hub/internal/event"
)

// DefaultMaxEvents is the retention cap applied when a Store is
// constructed with New. Past this many retained events, the oldest by
// (lamport, deviceId) are evicted first.
const DefaultMaxEvents = 10_000

// Stats summarizes the store's current contents.
type Stats struct {
	TotalEvents    int
	LastLamport    uint64
	PerTenantCount map[string]int
	PerTypeCount   map[string]int
}

// Store is the hub's authoritative per-process event log. All exported
// methods are goroutine-safe.
type Store struct {
	mu  sync.RWMutex
	max int

	byID map[string]event.Event

	// order holds every retained event's ID, kept sorted by the
	// canonical (lamport, deviceId) comparator. It is the backbone for
	// getBulk/getEvents and for picking the next eviction victim.
	order []string

	// byAggregate indexes event IDs by "tenant:store:aggregateId",
	// kept sorted by version ascending.
	byAggregate map[string][]string

	// byLamport buckets event IDs sharing a Lamport value, since
	// concurrent devices can mint the same stamp.
	byLamport map[uint64][]string

	lastLamport uint64
}

// New returns an empty store capped at DefaultMaxEvents.
func New() *Store {
	return NewWithCap(DefaultMaxEvents)
}

// NewWithCap returns an empty store capped at max retained events.
func NewWithCap(max int) *Store {
	return &Store{
		max:         max,
		byID:        make(map[string]event.Event),
		byAggregate: make(map[string][]string),
		byLamport:   make(map[uint64][]string),
	}
}

func (s *Store) less(idA, idB string) bool {
	return event.Less(s.byID[idA], s.byID[idB])
}

// Append validates and inserts e. Re-appending a known eventId is a
// no-op that returns false; a fresh event is stored and true is
// returned. Validation failures are returned as an error and never
// mutate state.
func (s *Store) Append(e event.Event) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.EventID]; exists {
		return false, nil
	}

	s.byID[e.EventID] = e

	pos := sort.Search(len(s.order), func(i int) bool {
		return event.Less(e, s.byID[s.order[i]])
	})
	s.order = append(s.order, "")
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = e.EventID

	aggKey := event.AggregateKey(e.TenantID, e.StoreID, e.AggregateID)
	agg := s.byAggregate[aggKey]
	aPos := sort.Search(len(agg), func(i int) bool {
		return s.byID[agg[i]].Version >= e.Version
	})
	agg = append(agg, "")
	copy(agg[aPos+1:], agg[aPos:])
	agg[aPos] = e.EventID
	s.byAggregate[aggKey] = agg

	s.byLamport[e.Clock.Lamport] = append(s.byLamport[e.Clock.Lamport], e.EventID)

	if e.Clock.Lamport > s.lastLamport {
		s.lastLamport = e.Clock.Lamport
	}

	s.evictLocked()
	return true, nil
}

// evictLocked removes the oldest events (by the canonical comparator)
// until the store is back within its cap. Callers must hold s.mu.
func (s *Store) evictLocked() {
	for len(s.order) > s.max {
		victim := s.order[0]
		s.order = s.order[1:]
		s.removeFromIndexesLocked(victim)
	}
}

func (s *Store) removeFromIndexesLocked(id string) {
	e, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)

	aggKey := event.AggregateKey(e.TenantID, e.StoreID, e.AggregateID)
	s.byAggregate[aggKey] = removeString(s.byAggregate[aggKey], id)
	if len(s.byAggregate[aggKey]) == 0 {
		delete(s.byAggregate, aggKey)
	}

	s.byLamport[e.Clock.Lamport] = removeString(s.byLamport[e.Clock.Lamport], id)
	if len(s.byLamport[e.Clock.Lamport]) == 0 {
		delete(s.byLamport, e.Clock.Lamport)
	}
}

func removeString(xs []string, target string) []string {
	for i, x := range xs {
		if x == target {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}

// Get returns the event stored under id, if any.
func (s *Store) Get(id string) (event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// GetBulk returns events with lamport > fromLamport in canonical total
// order, capped at limit. A limit <= 0 defaults to 100. This spans
// every room the store holds; callers that must honor room isolation
// (catch-up replay) want GetBulkForRoom instead.
func (s *Store) GetBulk(fromLamport uint64, limit int) []event.Event {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.order), func(i int) bool {
		return s.byID[s.order[i]].Clock.Lamport > fromLamport
	})

	out := make([]event.Event, 0, limit)
	for i := start; i < len(s.order) && len(out) < limit; i++ {
		out = append(out, s.byID[s.order[i]])
	}
	return out
}

// GetBulkForRoom is GetBulk narrowed to a single (tenantId, storeId)
// room: events with lamport > fromLamport, belonging to that room
// only, in canonical total order, capped at limit. This is the
// primitive catch-up replay must use, since the store is a single
// process-wide log spanning every room it serves.
func (s *Store) GetBulkForRoom(tenantID, storeID string, fromLamport uint64, limit int) []event.Event {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.order), func(i int) bool {
		return s.byID[s.order[i]].Clock.Lamport > fromLamport
	})

	out := make([]event.Event, 0, limit)
	for i := start; i < len(s.order) && len(out) < limit; i++ {
		e := s.byID[s.order[i]]
		if e.TenantID != tenantID || e.StoreID != storeID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// GetAggregate returns an aggregate's events sorted by version
// ascending.
func (s *Store) GetAggregate(tenantID, storeID, aggregateID string) []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAggregate[event.AggregateKey(tenantID, storeID, aggregateID)]
	out := make([]event.Event, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}

// GetEvents applies filter across the log and returns matches in
// canonical total order. When the filter names a single aggregate, the
// aggregate index is consulted directly instead of scanning the log.
func (s *Store) GetEvents(filter event.Filter) []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.FastPath() {
		ids := s.byAggregate[event.AggregateKey(filter.TenantID, filter.StoreID, filter.AggregateID)]
		out := make([]event.Event, 0, len(ids))
		for _, id := range ids {
			if e := s.byID[id]; filter.Match(e) {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return event.Less(out[i], out[j]) })
		return out
	}

	out := make([]event.Event, 0)
	for _, id := range s.order {
		e := s.byID[id]
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// LastLamport returns the highest Lamport stamp of any stored event.
func (s *Store) LastLamport() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLamport
}

// Stats summarizes the store's current contents.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalEvents:    len(s.byID),
		LastLamport:    s.lastLamport,
		PerTenantCount: make(map[string]int),
		PerTypeCount:   make(map[string]int),
	}
	for _, e := range s.byID {
		st.PerTenantCount[e.TenantID]++
		st.PerTypeCount[e.Type]++
	}
	return st
}

// Clear empties the store. Intended for tests.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]event.Event)
	s.order = nil
	s.byAggregate = make(map[string][]string)
	s.byLamport = make(map[uint64][]string)
	s.lastLamport = 0
}

// Len returns the number of retained events. Intended for tests and
// stats endpoints that want a lock-free-looking counter.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
