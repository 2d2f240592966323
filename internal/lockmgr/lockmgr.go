// Package lockmgr implements the hub's pessimistic per-aggregate lock:
// at most one device may hold the lock for a given (tenant, store,
// aggregateId) at a time, with a sliding TTL and a background sweep
// that reaps holders who vanished without releasing.
package lockmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/posync-hub/internal/event"
)

// DefaultTTL is the default holder time before a lock is eligible for
// sweep-driven expiry.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is how often the background sweep looks for
// expired locks. The spec recommends TTL/5.
const DefaultSweepInterval = 60 * time.Second

// Lock is a snapshot of an aggregate's lock record.
type Lock struct {
	TenantID    string
	StoreID     string
	AggregateID string
	DeviceID    string
	UserID      string
	UserName    string
	AcquiredAt  time.Time
	ExpiresAt   time.Time
}

func (l Lock) expired(now time.Time) bool { return now.After(l.ExpiresAt) }

// AcquireResult is the outcome of Acquire.
type AcquireResult struct {
	Success bool
	Lock    Lock
	Reason  string // e.g. "held_by:<deviceId>"
}

// Stats summarizes the manager's current contents.
type Stats struct {
	TotalLocks int
	PerTenant  map[string]int
	PerStore   map[string]int
}

// Manager owns every active lock and the sweep goroutine that reaps
// expired ones.
type Manager struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	locks map[string]Lock // key: tenant:store:aggregateId

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// withClock overrides time.Now, for deterministic TTL tests.
func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a Manager with its sweep goroutine already running. Call
// Shutdown to stop it.
func New(opts ...Option) *Manager {
	m := &Manager{
		ttl:           DefaultTTL,
		now:           time.Now,
		locks:         make(map[string]Lock),
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweepLoop()
	return m
}

func key(tenantID, storeID, aggregateID string) string {
	return event.AggregateKey(tenantID, storeID, aggregateID)
}

// Acquire grants the lock to (deviceId, userId) for aggregateId. A
// re-acquire by the current owner is treated as a renew. A different
// owner gets success:false with a reason naming the current holder.
func (m *Manager) Acquire(tenantID, storeID, aggregateID, deviceID, userID, userName string) AcquireResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(tenantID, storeID, aggregateID)
	now := m.now()

	if existing, ok := m.locks[k]; ok && !existing.expired(now) {
		if existing.DeviceID != deviceID {
			return AcquireResult{Success: false, Reason: "held_by:" + existing.DeviceID}
		}
		// Owner re-acquire: treat as renew.
		existing.UserID = userID
		existing.UserName = userName
		existing.ExpiresAt = now.Add(m.ttl)
		m.locks[k] = existing
		return AcquireResult{Success: true, Lock: existing}
	}

	l := Lock{
		TenantID:    tenantID,
		StoreID:     storeID,
		AggregateID: aggregateID,
		DeviceID:    deviceID,
		UserID:      userID,
		UserName:    userName,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.ttl),
	}
	m.locks[k] = l
	return AcquireResult{Success: true, Lock: l}
}

// RenewResult is the outcome of Renew.
type RenewResult struct {
	Success bool
	Lock    Lock
}

// Renew extends the owner's lock by TTL from now, a sliding window.
// Only the current owner may renew.
func (m *Manager) Renew(tenantID, storeID, aggregateID, deviceID string) RenewResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(tenantID, storeID, aggregateID)
	now := m.now()
	existing, ok := m.locks[k]
	if !ok || existing.expired(now) || existing.DeviceID != deviceID {
		return RenewResult{Success: false}
	}
	existing.ExpiresAt = now.Add(m.ttl)
	m.locks[k] = existing
	return RenewResult{Success: true, Lock: existing}
}

// ReleaseResult is the outcome of Release.
type ReleaseResult struct {
	Success bool
}

// Release removes the lock if the caller is its current owner;
// otherwise it is a no-op.
func (m *Manager) Release(tenantID, storeID, aggregateID, deviceID string) ReleaseResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(tenantID, storeID, aggregateID)
	existing, ok := m.locks[k]
	if !ok || existing.DeviceID != deviceID {
		return ReleaseResult{Success: false}
	}
	delete(m.locks, k)
	return ReleaseResult{Success: true}
}

// ReleaseDeviceLocks atomically removes every lock owned by deviceID,
// expired or not, and returns the removed records, so the caller (the
// session layer) can broadcast releases.
func (m *Manager) ReleaseDeviceLocks(deviceID string) []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []Lock
	for k, l := range m.locks {
		if l.DeviceID == deviceID {
			released = append(released, l)
			delete(m.locks, k)
		}
	}
	return released
}

// GetLockStatus returns the aggregate's lock if present and unexpired.
// A stale record it encounters along the way is garbage-collected.
func (m *Manager) GetLockStatus(tenantID, storeID, aggregateID string) (Lock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(tenantID, storeID, aggregateID)
	existing, ok := m.locks[k]
	if !ok {
		return Lock{}, false
	}
	if existing.expired(m.now()) {
		delete(m.locks, k)
		return Lock{}, false
	}
	return existing, true
}

// GetActiveLocks returns every unexpired lock for a (tenant, store)
// room.
func (m *Manager) GetActiveLocks(tenantID, storeID string) []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Lock
	for _, l := range m.locks {
		if l.TenantID == tenantID && l.StoreID == storeID && !l.expired(now) {
			out = append(out, l)
		}
	}
	return out
}

// Stats summarizes unexpired locks.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	st := Stats{PerTenant: make(map[string]int), PerStore: make(map[string]int)}
	for _, l := range m.locks {
		if l.expired(now) {
			continue
		}
		st.TotalLocks++
		st.PerTenant[l.TenantID]++
		st.PerStore[fmt.Sprintf("%s:%s", l.TenantID, l.StoreID)]++
	}
	return st
}

// sweepLoop periodically reaps expired locks. Per the spec's open
// question, sweep does not itself notify the session layer: clients
// discover expiry on their next status query, or via the explicit
// release/disconnect broadcasts.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepOnceNow()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Manager) sweepOnceNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, l := range m.locks {
		if l.expired(now) {
			delete(m.locks, k)
		}
	}
}

// Shutdown stops the sweep goroutine. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
}
