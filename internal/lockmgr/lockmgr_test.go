package lockmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestManager(fc *fakeClock) *Manager {
	return New(WithTTL(2*time.Second), WithSweepInterval(time.Hour), withClock(fc.now))
}

func TestAcquireGrantsWhenFree(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	res := m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	require.True(t, res.Success)
	require.Equal(t, "D1", res.Lock.DeviceID)
}

func TestAcquireByOtherDeviceIsRejectedWithHolder(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	res := m.Acquire("demo", "store_001", "O1", "D2", "U2", "Bob")
	require.False(t, res.Success)
	require.Equal(t, "held_by:D1", res.Reason)
}

func TestOwnerReacquireIsRenew(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	first := m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	fc.advance(time.Second)
	second := m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	require.True(t, second.Success)
	require.True(t, second.Lock.ExpiresAt.After(first.Lock.ExpiresAt))
}

func TestRenewOnlyByOwner(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	require.False(t, m.Renew("demo", "store_001", "O1", "D2").Success)
	require.True(t, m.Renew("demo", "store_001", "O1", "D1").Success)
}

func TestReleaseOnlyByOwner(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	require.False(t, m.Release("demo", "store_001", "O1", "D2").Success)
	require.True(t, m.Release("demo", "store_001", "O1", "D1").Success)

	_, ok := m.GetLockStatus("demo", "store_001", "O1")
	require.False(t, ok)
}

func TestReleaseDeviceLocksRemovesAllOwnedLocks(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	m.Acquire("demo", "store_001", "O2", "D1", "U1", "Alice")
	m.Acquire("demo", "store_001", "O3", "D2", "U2", "Bob")

	released := m.ReleaseDeviceLocks("D1")
	require.Len(t, released, 2)

	active := m.GetActiveLocks("demo", "store_001")
	require.Len(t, active, 1)
	require.Equal(t, "D2", active[0].DeviceID)
}

func TestGetLockStatusLazilyExpiresStaleRecord(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	fc.advance(3 * time.Second) // past the 2s TTL

	_, ok := m.GetLockStatus("demo", "store_001", "O1")
	require.False(t, ok)
	m.mu.Lock()
	_, present := m.locks[key("demo", "store_001", "O1")]
	m.mu.Unlock()
	require.False(t, present, "GetLockStatus must garbage-collect the stale record")

	// Now that it expired, a different device can acquire it.
	res := m.Acquire("demo", "store_001", "O1", "D2", "U2", "Bob")
	require.True(t, res.Success)
}

func TestLocksAreScopedPerTenantStore(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := newTestManager(fc)
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	res := m.Acquire("demo", "store_002", "O1", "D2", "U2", "Bob")
	require.True(t, res.Success, "identical aggregateId across stores is an independent lock")
}

func TestSweepReapsExpiredLocks(t *testing.T) {
	fc := &fakeClock{t: time.Now()}
	m := New(WithTTL(10*time.Millisecond), WithSweepInterval(5*time.Millisecond), withClock(fc.now))
	defer m.Shutdown()

	m.Acquire("demo", "store_001", "O1", "D1", "U1", "Alice")
	fc.advance(50 * time.Millisecond)

	// Inspect the raw map: GetActiveLocks already hides expired records,
	// so only the map shows whether the sweep actually removed them.
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.locks) == 0
	}, time.Second, 10*time.Millisecond)
}
