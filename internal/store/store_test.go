package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/posync-hub/internal/event"
)

func evt(id string, lamport uint64, deviceID string) event.Event {
	return event.Event{
		EventID:       id,
		TenantID:      "demo",
		StoreID:       "store_001",
		AggregateType: event.AggregateOrder,
		AggregateID:   "O1",
		Version:       1,
		Type:          "order.created",
		At:            time.Now(),
		Actor:         event.Actor{DeviceID: deviceID},
		Clock:         event.Clock{Lamport: lamport, DeviceID: deviceID},
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	s := New()
	ok, err := s.Append(evt("E1", 1, "D1"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Append(evt("E1", 1, "D1"))
	require.NoError(t, err)
	require.False(t, ok, "re-appending a known eventId must be a no-op")
	require.Equal(t, 1, s.Len())
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	s := New()
	bad := evt("E1", 1, "D1")
	bad.TenantID = ""
	ok, err := s.Append(bad)
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestGetBulkOrdersByLamportThenDevice(t *testing.T) {
	s := New()
	_, _ = s.Append(evt("E2", 5, "B"))
	_, _ = s.Append(evt("E1", 5, "A"))
	_, _ = s.Append(evt("E3", 6, "A"))

	got := s.GetBulk(4, 100)
	require.Len(t, got, 3)
	require.Equal(t, "E1", got[0].EventID)
	require.Equal(t, "E2", got[1].EventID)
	require.Equal(t, "E3", got[2].EventID)
}

func TestGetBulkRespectsExclusiveCursorAndLimit(t *testing.T) {
	s := New()
	for i := uint64(1); i <= 5; i++ {
		_, _ = s.Append(evt(fmt.Sprintf("E%d", i), i, "D1"))
	}
	got := s.GetBulk(2, 2)
	require.Len(t, got, 2)
	require.Equal(t, "E3", got[0].EventID)
	require.Equal(t, "E4", got[1].EventID)
}

func TestGetAggregateSortsByVersion(t *testing.T) {
	s := New()
	e3 := evt("E3", 3, "D1")
	e3.Version = 3
	e1 := evt("E1", 1, "D1")
	e1.Version = 1
	e2 := evt("E2", 2, "D1")
	e2.Version = 2
	_, _ = s.Append(e3)
	_, _ = s.Append(e1)
	_, _ = s.Append(e2)

	got := s.GetAggregate("demo", "store_001", "O1")
	require.Len(t, got, 3)
	require.Equal(t, []int{1, 2, 3}, []int{got[0].Version, got[1].Version, got[2].Version})
}

func TestLastLamportTracksMax(t *testing.T) {
	s := New()
	_, _ = s.Append(evt("E1", 1, "D1"))
	_, _ = s.Append(evt("E2", 9, "D1"))
	_, _ = s.Append(evt("E3", 4, "D1"))
	require.EqualValues(t, 9, s.LastLamport())
}

func TestEvictionKeepsCapAndPrunesIndexes(t *testing.T) {
	s := NewWithCap(3)
	for i := uint64(1); i <= 5; i++ {
		_, _ = s.Append(evt(fmt.Sprintf("E%d", i), i, "D1"))
	}
	require.Equal(t, 3, s.Len())

	got := s.GetBulk(0, 100)
	require.Len(t, got, 3)
	require.Equal(t, []string{"E3", "E4", "E5"}, []string{got[0].EventID, got[1].EventID, got[2].EventID})

	// Evicted events must not linger in the aggregate index either.
	agg := s.GetAggregate("demo", "store_001", "O1")
	require.Len(t, agg, 3)
}

func TestCrossRoomIsolationViaFilter(t *testing.T) {
	s := New()
	e1 := evt("E1", 1, "D1")
	e1.TenantID, e1.StoreID = "demo", "store_001"
	e2 := evt("E2", 2, "D1")
	e2.TenantID, e2.StoreID = "demo", "store_002"
	_, _ = s.Append(e1)
	_, _ = s.Append(e2)

	got := s.GetEvents(event.Filter{TenantID: "demo", StoreID: "store_001"})
	require.Len(t, got, 1)
	require.Equal(t, "E1", got[0].EventID)
}

func TestGetBulkForRoomExcludesOtherRooms(t *testing.T) {
	s := New()
	a := evt("E1", 1, "D1")
	a.TenantID, a.StoreID = "demo", "store_001"
	b := evt("E2", 2, "D1")
	b.TenantID, b.StoreID = "demo", "store_002"
	c := evt("E3", 3, "D1")
	c.TenantID, c.StoreID = "demo", "store_001"
	_, _ = s.Append(a)
	_, _ = s.Append(b)
	_, _ = s.Append(c)

	got := s.GetBulkForRoom("demo", "store_001", 0, 100)
	require.Len(t, got, 2)
	require.Equal(t, "E1", got[0].EventID)
	require.Equal(t, "E3", got[1].EventID)
}

func TestGetBulkForRoomRespectsCursorAndLimit(t *testing.T) {
	s := New()
	for i := uint64(1); i <= 5; i++ {
		_, _ = s.Append(evt(fmt.Sprintf("E%d", i), i, "D1"))
	}
	got := s.GetBulkForRoom("demo", "store_001", 2, 2)
	require.Len(t, got, 2)
	require.Equal(t, "E3", got[0].EventID)
	require.Equal(t, "E4", got[1].EventID)
}

func TestClear(t *testing.T) {
	s := New()
	_, _ = s.Append(evt("E1", 1, "D1"))
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.EqualValues(t, 0, s.LastLamport())
}
