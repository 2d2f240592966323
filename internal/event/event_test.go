package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validEvent() Event {
	return Event{
		EventID:       "E1",
		TenantID:      "demo",
		StoreID:       "store_001",
		AggregateType: AggregateOrder,
		AggregateID:   "O1",
		Version:       1,
		Type:          "order.created",
		At:            time.Now(),
		Actor:         Actor{DeviceID: "D1"},
		Clock:         Clock{Lamport: 1, DeviceID: "D1"},
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := map[string]func(e *Event){
		"eventId":       func(e *Event) { e.EventID = "" },
		"tenantId":      func(e *Event) { e.TenantID = "" },
		"storeId":       func(e *Event) { e.StoreID = "" },
		"aggregateType": func(e *Event) { e.AggregateType = "" },
		"aggregateId":   func(e *Event) { e.AggregateID = "" },
		"type":          func(e *Event) { e.Type = "" },
		"at":            func(e *Event) { e.At = time.Time{} },
		"version":       func(e *Event) { e.Version = 0 },
		"actorDevice":   func(e *Event) { e.Actor.DeviceID = "" },
		"clockDevice":   func(e *Event) { e.Clock.DeviceID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := validEvent()
			mutate(&e)
			require.Error(t, e.Validate())
		})
	}
}

func TestValidateAcceptsWellFormedEvent(t *testing.T) {
	require.NoError(t, validEvent().Validate())
}

func TestLessOrdersByLamportThenDevice(t *testing.T) {
	a := validEvent()
	a.Clock = Clock{Lamport: 5, DeviceID: "A"}
	b := validEvent()
	b.Clock = Clock{Lamport: 5, DeviceID: "B"}

	require.True(t, Less(a, b))
	require.False(t, Less(b, a))

	c := validEvent()
	c.Clock = Clock{Lamport: 4, DeviceID: "Z"}
	require.True(t, Less(c, a))
}

func TestRoomKey(t *testing.T) {
	e := validEvent()
	require.Equal(t, "demo:store_001", e.Room())
	require.Equal(t, "demo:store_001", RoomKey("demo", "store_001"))
}
