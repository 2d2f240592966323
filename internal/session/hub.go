// Package session implements the hub session layer: connection
// lifecycle, tenant/store room isolation, cursor-based catch-up, and
// at-least-once fan-out of appended events and lock notifications.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/luxfi/posync-hub/internal/auth"
	"github.com/luxfi/posync-hub/internal/clock"
	"github.com/luxfi/posync-hub/internal/lockmgr"
	"github.com/luxfi/posync-hub/internal/logging"
	"github.com/luxfi/posync-hub/internal/metrics"
	"github.com/luxfi/posync-hub/internal/store"
)

// Hub wires the Event Store, Lock Manager, and logical Clock to the
// connection registry and is the sole owner of room membership. Per
// §9, construction is unidirectional: build the store, then the lock
// manager, then the hub; there are no cyclic references.
type Hub struct {
	leaderID string

	store *store.Store
	locks *lockmgr.Manager
	clock *clock.Clock
	auth  auth.Authenticator
	mx    *metrics.Metrics
	log   logging.Logger

	mu      sync.RWMutex
	clients map[string]*client            // connectionId -> client
	rooms   map[string]map[string]*client // room -> connectionId -> client
}

// New constructs a Hub. The caller owns the lifetime of store and
// locks (e.g. for Shutdown); the hub only reads and mutates them.
func New(st *store.Store, locks *lockmgr.Manager, clk *clock.Clock, authenticator auth.Authenticator, mx *metrics.Metrics) *Hub {
	return &Hub{
		leaderID: uuid.NewString(),
		store:    st,
		locks:    locks,
		clock:    clk,
		auth:     authenticator,
		mx:       mx,
		log:      logging.For("session"),
		clients:  make(map[string]*client),
		rooms:    make(map[string]map[string]*client),
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.connectionID] = c
	if h.mx != nil {
		h.mx.ConnectedClients.Inc()
	}
}

func (h *Hub) joinRoom(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*client)
		h.rooms[room] = members
	}
	members[c.connectionID] = c
}

// removeClient drops the connection from the registry and its room.
// It does not touch locks; callers handle that separately so the
// order of "release locks, then broadcast, then remove" is explicit
// at the call site (see disconnect).
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.connectionID)
	_, _, _, room := c.identityRoom()
	if members, ok := h.rooms[room]; ok {
		delete(members, c.connectionID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if h.mx != nil {
		h.mx.ConnectedClients.Dec()
	}
}

// identityRoom is a small helper so removeClient can fetch the room a
// client belongs to without re-deriving it from stale fields after
// the client has already started tearing down.
func (c *client) identityRoom() (deviceID, tenantID, storeID, room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID, c.tenantID, c.storeID, c.tenantID + ":" + c.storeID
}

// roomMembers returns a snapshot slice of a room's current connections,
// so broadcast iteration tolerates concurrent join/leave (§5).
func (h *Hub) roomMembers(room string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[room]
	out := make([]*client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Snapshots returns a point-in-time view of every connected client,
// for the HTTP /status endpoint.
func (h *Hub) Snapshots() []snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]snapshot, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c.snapshot())
	}
	return out
}

// LeaderID is the identifier the hub reports in hello.ack.
func (h *Hub) LeaderID() string { return h.leaderID }
