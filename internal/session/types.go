package session

import (
	"sync"
	"time"

	"github.com/luxfi/posync-hub/internal/transport"
)

// connState is a connection's position in its lifecycle.
type connState int

const (
	stateConnected connState = iota
	stateRegistered
	stateDisconnected
)

// client is the session-scoped connected-client record from §3. It is
// never persisted; it exists only for the lifetime of one connection.
type client struct {
	connectionID string
	conn         *transport.Conn

	mu       sync.Mutex
	state    connState
	deviceID string
	tenantID string
	storeID  string
	userID   string
	userName string
	cursor   uint64
	lastSeen time.Time
}

func (c *client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenantID + ":" + c.storeID
}

func (c *client) registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRegistered
}

func (c *client) identity() (deviceID, tenantID, storeID, userID, userName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID, c.tenantID, c.storeID, c.userID, c.userName
}

func (c *client) setCursor(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.cursor {
		c.cursor = v
	}
}

func (c *client) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
}

// snapshot is used by the HTTP status endpoint; it never exposes the
// live client record itself so callers cannot race with the session
// loop.
type snapshot struct {
	ConnectionID string
	DeviceID     string
	TenantID     string
	StoreID      string
	UserID       string
	Cursor       uint64
	LastSeen     time.Time
}

func (c *client) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot{
		ConnectionID: c.connectionID,
		DeviceID:     c.deviceID,
		TenantID:     c.tenantID,
		StoreID:      c.storeID,
		UserID:       c.userID,
		Cursor:       c.cursor,
		LastSeen:     c.lastSeen,
	}
}
