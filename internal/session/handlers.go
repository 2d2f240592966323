package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/posync-hub/internal/event"
	"github.com/luxfi/posync-hub/internal/transport"
)

// Serve drives one connection end to end: read loop, dispatch,
// disconnect cleanup. It returns when the underlying transport closes.
func (h *Hub) Serve(conn *transport.Conn) {
	c := &client{
		connectionID: uuid.NewString(),
		conn:         conn,
		state:        stateConnected,
		lastSeen:     time.Now(),
	}
	h.addClient(c)
	defer h.disconnect(c)

	for {
		env, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(c, env)
	}
}

func (h *Hub) dispatch(c *client, env transport.Envelope) {
	switch env.Type {
	case transport.MsgHello:
		h.handleHello(c, env)
	case transport.MsgEventsAppend:
		h.handleEventsAppend(c, env)
	case transport.MsgCursorRequest:
		h.handleCursorRequest(c, env)
	case transport.MsgOrderLockRequest:
		h.handleLockRequest(c, env)
	case transport.MsgOrderLockRenew:
		h.handleLockRenew(c, env)
	case transport.MsgOrderLockRelease:
		h.handleLockRelease(c, env)
	case transport.MsgOrderLockStatus:
		h.handleLockStatus(c, env)
	case transport.MsgPing:
		h.handlePing(c)
	default:
		h.sendError(c, transport.ErrMalformedMessage, "unknown message type: "+env.Type)
	}
}

func (h *Hub) sendError(c *client, code, message string) {
	e, _ := transport.NewEnvelope(transport.MsgError, transport.ErrorPayload{Code: code, Message: message})
	c.conn.Send(e)
}

// --- hello ---------------------------------------------------------

type helloPayload struct {
	DeviceID string `json:"deviceId"`
	TenantID string `json:"tenantId"`
	StoreID  string `json:"storeId"`
	Cursor   uint64 `json:"cursor"`
	Auth     *struct {
		SessionID string `json:"sessionId"`
	} `json:"auth,omitempty"`
}

type helloAckPayload struct {
	LeaderID       string `json:"leaderId"`
	ServerTime     int64  `json:"serverTime"`
	SnapshotNeeded bool   `json:"snapshotNeeded"`
}

func (h *Hub) handleHello(c *client, env transport.Envelope) {
	var p helloPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(c, transport.ErrInvalidHello, "malformed hello payload")
		return
	}
	if p.DeviceID == "" || p.TenantID == "" || p.StoreID == "" {
		h.sendError(c, transport.ErrInvalidHello, "deviceId, tenantId, and storeId are required")
		return
	}

	var userID, userName string
	if p.Auth != nil && p.Auth.SessionID != "" {
		if sess, ok := h.auth.Resolve(p.Auth.SessionID); ok {
			userID, userName = sess.UserID, sess.UserName
		}
		// Absence is non-fatal: the connection proceeds unauthenticated,
		// suitable for read-only peers like kitchen/bar displays.
	}

	c.mu.Lock()
	c.state = stateRegistered
	c.deviceID = p.DeviceID
	c.tenantID = p.TenantID
	c.storeID = p.StoreID
	c.userID = userID
	c.userName = userName
	c.cursor = p.Cursor
	c.lastSeen = time.Now()
	c.mu.Unlock()

	h.joinRoom(c, event.RoomKey(p.TenantID, p.StoreID))

	ack, _ := transport.NewEnvelope(transport.MsgHelloAck, helloAckPayload{
		LeaderID:       h.leaderID,
		ServerTime:     time.Now().UnixMilli(),
		SnapshotNeeded: false,
	})
	c.conn.Send(ack)

	h.replay(c, p.Cursor)
}

type eventsBulkPayload struct {
	Events      []event.Event `json:"events"`
	FromLamport uint64        `json:"fromLamport"`
	ToLamport   uint64        `json:"toLamport"`
}

// replay sends the client's missed backlog, scoped to its own room:
// the store is a single process-wide log spanning every room it
// serves, so an unscoped query here would leak other rooms' events
// across the catch-up path even though live relay is room-scoped.
func (h *Hub) replay(c *client, fromLamport uint64) {
	_, tenantID, storeID, _, _ := c.identity()
	pending := h.store.GetBulkForRoom(tenantID, storeID, fromLamport, maxReplayBatch)
	if len(pending) == 0 {
		return
	}
	// toLamport reports the last lamport actually included in this
	// batch, not the room's overall head: when the backlog exceeds
	// maxReplayBatch only a prefix is sent, and a client that advanced
	// its cursor to the room's true head would silently skip the
	// events past this batch. The client re-issues cursor.request from
	// here to fetch the rest.
	bulk, _ := transport.NewEnvelope(transport.MsgEventsBulk, eventsBulkPayload{
		Events:      pending,
		FromLamport: fromLamport,
		ToLamport:   pending[len(pending)-1].Clock.Lamport,
	})
	c.conn.Send(bulk)
}

// maxReplayBatch caps a single events.bulk frame. Larger backlogs are
// fetched in subsequent cursor.request round trips.
const maxReplayBatch = 500

// --- events.append ---------------------------------------------------

func (h *Hub) handleEventsAppend(c *client, env transport.Envelope) {
	if !c.registered() {
		h.sendError(c, transport.ErrNotAuthenticated, "hello required before events.append")
		return
	}

	var e event.Event
	if err := json.Unmarshal(env.Payload, &e); err != nil {
		h.sendError(c, transport.ErrMalformedMessage, "malformed event")
		return
	}

	_, tenantID, storeID, _, _ := c.identity()
	if e.TenantID != tenantID || e.StoreID != storeID {
		h.sendError(c, transport.ErrUnauthorized, "event room does not match registered room")
		if h.mx != nil {
			h.mx.EventsRejected.Inc()
		}
		return
	}

	h.clock.Observe(e.Clock.Lamport)

	appended, err := h.store.Append(e)
	if err != nil {
		h.sendError(c, transport.ErrMalformedMessage, err.Error())
		if h.mx != nil {
			h.mx.EventsRejected.Inc()
		}
		return
	}
	if !appended {
		if h.mx != nil {
			h.mx.EventsDuplicate.Inc()
		}
		return
	}
	if h.mx != nil {
		h.mx.EventsAppended.WithLabelValues(e.TenantID).Inc()
		h.mx.Lamport.Set(float64(h.store.LastLamport()))
	}

	c.setCursor(e.Clock.Lamport)

	relay, _ := transport.NewEnvelope(transport.MsgEventsRelay, e)
	h.broadcastRoom(e.Room(), relay, "")
}

// --- cursor.request --------------------------------------------------

type cursorRequestPayload struct {
	FromLamport uint64 `json:"fromLamport"`
}

func (h *Hub) handleCursorRequest(c *client, env transport.Envelope) {
	if !c.registered() {
		h.sendError(c, transport.ErrNotAuthenticated, "hello required before cursor.request")
		return
	}
	var p cursorRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		h.sendError(c, transport.ErrMalformedMessage, "malformed cursor.request")
		return
	}
	h.replay(c, p.FromLamport)
}

// --- ping --------------------------------------------------------

func (h *Hub) handlePing(c *client) {
	c.touch()
	pong, _ := transport.NewEnvelope(transport.MsgPong, struct{}{})
	c.conn.Send(pong)
}

// --- disconnect --------------------------------------------------

func (h *Hub) disconnect(c *client) {
	deviceID, _, _, room := c.identityRoom()
	if deviceID != "" {
		released := h.locks.ReleaseDeviceLocks(deviceID)
		for _, l := range released {
			if h.mx != nil {
				h.mx.LockReleases.WithLabelValues("disconnect").Inc()
			}
			h.broadcastLockReleased(event.RoomKey(l.TenantID, l.StoreID), l.AggregateID, l.DeviceID, "device_disconnected", "")
		}
		_ = room
	}
	h.removeClient(c)
	c.conn.Close()
}

// broadcastRoom sends env to every connection in room, including the
// sender if present (the spec preserves relay-echo so clients only
// ever apply the hub's canonical copy). excludeConnID, if non-empty,
// is skipped.
func (h *Hub) broadcastRoom(room string, env transport.Envelope, excludeConnID string) {
	for _, member := range h.roomMembers(room) {
		if member.connectionID == excludeConnID {
			continue
		}
		member.conn.Send(env)
	}
}
