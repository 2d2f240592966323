package session

import (
	"encoding/json"

	"github.com/luxfi/posync-hub/internal/event"
	"github.com/luxfi/posync-hub/internal/transport"
)

// Lock payloads use the wire field name "orderId": the spec's order
// lock messages only ever scope to an order aggregate, even though the
// lock manager itself is keyed by a generic aggregateId.

type lockRequestPayload struct {
	OrderID string `json:"orderId"`
}

type lockResponsePayload struct {
	OrderID   string `json:"orderId"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

type orderLockedPayload struct {
	OrderID    string `json:"orderId"`
	DeviceID   string `json:"deviceId"`
	UserName   string `json:"userName,omitempty"`
	AcquiredAt int64  `json:"acquiredAt"`
}

type lockReleasedPayload struct {
	OrderID  string `json:"orderId"`
	DeviceID string `json:"deviceId"`
	Reason   string `json:"reason"`
}

type lockStatusPayload struct {
	OrderID   string `json:"orderId"`
	IsLocked  bool   `json:"isLocked"`
	DeviceID  string `json:"deviceId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func (h *Hub) handleLockRequest(c *client, env transport.Envelope) {
	if !c.registered() {
		h.sendError(c, transport.ErrNotAuthenticated, "hello required before order.lock.request")
		return
	}
	var p lockRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == "" {
		h.sendError(c, transport.ErrMalformedMessage, "malformed order.lock.request")
		return
	}

	deviceID, tenantID, storeID, userID, userName := c.identity()
	result := h.locks.Acquire(tenantID, storeID, p.OrderID, deviceID, userID, userName)

	outcome := "denied"
	if result.Success {
		outcome = "granted"
	}
	if h.mx != nil {
		h.mx.LockAcquires.WithLabelValues(outcome).Inc()
	}

	resp, _ := transport.NewEnvelope(transport.MsgOrderLockResponse, lockResponsePayload{
		OrderID:   p.OrderID,
		Success:   result.Success,
		Reason:    result.Reason,
		ExpiresAt: timeMillis(result.Lock.ExpiresAt),
	})
	c.conn.Send(resp)

	if result.Success {
		locked, _ := transport.NewEnvelope(transport.MsgOrderLocked, orderLockedPayload{
			OrderID:    p.OrderID,
			DeviceID:   deviceID,
			UserName:   userName,
			AcquiredAt: timeMillis(result.Lock.AcquiredAt),
		})
		h.broadcastRoom(event.RoomKey(tenantID, storeID), locked, c.connectionID)
	}
}

func (h *Hub) handleLockRenew(c *client, env transport.Envelope) {
	if !c.registered() {
		h.sendError(c, transport.ErrNotAuthenticated, "hello required before order.lock.renew")
		return
	}
	var p lockRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == "" {
		h.sendError(c, transport.ErrMalformedMessage, "malformed order.lock.renew")
		return
	}

	deviceID, tenantID, storeID, _, _ := c.identity()
	result := h.locks.Renew(tenantID, storeID, p.OrderID, deviceID)

	outcome := "denied"
	if result.Success {
		outcome = "renewed"
	}
	if h.mx != nil {
		h.mx.LockAcquires.WithLabelValues(outcome).Inc()
	}

	resp, _ := transport.NewEnvelope(transport.MsgOrderLockRenewed, lockResponsePayload{
		OrderID:   p.OrderID,
		Success:   result.Success,
		ExpiresAt: timeMillis(result.Lock.ExpiresAt),
	})
	c.conn.Send(resp)
}

func (h *Hub) handleLockRelease(c *client, env transport.Envelope) {
	if !c.registered() {
		h.sendError(c, transport.ErrNotAuthenticated, "hello required before order.lock.release")
		return
	}
	var p lockRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == "" {
		h.sendError(c, transport.ErrMalformedMessage, "malformed order.lock.release")
		return
	}

	deviceID, tenantID, storeID, _, _ := c.identity()
	result := h.locks.Release(tenantID, storeID, p.OrderID, deviceID)

	resp, _ := transport.NewEnvelope(transport.MsgOrderLockReleased, lockReleasedPayload{
		OrderID:  p.OrderID,
		DeviceID: deviceID,
		Reason:   "manual_release",
	})
	c.conn.Send(resp)

	if result.Success {
		if h.mx != nil {
			h.mx.LockReleases.WithLabelValues("manual").Inc()
		}
		h.broadcastLockReleased(event.RoomKey(tenantID, storeID), p.OrderID, deviceID, "manual_release", c.connectionID)
	}
}

func (h *Hub) handleLockStatus(c *client, env transport.Envelope) {
	if !c.registered() {
		h.sendError(c, transport.ErrNotAuthenticated, "hello required before order.lock.status")
		return
	}
	var p lockRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.OrderID == "" {
		h.sendError(c, transport.ErrMalformedMessage, "malformed order.lock.status")
		return
	}

	_, tenantID, storeID, _, _ := c.identity()
	lock, held := h.locks.GetLockStatus(tenantID, storeID, p.OrderID)

	payload := lockStatusPayload{OrderID: p.OrderID, IsLocked: held}
	if held {
		payload.DeviceID = lock.DeviceID
		payload.UserName = lock.UserName
		payload.ExpiresAt = timeMillis(lock.ExpiresAt)
	}

	resp, _ := transport.NewEnvelope(transport.MsgOrderLockStatusResponse, payload)
	c.conn.Send(resp)
}

// broadcastLockReleased notifies a room that a lock was released,
// excluding the connection that initiated the release (if any) since
// that connection already received a direct order.lock.released reply.
func (h *Hub) broadcastLockReleased(room, orderID, deviceID, reason, excludeConnID string) {
	env, _ := transport.NewEnvelope(transport.MsgOrderLockReleased, lockReleasedPayload{
		OrderID:  orderID,
		DeviceID: deviceID,
		Reason:   reason,
	})
	h.broadcastRoom(room, env, excludeConnID)
}
