// Package transport frames the hub's bidirectional JSON protocol over a
// gorilla/websocket connection: one envelope per frame, a message-name
// routing key, and a raw payload the session layer decodes per handler.
package transport

import "encoding/json"

// Message names, matching the wire protocol table in the spec.
const (
	MsgHello      = "hello"
	MsgHelloAck   = "hello.ack"
	MsgEventsAppend = "events.append"
	MsgEventsRelay  = "events.relay"
	MsgEventsBulk   = "events.bulk"
	MsgCursorRequest = "cursor.request"

	MsgOrderLockRequest        = "order.lock.request"
	MsgOrderLockResponse       = "order.lock.response"
	MsgOrderLockRenew          = "order.lock.renew"
	MsgOrderLockRenewed        = "order.lock.renewed"
	MsgOrderLockRelease        = "order.lock.release"
	MsgOrderLockReleased       = "order.lock.released"
	MsgOrderLockStatus         = "order.lock.status"
	MsgOrderLockStatusResponse = "order.lock.status.response"
	MsgOrderLocked             = "order.locked"

	MsgPing  = "ping"
	MsgPong  = "pong"
	MsgError = "error"
)

// Error codes sent in an "error" envelope's payload.
const (
	ErrInvalidHello      = "INVALID_HELLO"
	ErrNotAuthenticated  = "NOT_AUTHENTICATED"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrMalformedMessage  = "MALFORMED_MESSAGE"
)

// Envelope is the single frame shape exchanged over the socket: a
// routing name plus an opaque payload the handler for that name knows
// how to decode.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(msgType string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// ErrorPayload is the payload of an "error" envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
