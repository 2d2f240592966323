package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1MiB; point-of-sale payloads are small JSON blobs
	sendBufferSize = 256
)

// Upgrader upgrades an incoming HTTP request to a websocket connection.
// LAN devices may be on ad-hoc hosts, so origin checking is left to the
// HTTP layer in front of this (if any) rather than enforced here.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Upgrade upgrades the HTTP connection and wraps it as a Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := NewConn(ws)
	c.SetPongHandlers()
	return c, nil
}

// Conn wraps a single gorilla/websocket connection with a buffered
// outbound queue and a dedicated writer goroutine, since gorilla's
// connection forbids concurrent writers.
type Conn struct {
	ws   *websocket.Conn
	send chan Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps ws and starts its writer pump.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:     ws,
		send:   make(chan Envelope, sendBufferSize),
		closed: make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageSize)
	go c.writePump()
	return c
}

// Send enqueues an envelope for delivery. It never blocks: a full
// queue indicates a stalled client, and the connection is torn down
// rather than let one slow peer back-pressure the whole room.
func (c *Conn) Send(e Envelope) bool {
	select {
	case c.send <- e:
		return true
	case <-c.closed:
		return false
	default:
		c.Close()
		return false
	}
}

// ReadMessage blocks for the next inbound envelope.
func (c *Conn) ReadMessage() (Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// SetPongHandlers wires the read deadline/pong-handler pair gorilla's
// ping/pong keepalive expects.
func (c *Conn) SetPongHandlers() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
