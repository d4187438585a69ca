package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/switchboard/hub"
)

// Conn is one participant's WebSocket. It satisfies hub.Conn.
type Conn struct {
	id           string
	ws           *websocket.Conn
	outbox       *hub.Outbox[any]
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newConn(ws *websocket.Conn, cfg Config) *Conn {
	return &Conn{
		id:           uuid.Must(uuid.NewV7()).String(),
		ws:           ws,
		outbox:       hub.NewOutbox[any](cfg.OutboxSize),
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Deliver queues payload for the writer. It blocks while the queue is full,
// until ctx is done.
func (c *Conn) Deliver(ctx context.Context, payload any) error {
	return c.outbox.Send(ctx, payload)
}

// writeLoop drains the outbox onto the socket until the connection closes or
// a write fails.
func (c *Conn) writeLoop() {
	for {
		select {
		case payload := <-c.outbox.C():
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.Close()
				return
			}
			if err := c.ws.WriteJSON(payload); err != nil {
				c.Close()
				return
			}
		case <-c.outbox.Done():
			return
		}
	}
}

// Close stops the writer and closes the socket with a normal closure.
// Frames still queued are dropped.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
}
