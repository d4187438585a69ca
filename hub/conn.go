package hub

import (
	"context"

	"github.com/google/uuid"
)

// Conn is a live transport handle for one participant. ID is unique per
// connection, not per identity: a participant that reconnects gets a new
// Conn with a new ID.
type Conn interface {
	ID() string
	Deliver(ctx context.Context, payload any) error
}

// LocalConn is an in-process Conn. Delivered payloads are queued on its
// Outbox for the owner to consume.
type LocalConn struct {
	id     string
	outbox *Outbox[any]
}

// NewLocalConn returns a LocalConn with a fresh ID whose outbox holds up
// to bufferSize payloads.
func NewLocalConn(bufferSize int) *LocalConn {
	return &LocalConn{
		id:     uuid.Must(uuid.NewV7()).String(),
		outbox: NewOutbox[any](bufferSize),
	}
}

func (c *LocalConn) ID() string {
	return c.id
}

func (c *LocalConn) Deliver(ctx context.Context, payload any) error {
	return c.outbox.Send(ctx, payload)
}

func (c *LocalConn) Outbox() *Outbox[any] {
	return c.outbox
}

func (c *LocalConn) Close() {
	c.outbox.Close()
}
