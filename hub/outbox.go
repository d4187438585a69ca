package hub

import (
	"context"
	"sync"
)

// Outbox is a bounded queue of frames waiting to be written to one
// participant. Close is safe to call more than once and never races a
// concurrent Send: the data channel itself is never closed.
type Outbox[T any] struct {
	channel    chan T
	done       chan struct{}
	closeOnce  sync.Once
	bufferSize int
}

// NewOutbox returns an open outbox buffering up to bufferSize values.
func NewOutbox[T any](bufferSize int) *Outbox[T] {
	return &Outbox[T]{
		channel:    make(chan T, bufferSize),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
	}
}

// Send enqueues message, waiting for space until ctx is done or the outbox
// closes.
func (o *Outbox[T]) Send(ctx context.Context, message T) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrOutboxClosed
	}
}

func (o *Outbox[T]) Receive(ctx context.Context) (T, error) {
	select {
	case message := <-o.channel:
		return message, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-o.done:
		var zero T
		return zero, ErrOutboxClosed
	}
}

func (o *Outbox[T]) TryReceive() (T, bool) {
	select {
	case message := <-o.channel:
		return message, true
	default:
		var zero T
		return zero, false
	}
}

// C exposes queued frames to a writer loop that also selects on Done.
func (o *Outbox[T]) C() <-chan T {
	return o.channel
}

func (o *Outbox[T]) Done() <-chan struct{} {
	return o.done
}

func (o *Outbox[T]) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

func (o *Outbox[T]) IsClosed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

func (o *Outbox[T]) BufferSize() int {
	return o.bufferSize
}

func (o *Outbox[T]) QueueLength() int {
	return len(o.channel)
}
