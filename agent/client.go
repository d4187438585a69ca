package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

// Outgoing is a message a participant sends. Exactly one of Channel or
// Recipient is set.
type Outgoing struct {
	Channel   string
	Recipient string
	Message   string
	protocol.Threading
}

// Client is one participant's connection to a coordinator. Requests may be
// issued from any goroutine.
type Client struct {
	cfg    Config
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Envelope

	events    chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to cfg.URL, registers cfg.Username and joins cfg.Channels.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	full := DefaultConfig()
	full.Merge(&cfg)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, full.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", full.URL, err)
	}

	c := &Client{
		cfg:     full,
		conn:    conn,
		logger:  full.Logger,
		pending: make(map[string]chan protocol.Envelope),
		events:  make(chan protocol.Envelope, full.EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	if full.Username != "" {
		if _, err := c.Register(ctx, full.Username); err != nil {
			c.Close()
			return nil, err
		}
	}
	for _, ch := range full.Channels {
		if _, err := c.Join(ctx, ch); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) Username() string {
	return c.cfg.Username
}

// Events delivers pushed notifications. It is closed when the connection
// ends.
func (c *Client) Events() <-chan protocol.Envelope {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, once Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

func (c *Client) Register(ctx context.Context, username string) (protocol.Envelope, error) {
	env, err := c.Do(ctx, &protocol.RegisterAction{Username: username})
	if err == nil {
		c.cfg.Username = username
	}
	return env, err
}

func (c *Client) Join(ctx context.Context, channel string) (protocol.Envelope, error) {
	return c.Do(ctx, &protocol.JoinChannelAction{Channel: channel})
}

// RaiseHand asks for the floor. data is returned verbatim with your_turn.
func (c *Client) RaiseHand(ctx context.Context, data any) (protocol.Envelope, error) {
	action := &protocol.RaiseHandAction{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return protocol.Envelope{}, fmt.Errorf("encode raise_hand data: %w", err)
		}
		action.Data = raw
	}
	return c.Do(ctx, action)
}

func (c *Client) Send(ctx context.Context, out Outgoing) (protocol.Envelope, error) {
	switch {
	case out.Channel != "":
		return c.Do(ctx, &protocol.SendMessageAction{Channel: out.Channel, Message: out.Message, Threading: out.Threading})
	case out.Recipient != "":
		return c.Do(ctx, &protocol.SendDirectAction{Recipient: out.Recipient, Message: out.Message, Threading: out.Threading})
	default:
		return protocol.Envelope{}, ErrNoDestination
	}
}

// Do sends action and waits for its reply. An {error} reply is returned as
// an error wrapping ErrRemote.
func (c *Client) Do(ctx context.Context, action protocol.Action) (protocol.Envelope, error) {
	requestID := uuid.Must(uuid.NewV7()).String()
	frame, err := protocol.Encode(requestID, action)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("encode %s: %w", action.Name(), err)
	}

	reply := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	c.pending[requestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.write(frame); err != nil {
		return protocol.Envelope{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	select {
	case env := <-reply:
		if env.Error != "" {
			return env, fmt.Errorf("%w: %s: %s", ErrRemote, action.Name(), env.Error)
		}
		return env, nil
	case <-ctx.Done():
		return protocol.Envelope{}, fmt.Errorf("%s: %w", action.Name(), ctx.Err())
	case <-c.done:
		return protocol.Envelope{}, ErrClosed
	}
}

func (c *Client) write(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.shutdown(err)
			return
		}

		if env.IsReply() && env.RequestID != "" {
			c.mu.Lock()
			reply, ok := c.pending[env.RequestID]
			c.mu.Unlock()
			if ok {
				reply <- env
				continue
			}
		}

		select {
		case c.events <- env:
		default:
			c.logger.Warn("dropping notification, event buffer full",
				slog.String("username", c.cfg.Username),
				slog.String("action", env.Action),
			)
		}
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.err = err
		}
		close(c.done)
		_ = c.conn.Close()
	})
}

// Close ends the connection with a normal closure.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(nil)
	return nil
}
