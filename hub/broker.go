package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/observability"
)

// Recorder persists a message before it is delivered.
type Recorder interface {
	Record(ctx context.Context, msg *messaging.Message) error
}

// Broker is the message router: membership, persistence, delivery.
type Broker struct {
	name            string
	deliveryTimeout time.Duration

	conns    *Connections
	channels *Channels
	recorder Recorder

	logger   *slog.Logger
	observer observability.Observer
	metrics  *Metrics
}

type Option func(*Broker)

func WithObserver(obs observability.Observer) Option {
	return func(b *Broker) { b.observer = observability.OrNoOp(obs) }
}

func WithMetrics(m *Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// NewBroker creates a broker that records every message through recorder
// before delivering it. Zero-valued cfg fields take their defaults.
func NewBroker(cfg Config, recorder Recorder, opts ...Option) *Broker {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)

	b := &Broker{
		name:            defaults.Name,
		deliveryTimeout: defaults.DeliveryTimeout,
		conns:           NewConnections(),
		channels:        NewChannels(),
		recorder:        recorder,
		logger:          defaults.Logger,
		observer:        observability.NoOpObserver{},
		metrics:         NewMetrics(""),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Connections() *Connections { return b.conns }

func (b *Broker) Channels() *Channels { return b.channels }

func (b *Broker) Metrics() *Metrics { return b.metrics }

// Register binds identity to conn, replacing any earlier handle.
func (b *Broker) Register(ctx context.Context, identity string, conn Conn) {
	previous, replaced := b.conns.Register(identity, conn)
	b.metrics.SetConnections(b.conns.Len())

	data := map[string]any{"identity": identity, "conn": conn.ID()}
	if replaced {
		data["replaced"] = previous.ID()
	}
	observability.Emit(ctx, b.observer, EventRegister, observability.LevelInfo, "hub.Broker.Register", data)
}

// Join adds identity to channel and returns the members after the join.
func (b *Broker) Join(ctx context.Context, channel, identity string) []string {
	members, created := b.channels.Join(channel, identity)

	observability.Emit(ctx, b.observer, EventJoin, observability.LevelInfo, "hub.Broker.Join", map[string]any{
		"channel":  channel,
		"identity": identity,
		"created":  created,
		"members":  len(members),
	})
	return members
}

// Disconnect removes identity's handle and its channel memberships. An
// unknown identity is a no-op.
func (b *Broker) Disconnect(ctx context.Context, identity string) {
	removed := b.conns.Remove(identity)
	left := b.channels.RemoveMember(identity)
	b.metrics.SetConnections(b.conns.Len())

	if removed || len(left) > 0 {
		observability.Emit(ctx, b.observer, EventDisconnect, observability.LevelInfo, "hub.Broker.Disconnect", map[string]any{
			"identity": identity,
			"channels": left,
		})
	}
}

// DisconnectConn removes whatever identity conn still owns. It reports the
// identity so the caller can release turn state held by it.
func (b *Broker) DisconnectConn(ctx context.Context, conn Conn) (string, bool) {
	identity, ok := b.conns.RemoveConn(conn)
	if !ok {
		return "", false
	}
	left := b.channels.RemoveMember(identity)
	b.metrics.SetConnections(b.conns.Len())

	observability.Emit(ctx, b.observer, EventDisconnect, observability.LevelInfo, "hub.Broker.DisconnectConn", map[string]any{
		"identity": identity,
		"conn":     conn.ID(),
		"channels": left,
	})
	return identity, true
}

// PublishToChannel records and broadcasts body from sender to channel,
// returning the new message ID.
func (b *Broker) PublishToChannel(ctx context.Context, sender, channel, body string) (string, error) {
	msg := messaging.NewChannelMessage(sender, channel, body).Build()
	if err := b.Publish(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// SendDirect records and delivers body from sender to recipient,
// returning the new message ID.
func (b *Broker) SendDirect(ctx context.Context, sender, recipient, body string) (string, error) {
	msg := messaging.NewDirectMessage(sender, recipient, body).Build()
	if err := b.Publish(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Publish validates, records and routes msg. Preconditions are checked
// before anything is recorded; recording failures are returned as-is.
// An error wrapping ErrNotDelivered means msg was recorded and only its
// delivery failed.
func (b *Broker) Publish(ctx context.Context, msg *messaging.Message) error {
	if msg.Target.IsDirect() {
		return b.direct(ctx, msg)
	}
	return b.broadcast(ctx, msg)
}

func (b *Broker) broadcast(ctx context.Context, msg *messaging.Message) error {
	channel := msg.Target.Name
	members, ok := b.channels.Members(channel)
	if !ok || len(members) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	if err := b.record(ctx, msg); err != nil {
		return err
	}
	b.metrics.RecordChannelMessage()

	event := protocol.Deliver(msg)
	delivered, failed := 0, 0
	for _, member := range members {
		if member == msg.From {
			continue
		}
		conn, ok := b.conns.Lookup(member)
		if !ok {
			continue
		}
		if err := b.deliver(ctx, conn, event); err != nil {
			failed++
			b.deliveryFailed(ctx, msg, member, err)
			continue
		}
		delivered++
	}
	b.metrics.RecordDelivery(delivered, failed)

	b.logger.DebugContext(
		ctx,
		"channel message published",
		slog.String("hub_name", b.name),
		slog.String("channel", channel),
		slog.String("from", msg.From),
		slog.Int("members", len(members)),
		slog.Int("delivered", delivered),
	)
	observability.Emit(ctx, b.observer, EventPublish, observability.LevelInfo, "hub.Broker.Publish", map[string]any{
		"message_id": msg.ID,
		"channel":    channel,
		"from":       msg.From,
		"delivered":  delivered,
		"failed":     failed,
	})
	return nil
}

func (b *Broker) direct(ctx context.Context, msg *messaging.Message) error {
	recipient := msg.Target.Name
	conn, ok := b.conns.Lookup(recipient)
	if !ok {
		return fmt.Errorf("%w: %s is not connected", ErrRecipientUnreachable, recipient)
	}

	if err := b.record(ctx, msg); err != nil {
		return err
	}
	b.metrics.RecordDirectMessage()

	if err := b.deliver(ctx, conn, protocol.Deliver(msg)); err != nil {
		b.metrics.RecordDelivery(0, 1)
		b.deliveryFailed(ctx, msg, recipient, err)
		return fmt.Errorf("%w: %w: %s: %v", ErrNotDelivered, ErrRecipientUnreachable, recipient, err)
	}
	b.metrics.RecordDelivery(1, 0)

	observability.Emit(ctx, b.observer, EventDirect, observability.LevelInfo, "hub.Broker.Publish", map[string]any{
		"message_id": msg.ID,
		"from":       msg.From,
		"to":         recipient,
	})
	return nil
}

func (b *Broker) record(ctx context.Context, msg *messaging.Message) error {
	if b.recorder == nil {
		return nil
	}
	if err := b.recorder.Record(ctx, msg); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

func (b *Broker) deliver(ctx context.Context, conn Conn, payload any) error {
	deliverCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
	defer cancel()
	return conn.Deliver(deliverCtx, payload)
}

func (b *Broker) deliveryFailed(ctx context.Context, msg *messaging.Message, to string, err error) {
	b.logger.WarnContext(
		ctx,
		"failed to deliver message",
		slog.String("hub_name", b.name),
		slog.String("message_id", msg.ID),
		slog.String("to", to),
		slog.String("error", err.Error()),
	)
	observability.Emit(ctx, b.observer, EventDeliveryFailed, observability.LevelWarning, "hub.Broker.Publish", map[string]any{
		"message_id": msg.ID,
		"to":         to,
		"error":      err.Error(),
	})
}
