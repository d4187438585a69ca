// Package coordinator owns every piece of shared coordination state and
// turns decoded protocol actions into operations on it.
//
// A Coordinator is built from configuration via New, which creates the
// store, embedder, broker, turn arbiter, reply tracker and dependency tree.
// Functional options allow test overrides of the store, embedder, observer
// and logger.
//
//	c, err := coordinator.New(&cfg)
//	reply := c.Handle(ctx, conn, frame)
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/hub"
	"github.com/tailored-agentic-units/switchboard/memory"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/store"
	"github.com/tailored-agentic-units/switchboard/tracker"
	"github.com/tailored-agentic-units/switchboard/turn"
)

// Option configures a Coordinator before config-driven initialization.
// Any subsystem supplied by an option is used instead of creating one.
type Option func(*Coordinator)

// WithStore overrides the config-created store.
func WithStore(s store.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithEmbedder overrides the config-created embedder.
func WithEmbedder(e embedding.Embedder) Option {
	return func(c *Coordinator) { c.embedder = e }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// Coordinator is the single owner of the connection registry, channel
// directory, turn queue and reply tracking tables. Each of those guards
// its own state, so handlers for different connections may run
// concurrently.
type Coordinator struct {
	broker    *hub.Broker
	arbiter   *turn.Arbiter
	replies   *tracker.ReplyTracker[protocol.Reply]
	tree      *tracker.Tree[[]protocol.Reply]
	store     store.Store
	embedder  embedding.Embedder
	assembler *memory.Assembler

	logger          *slog.Logger
	observer        observability.Observer
	deliveryTimeout time.Duration
	namespace       string

	// Reply payloads of branches whose replies are in but whose children
	// are still open. Guarded by mu, which also serializes tree walks.
	mu    sync.Mutex
	ready map[string][]protocol.Reply
}

// New creates a Coordinator from configuration merged over defaults.
func New(cfg *Config, opts ...Option) (*Coordinator, error) {
	full := DefaultConfig()
	full.Merge(cfg)

	c := &Coordinator{
		ready:     make(map[string][]protocol.Reply),
		namespace: full.Metrics.Namespace,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = full.Hub.Logger
	}
	if c.observer == nil {
		obs, err := resolveObservers(full.Observers)
		if err != nil {
			return nil, err
		}
		c.observer = obs
	}

	if c.embedder == nil {
		e, err := embedding.New(&full.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		if c.embedder, err = memory.NewEmbeddingCache(e, full.Embedding.CacheSize); err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
	}

	if c.store == nil {
		s, err := OpenStore(full.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		c.store = s
	}

	hubCfg := full.Hub
	hubCfg.Logger = c.logger
	c.deliveryTimeout = hubCfg.DeliveryTimeout
	c.broker = hub.NewBroker(
		hubCfg,
		memory.NewRecorder(c.store, c.embedder),
		hub.WithObserver(c.observer),
		hub.WithMetrics(hub.NewMetrics(c.namespace)),
	)

	turnCfg := full.Turn
	turnCfg.Logger = c.logger
	c.arbiter = turn.NewArbiter(turnCfg, c.broker.Connections(), c.notifyTurn, turn.WithObserver(c.observer))

	c.replies = tracker.NewReplyTracker[protocol.Reply](tracker.WithLogger(c.logger), tracker.WithObserver(c.observer))
	c.tree = tracker.NewTree[[]protocol.Reply](tracker.WithLogger(c.logger), tracker.WithObserver(c.observer))
	c.assembler = memory.NewAssembler(c.store, c.embedder, c.logger)

	return c, nil
}

// resolveObservers looks names up in the observability registry. More than
// one name fans out through a MultiObserver.
func resolveObservers(names []string) (observability.Observer, error) {
	resolved := make([]observability.Observer, 0, len(names))
	for _, name := range names {
		obs, err := observability.GetObserver(name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve observer: %w", err)
		}
		resolved = append(resolved, obs)
	}
	switch len(resolved) {
	case 0:
		return observability.NoOpObserver{}, nil
	case 1:
		return resolved[0], nil
	default:
		return observability.NewMultiObserver(resolved...), nil
	}
}

func (c *Coordinator) Broker() *hub.Broker { return c.broker }

func (c *Coordinator) Arbiter() *turn.Arbiter { return c.arbiter }

func (c *Coordinator) Replies() *tracker.ReplyTracker[protocol.Reply] { return c.replies }

func (c *Coordinator) Tree() *tracker.Tree[[]protocol.Reply] { return c.tree }

func (c *Coordinator) Store() store.Store { return c.store }

// Collectors returns the Prometheus collectors describing live state.
func (c *Coordinator) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.broker.Metrics(),
		turn.NewQueueCollector(c.namespace, c.arbiter),
		tracker.NewOpenSetsCollector(c.namespace, c.replies),
	}
}

func (c *Coordinator) Close() error {
	return c.store.Close()
}

// Handle decodes one inbound frame from conn and executes it. It returns
// exactly one reply for the frame: a status, a query result or an error.
func (c *Coordinator) Handle(ctx context.Context, conn hub.Conn, frame []byte) any {
	req, err := protocol.Decode(frame)
	if err != nil {
		return c.fail(ctx, req.ID, "", err)
	}
	return c.Dispatch(ctx, conn, req)
}

// Dispatch executes a decoded request on behalf of conn.
func (c *Coordinator) Dispatch(ctx context.Context, conn hub.Conn, req protocol.Request) any {
	name := req.Action.Name()
	observability.Emit(ctx, c.observer, EventDispatch, observability.LevelVerbose, "coordinator.Dispatch", map[string]any{
		"action": string(name),
		"conn":   conn.ID(),
	})

	reply, err := c.dispatch(ctx, conn, req)
	if err != nil {
		return c.fail(ctx, req.ID, name, err)
	}
	return reply
}

// Query executes a read-only action without a connection.
func (c *Coordinator) Query(ctx context.Context, req protocol.Request) (any, error) {
	if !protocol.IsQuery(req.Action.Name()) {
		return nil, fmt.Errorf("%w: %s", ErrNotQuery, req.Action.Name())
	}
	return c.query(ctx, req.ID, req.Action)
}

// Disconnect releases everything conn held: its identity binding, channel
// memberships and any raised hand or active turn.
func (c *Coordinator) Disconnect(ctx context.Context, conn hub.Conn) {
	identity, ok := c.broker.DisconnectConn(ctx, conn)
	if !ok {
		return
	}
	c.arbiter.Drop(ctx, identity)

	observability.Emit(ctx, c.observer, EventDisconnect, observability.LevelInfo, "coordinator.Disconnect", map[string]any{
		"identity": identity,
	})
}

func (c *Coordinator) dispatch(ctx context.Context, conn hub.Conn, req protocol.Request) (any, error) {
	switch a := req.Action.(type) {
	case *protocol.RegisterAction:
		return c.register(ctx, conn, req.ID, a)
	case *protocol.JoinChannelAction:
		return c.join(ctx, conn, req.ID, a)
	case *protocol.RaiseHandAction:
		return c.raiseHand(ctx, conn, req.ID, a)
	case *protocol.SendMessageAction:
		sender, err := c.identity(conn)
		if err != nil {
			return nil, err
		}
		msg := c.build(messaging.NewChannelMessage(sender, a.Channel, a.Message), a.Threading)
		return c.send(ctx, req.ID, msg, protocol.StatusMessageSent)
	case *protocol.SendDirectAction:
		sender, err := c.identity(conn)
		if err != nil {
			return nil, err
		}
		if a.Username != "" && a.Username != sender {
			return nil, fmt.Errorf("%w: %s", ErrIdentityMismatch, a.Username)
		}
		msg := c.build(messaging.NewDirectMessage(sender, a.Recipient, a.Message), a.Threading)
		return c.send(ctx, req.ID, msg, protocol.StatusDirectMessageSent)
	default:
		if protocol.IsQuery(req.Action.Name()) {
			return c.query(ctx, req.ID, req.Action)
		}
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownAction, req.Action.Name())
	}
}

func (c *Coordinator) identity(conn hub.Conn) (string, error) {
	identity, ok := c.broker.Connections().IdentityOf(conn)
	if !ok {
		return "", hub.ErrNotRegistered
	}
	return identity, nil
}

func (c *Coordinator) register(ctx context.Context, conn hub.Conn, requestID string, a *protocol.RegisterAction) (any, error) {
	if err := c.store.AddUser(ctx, a.Username); err != nil {
		return nil, fmt.Errorf("record user: %w", err)
	}

	// A connection that re-registers under a new name gives up the old one.
	if previous, ok := c.broker.Connections().IdentityOf(conn); ok && previous != a.Username {
		c.broker.Disconnect(ctx, previous)
		c.arbiter.Drop(ctx, previous)
	}
	c.broker.Register(ctx, a.Username, conn)

	return protocol.StatusReply{
		RequestID: requestID,
		Status:    protocol.StatusRegistered,
		Username:  a.Username,
	}, nil
}

func (c *Coordinator) join(ctx context.Context, conn hub.Conn, requestID string, a *protocol.JoinChannelAction) (any, error) {
	identity, err := c.identity(conn)
	if err != nil {
		return nil, err
	}
	if err := c.store.AddChannel(ctx, a.Channel); err != nil {
		return nil, fmt.Errorf("record channel: %w", err)
	}
	members := c.broker.Join(ctx, a.Channel, identity)

	return protocol.StatusReply{
		RequestID: requestID,
		Status:    protocol.StatusJoined,
		Channel:   a.Channel,
		Members:   members,
	}, nil
}

func (c *Coordinator) raiseHand(ctx context.Context, conn hub.Conn, requestID string, a *protocol.RaiseHandAction) (any, error) {
	identity, err := c.identity(conn)
	if err != nil {
		return nil, err
	}
	outcome := c.arbiter.RaiseHand(ctx, identity, a.Data)

	return protocol.StatusReply{
		RequestID: requestID,
		Status:    string(outcome.Status),
		Username:  identity,
		Position:  outcome.Position,
	}, nil
}

func (c *Coordinator) build(b *messaging.MessageBuilder, t protocol.Threading) *messaging.Message {
	return b.Thread(t.ThreadID).Parent(t.ParentID).AwaitReplies(t.AwaitReplies...).Build()
}

// send publishes msg and applies its side effects in order: reply tracking
// is armed before delivery so an immediate answer cannot miss it, the
// sender's own reply (if any) is resolved, then the sender's turn ends.
func (c *Coordinator) send(ctx context.Context, requestID string, msg *messaging.Message, status string) (any, error) {
	tracked := msg.ExpectsReplies()
	if tracked {
		if err := c.track(ctx, msg); err != nil {
			return nil, err
		}
	}

	published := c.broker.Publish(ctx, msg)
	if published != nil && !errors.Is(published, hub.ErrNotDelivered) {
		if tracked {
			c.replies.Cancel(msg.ID)
			c.tree.Remove(msg.ID)
		}
		return nil, published
	}

	// From here msg is in the log, delivered or not.
	if msg.IsReply() {
		c.replies.ResolveWith(ctx, msg.ThreadID, msg.From, protocol.Reply{
			From:      msg.From,
			MessageID: msg.ID,
			Message:   msg.Body,
		})
	}
	c.arbiter.Release(ctx, msg.From)

	if published != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, published)
	}
	return protocol.StatusReply{
		RequestID: requestID,
		Status:    status,
		MessageID: msg.ID,
	}, nil
}

func (c *Coordinator) fail(ctx context.Context, requestID string, action protocol.Name, err error) protocol.ErrorReply {
	c.logger.WarnContext(
		ctx,
		"action failed",
		slog.String("action", string(action)),
		slog.String("request_id", requestID),
		slog.String("error", err.Error()),
	)
	observability.Emit(ctx, c.observer, EventActionFailed, observability.LevelWarning, "coordinator.Dispatch", map[string]any{
		"action": string(action),
		"error":  err.Error(),
	})
	return protocol.Error(requestID, err)
}

// deliver pushes a notification to identity's live connection.
func (c *Coordinator) deliver(ctx context.Context, identity string, payload any) error {
	conn, ok := c.broker.Connections().Lookup(identity)
	if !ok {
		return fmt.Errorf("%w: %s", hub.ErrRecipientUnreachable, identity)
	}
	deliverCtx, cancel := context.WithTimeout(ctx, c.deliveryTimeout)
	defer cancel()
	return conn.Deliver(deliverCtx, payload)
}

func (c *Coordinator) notifyTurn(ctx context.Context, grant turn.Request) error {
	return c.deliver(ctx, grant.Identity, protocol.NewYourTurn(grant.Identity, grant.Payload))
}
