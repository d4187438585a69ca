package hub_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/hub"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/observability"
)

type memoryRecorder struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	err  error
}

func (r *memoryRecorder) Record(_ context.Context, msg *messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *memoryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// failingConn rejects every delivery.
type failingConn struct{ id string }

func (c failingConn) ID() string { return c.id }

func (failingConn) Deliver(context.Context, any) error { return errors.New("socket closed") }

func createTestBroker(t *testing.T) (*hub.Broker, *memoryRecorder) {
	t.Helper()
	rec := &memoryRecorder{}
	cfg := hub.DefaultConfig()
	cfg.Name = "test-hub"
	cfg.DeliveryTimeout = time.Second
	return hub.NewBroker(cfg, rec), rec
}

func drain(conn *hub.LocalConn) []any {
	var out []any
	for {
		payload, ok := conn.Outbox().TryReceive()
		if !ok {
			return out
		}
		out = append(out, payload)
	}
}

func TestChannels_JoinIdempotent(t *testing.T) {
	ch := hub.NewChannels()

	for _, id := range []string{"a", "b", "a", "c", "b", "a"} {
		ch.Join("general", id)
	}

	members, ok := ch.Members("general")
	if !ok {
		t.Fatal("Members(general) ok = false, want true")
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(members, want) {
		t.Errorf("Members = %v, want %v", members, want)
	}
}

func TestChannels_JoinReturnsCopy(t *testing.T) {
	ch := hub.NewChannels()
	members, created := ch.Join("general", "a")
	if !created {
		t.Error("first Join created = false, want true")
	}
	members[0] = "mallory"

	got, _ := ch.Members("general")
	if got[0] != "a" {
		t.Errorf("directory mutated through returned slice: %v", got)
	}

	if _, created := ch.Join("general", "b"); created {
		t.Error("second Join created = true, want false")
	}
}

func TestChannels_RemoveMember(t *testing.T) {
	ch := hub.NewChannels()
	ch.Join("general", "a")
	ch.Join("general", "b")
	ch.Join("random", "a")
	ch.Join("ops", "b")

	left := ch.RemoveMember("a")
	if want := []string{"general", "random"}; !slices.Equal(left, want) {
		t.Errorf("RemoveMember = %v, want %v", left, want)
	}

	general, _ := ch.Members("general")
	if !slices.Equal(general, []string{"b"}) {
		t.Errorf("general = %v, want [b]", general)
	}
	// Channels outlive their members.
	if want := []string{"general", "random", "ops"}; !slices.Equal(ch.Names(), want) {
		t.Errorf("Names = %v, want %v", ch.Names(), want)
	}
	if len(ch.RemoveMember("nobody")) != 0 {
		t.Error("RemoveMember(unknown) should leave nothing")
	}
}

func TestConnections_Register(t *testing.T) {
	c := hub.NewConnections()
	first := hub.NewLocalConn(1)
	second := hub.NewLocalConn(1)

	if _, replaced := c.Register("alice", first); replaced {
		t.Error("first Register replaced = true, want false")
	}
	if _, replaced := c.Register("alice", first); replaced {
		t.Error("re-registering the same conn should not report a replacement")
	}

	previous, replaced := c.Register("alice", second)
	if !replaced || previous.ID() != first.ID() {
		t.Errorf("Register(second) = %v, %v; want first, true", previous, replaced)
	}

	conn, ok := c.Lookup("alice")
	if !ok || conn.ID() != second.ID() {
		t.Error("Lookup(alice) should return the newest handle")
	}
	if _, ok := c.IdentityOf(first); ok {
		t.Error("replaced conn should no longer map to an identity")
	}
}

func TestConnections_RenameOnSameConn(t *testing.T) {
	c := hub.NewConnections()
	conn := hub.NewLocalConn(1)

	c.Register("alice", conn)
	c.Register("alicia", conn)

	if c.IsReachable("alice") {
		t.Error("old identity should be dropped when its conn registers another")
	}
	if id, _ := c.IdentityOf(conn); id != "alicia" {
		t.Errorf("IdentityOf = %q, want alicia", id)
	}
	if want := []string{"alicia"}; !slices.Equal(c.Identities(), want) {
		t.Errorf("Identities = %v, want %v", c.Identities(), want)
	}
}

func TestConnections_RemoveConnStale(t *testing.T) {
	c := hub.NewConnections()
	old := hub.NewLocalConn(1)
	current := hub.NewLocalConn(1)

	c.Register("alice", old)
	c.Register("alice", current)

	if _, removed := c.RemoveConn(old); removed {
		t.Error("stale conn closing must not remove the identity")
	}
	if !c.IsReachable("alice") {
		t.Error("alice should still be reachable through the current conn")
	}

	identity, removed := c.RemoveConn(current)
	if !removed || identity != "alice" {
		t.Errorf("RemoveConn(current) = %q, %v; want alice, true", identity, removed)
	}
	if c.Remove("alice") {
		t.Error("Remove of an absent identity should report false")
	}
}

func TestBroker_PublishToChannel(t *testing.T) {
	b, rec := createTestBroker(t)
	ctx := context.Background()

	conns := map[string]*hub.LocalConn{}
	for _, id := range []string{"A", "B", "C"} {
		conns[id] = hub.NewLocalConn(8)
		b.Register(ctx, id, conns[id])
		b.Join(ctx, "general", id)
	}

	id, err := b.PublishToChannel(ctx, "A", "general", "hello")
	if err != nil {
		t.Fatalf("PublishToChannel: %v", err)
	}

	if got := drain(conns["A"]); len(got) != 0 {
		t.Errorf("sender received %d events, want 0", len(got))
	}
	for _, name := range []string{"B", "C"} {
		got := drain(conns[name])
		if len(got) != 1 {
			t.Fatalf("%s received %d events, want 1", name, len(got))
		}
		event, ok := got[0].(protocol.MessageEvent)
		if !ok {
			t.Fatalf("%s received %T, want protocol.MessageEvent", name, got[0])
		}
		if event.Action != protocol.EventChannelMessage || event.From != "A" || event.Message != "hello" {
			t.Errorf("%s received %+v", name, event)
		}
		if event.MessageID != id {
			t.Errorf("MessageID = %q, want %q", event.MessageID, id)
		}
	}

	if rec.count() != 1 {
		t.Errorf("recorded %d messages, want 1", rec.count())
	}
	snap := b.Metrics().Snapshot()
	if snap.ChannelMessages != 1 || snap.Deliveries != 2 {
		t.Errorf("metrics = %+v, want 1 channel message and 2 deliveries", snap)
	}
}

func TestBroker_UnknownChannel(t *testing.T) {
	b, rec := createTestBroker(t)
	ctx := context.Background()

	_, err := b.PublishToChannel(ctx, "A", "nowhere", "hello")
	if !errors.Is(err, hub.ErrUnknownChannel) {
		t.Errorf("error = %v, want ErrUnknownChannel", err)
	}

	// A channel whose members all left has no members registered.
	conn := hub.NewLocalConn(1)
	b.Register(ctx, "A", conn)
	b.Join(ctx, "empty", "A")
	b.Disconnect(ctx, "A")

	if _, err := b.PublishToChannel(ctx, "A", "empty", "hello"); !errors.Is(err, hub.ErrUnknownChannel) {
		t.Errorf("error = %v, want ErrUnknownChannel", err)
	}
	if rec.count() != 0 {
		t.Errorf("recorded %d messages, want 0", rec.count())
	}
}

func TestBroker_SendDirect(t *testing.T) {
	b, rec := createTestBroker(t)
	ctx := context.Background()
	bob := hub.NewLocalConn(4)
	b.Register(ctx, "bob", bob)

	if _, err := b.SendDirect(ctx, "alice", "bob", "psst"); err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	got := drain(bob)
	if len(got) != 1 {
		t.Fatalf("bob received %d events, want 1", len(got))
	}
	if event := got[0].(protocol.MessageEvent); event.Action != protocol.EventDirectMessage || event.From != "alice" {
		t.Errorf("bob received %+v", event)
	}

	_, err := b.SendDirect(ctx, "alice", "carol", "hello?")
	if !errors.Is(err, hub.ErrRecipientUnreachable) {
		t.Errorf("error = %v, want ErrRecipientUnreachable", err)
	}
	if errors.Is(err, hub.ErrNotDelivered) {
		t.Errorf("error = %v, should not claim the message was recorded", err)
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d messages, want 1 (unreachable sends are not recorded)", rec.count())
	}
}

func TestBroker_RecordBeforeDeliver(t *testing.T) {
	b, rec := createTestBroker(t)
	ctx := context.Background()
	b.Register(ctx, "bob", failingConn{id: "bob-conn"})

	_, err := b.SendDirect(ctx, "alice", "bob", "lost in transit")
	if !errors.Is(err, hub.ErrRecipientUnreachable) {
		t.Errorf("error = %v, want ErrRecipientUnreachable", err)
	}
	if !errors.Is(err, hub.ErrNotDelivered) {
		t.Errorf("error = %v, want ErrNotDelivered", err)
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d messages, want 1 (record survives delivery failure)", rec.count())
	}
	if b.Metrics().Snapshot().DeliveryFailures != 1 {
		t.Errorf("DeliveryFailures = %d, want 1", b.Metrics().Snapshot().DeliveryFailures)
	}
}

func TestBroker_DeliveryFailureDoesNotAbort(t *testing.T) {
	obs := &observability.Recorder{}
	rec := &memoryRecorder{}
	b := hub.NewBroker(hub.DefaultConfig(), rec, hub.WithObserver(obs))
	ctx := context.Background()

	carol := hub.NewLocalConn(4)
	b.Register(ctx, "alice", hub.NewLocalConn(4))
	b.Register(ctx, "bob", failingConn{id: "bob-conn"})
	b.Register(ctx, "carol", carol)
	for _, id := range []string{"alice", "bob", "carol"} {
		b.Join(ctx, "general", id)
	}

	if _, err := b.PublishToChannel(ctx, "alice", "general", "hi all"); err != nil {
		t.Fatalf("PublishToChannel: %v", err)
	}
	if len(drain(carol)) != 1 {
		t.Error("carol should still receive the message after bob's delivery failed")
	}
	if len(obs.OfType(hub.EventDeliveryFailed)) != 1 {
		t.Errorf("delivery failure events = %d, want 1", len(obs.OfType(hub.EventDeliveryFailed)))
	}
}

func TestBroker_RecorderFailure(t *testing.T) {
	b, rec := createTestBroker(t)
	rec.err = errors.New("disk full")
	ctx := context.Background()

	bob := hub.NewLocalConn(4)
	b.Register(ctx, "bob", bob)
	b.Join(ctx, "general", "bob")

	_, err := b.PublishToChannel(ctx, "alice", "general", "hello")
	if !errors.Is(err, rec.err) {
		t.Errorf("error = %v, want %v", err, rec.err)
	}
	if len(drain(bob)) != 0 {
		t.Error("nothing should be delivered when recording fails")
	}
}

func TestBroker_DisconnectConn(t *testing.T) {
	b, _ := createTestBroker(t)
	ctx := context.Background()
	conn := hub.NewLocalConn(1)
	b.Register(ctx, "alice", conn)
	b.Join(ctx, "general", "alice")

	identity, ok := b.DisconnectConn(ctx, conn)
	if !ok || identity != "alice" {
		t.Errorf("DisconnectConn = %q, %v; want alice, true", identity, ok)
	}
	if b.Connections().IsReachable("alice") {
		t.Error("alice should be unreachable after disconnect")
	}
	if members, _ := b.Channels().Members("general"); len(members) != 0 {
		t.Errorf("general members = %v, want none", members)
	}
	if _, ok := b.DisconnectConn(ctx, conn); ok {
		t.Error("second DisconnectConn should be a no-op")
	}
}

func TestMetrics_Collector(t *testing.T) {
	m := hub.NewMetrics("switchboard")
	reg := prometheus.NewRegistry()
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.SetConnections(3)
	m.RecordChannelMessage()
	m.RecordDelivery(2, 1)

	if got := testutil.CollectAndCount(m); got != 5 {
		t.Errorf("collected %d metrics, want 5", got)
	}
	snap := m.Snapshot()
	if snap.Connections != 3 || snap.ChannelMessages != 1 || snap.Deliveries != 2 || snap.DeliveryFailures != 1 {
		t.Errorf("Snapshot = %+v", snap)
	}
}

func TestOutbox(t *testing.T) {
	o := hub.NewOutbox[int](1)
	ctx := context.Background()

	if err := o.Send(ctx, 1); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if o.QueueLength() != 1 || o.BufferSize() != 1 {
		t.Errorf("QueueLength/BufferSize = %d/%d, want 1/1", o.QueueLength(), o.BufferSize())
	}

	full, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := o.Send(full, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send on full outbox error = %v, want DeadlineExceeded", err)
	}

	if v, err := o.Receive(ctx); err != nil || v != 1 {
		t.Errorf("Receive = %d, %v; want 1, nil", v, err)
	}

	o.Close()
	o.Close()
	if !o.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if err := o.Send(ctx, 3); !errors.Is(err, hub.ErrOutboxClosed) {
		t.Errorf("Send after Close error = %v, want ErrOutboxClosed", err)
	}
	if _, err := o.Receive(ctx); !errors.Is(err, hub.ErrOutboxClosed) {
		t.Errorf("Receive after Close error = %v, want ErrOutboxClosed", err)
	}
}
