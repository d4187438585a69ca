package agent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/switchboard/agent"
	"github.com/tailored-agentic-units/switchboard/coordinator"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/store"
	"github.com/tailored-agentic-units/switchboard/transport/ws"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func createTestServer(t *testing.T) string {
	t.Helper()
	c, err := coordinator.New(
		&coordinator.Config{},
		coordinator.WithStore(store.NewMemory()),
		coordinator.WithEmbedder(embedding.NewHash(64)),
		coordinator.WithObserver(observability.NoOpObserver{}),
		coordinator.WithLogger(discard),
	)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	srv := ws.NewServer(ws.Config{Logger: discard}, c)
	server := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		server.Close()
		c.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url, username string, channels ...string) *agent.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := agent.Dial(ctx, agent.Config{
		URL:            url,
		Username:       username,
		Channels:       channels,
		RequestTimeout: 2 * time.Second,
		Logger:         discard,
	})
	if err != nil {
		t.Fatalf("Dial %s: %v", username, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func nextEvent(t *testing.T, client *agent.Client, action string) protocol.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env, ok := <-client.Events():
			if !ok {
				t.Fatalf("events closed waiting for %s", action)
			}
			if env.Action == action {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", action)
		}
	}
}

func TestDial_RegistersAndJoins(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice", "general", "ops")

	if alice.Username() != "alice" {
		t.Errorf("Username() = %q, want alice", alice.Username())
	}

	env, err := alice.Do(context.Background(), &protocol.GetChannelsAction{})
	if err != nil {
		t.Fatalf("get_channels: %v", err)
	}
	if !slices.Equal(env.Channels, []string{"general", "ops"}) {
		t.Errorf("Channels = %v, want [general ops]", env.Channels)
	}
}

func TestClient_Send(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice", "general")
	bob := dial(t, url, "bob", "general")
	ctx := context.Background()

	ack, err := alice.Send(ctx, agent.Outgoing{Channel: "general", Message: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ack.Status != protocol.StatusMessageSent {
		t.Errorf("Status = %q, want %q", ack.Status, protocol.StatusMessageSent)
	}

	event := nextEvent(t, bob, protocol.EventChannelMessage)
	if event.From != "alice" || event.Message != "hello" || event.MessageID != ack.MessageID {
		t.Errorf("bob received %+v", event)
	}

	if _, err := bob.Send(ctx, agent.Outgoing{Recipient: "alice", Message: "hi"}); err != nil {
		t.Fatalf("Send direct: %v", err)
	}
	if dm := nextEvent(t, alice, protocol.EventDirectMessage); dm.From != "bob" || dm.Message != "hi" {
		t.Errorf("alice received %+v", dm)
	}
}

func TestClient_Errors(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice")
	ctx := context.Background()

	_, err := alice.Send(ctx, agent.Outgoing{Channel: "nowhere", Message: "hello"})
	if !errors.Is(err, agent.ErrRemote) {
		t.Errorf("Send to unknown channel error = %v, want ErrRemote", err)
	}

	_, err = alice.Send(ctx, agent.Outgoing{Message: "hello"})
	if !errors.Is(err, agent.ErrNoDestination) {
		t.Errorf("Send without destination error = %v, want ErrNoDestination", err)
	}
}

func TestClient_Close(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice")

	alice.Close()

	select {
	case <-alice.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Close")
	}
	if err := alice.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if _, err := alice.Do(context.Background(), &protocol.GetUsersAction{}); !errors.Is(err, agent.ErrClosed) {
		t.Errorf("Do after Close error = %v, want ErrClosed", err)
	}
}

type mentionDecider struct {
	name    string
	turns   chan agent.Turn
	replies chan []protocol.Reply
}

func newMentionDecider(name string) *mentionDecider {
	return &mentionDecider{
		name:    name,
		turns:   make(chan agent.Turn, 4),
		replies: make(chan []protocol.Reply, 4),
	}
}

func (d *mentionDecider) ShouldAct(_ context.Context, trigger agent.Trigger) (bool, error) {
	return trigger.Awaited || strings.Contains(trigger.Message, "@"+d.name), nil
}

func (d *mentionDecider) Act(_ context.Context, turn agent.Turn) ([]agent.Outgoing, error) {
	d.turns <- turn
	out := agent.Outgoing{Channel: turn.Trigger.Channel, Message: "on it"}
	if turn.Trigger.Direct() {
		out = agent.Outgoing{Recipient: turn.Trigger.From, Message: "on it"}
	}
	out.ThreadID = turn.Trigger.MessageID
	return []agent.Outgoing{out}, nil
}

func (d *mentionDecider) OnRepliesComplete(_ context.Context, _ string, replies []protocol.Reply) error {
	d.replies <- replies
	return nil
}

func run(t *testing.T, client *agent.Client, decider agent.Decider) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		agent.NewRunner(client, decider, agent.WithObserver(observability.NoOpObserver{})).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRunner_ActsOnMention(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice", "general")
	bob := dial(t, url, "bob", "general")

	decider := newMentionDecider("bob")
	run(t, bob, decider)

	ctx := context.Background()
	if _, err := alice.Send(ctx, agent.Outgoing{Channel: "general", Message: "lunch?"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ack, err := alice.Send(ctx, agent.Outgoing{Channel: "general", Message: "@bob status of the deploy?"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	reply := nextEvent(t, alice, protocol.EventChannelMessage)
	if reply.From != "bob" || reply.Message != "on it" {
		t.Errorf("alice received %+v", reply)
	}
	if reply.ThreadID != ack.MessageID {
		t.Errorf("reply ThreadID = %q, want %q", reply.ThreadID, ack.MessageID)
	}

	turn := <-decider.turns
	if turn.Trigger.MessageID != ack.MessageID {
		t.Errorf("Trigger.MessageID = %q, want %q", turn.Trigger.MessageID, ack.MessageID)
	}
	if len(turn.History) != 2 {
		t.Errorf("len(History) = %d, want 2", len(turn.History))
	}
	if len(decider.turns) != 0 {
		t.Error("decider acted on an unrelated message")
	}
}

func TestRunner_DirectTrigger(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	decider := newMentionDecider("bob")
	run(t, bob, decider)

	if _, err := alice.Send(context.Background(), agent.Outgoing{Recipient: "bob", Message: "@bob ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	dm := nextEvent(t, alice, protocol.EventDirectMessage)
	if dm.From != "bob" || dm.Message != "on it" {
		t.Errorf("alice received %+v", dm)
	}

	turn := <-decider.turns
	if !turn.Trigger.Direct() {
		t.Error("Trigger.Direct() = false, want true")
	}
	if len(turn.History) != 1 {
		t.Errorf("len(History) = %d, want 1", len(turn.History))
	}
}

func TestRunner_RepliesComplete(t *testing.T) {
	url := createTestServer(t)
	alice := dial(t, url, "alice", "general")
	bob := dial(t, url, "bob", "general")

	aliceDecider := newMentionDecider("alice")
	run(t, alice, aliceDecider)
	run(t, bob, newMentionDecider("bob"))

	out := agent.Outgoing{Channel: "general", Message: "who can review?"}
	out.AwaitReplies = []string{"bob"}
	ack, err := alice.Send(context.Background(), out)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case replies := <-aliceDecider.replies:
		if len(replies) != 1 || replies[0].From != "bob" || replies[0].Message != "on it" {
			t.Errorf("replies = %+v", replies)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no replies_complete for %s", ack.MessageID)
	}
}
