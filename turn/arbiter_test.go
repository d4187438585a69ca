package turn_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/turn"
)

type presence struct {
	mu      sync.Mutex
	offline map[string]bool
}

func (p *presence) IsReachable(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.offline[identity]
}

func (p *presence) disconnect(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offline == nil {
		p.offline = make(map[string]bool)
	}
	p.offline[identity] = true
}

type grants struct {
	mu   sync.Mutex
	got  []turn.Request
	fail map[string]bool
}

func (g *grants) notify(_ context.Context, req turn.Request) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail[req.Identity] {
		return errors.New("connection reset")
	}
	g.got = append(g.got, req)
	return nil
}

func (g *grants) identities() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.got))
	for i, r := range g.got {
		out[i] = r.Identity
	}
	return out
}

func createTestArbiter(t *testing.T, opts ...turn.Option) (*turn.Arbiter, *presence, *grants) {
	t.Helper()
	p := &presence{}
	g := &grants{fail: map[string]bool{}}
	return turn.NewArbiter(turn.DefaultConfig(), p, g.notify, opts...), p, g
}

func TestArbiter_RaiseHand(t *testing.T) {
	arb, _, g := createTestArbiter(t)
	ctx := context.Background()

	tests := []struct {
		identity     string
		wantStatus   turn.Status
		wantPosition int
	}{
		{"alice", turn.StatusGranted, 0},
		{"bob", turn.StatusQueued, 1},
		{"carol", turn.StatusQueued, 2},
		{"alice", turn.StatusAlreadyQueued, 0},
		{"bob", turn.StatusAlreadyQueued, 0},
	}

	for _, tt := range tests {
		got := arb.RaiseHand(ctx, tt.identity, nil)
		if got.Status != tt.wantStatus {
			t.Errorf("RaiseHand(%s) status = %v, want %v", tt.identity, got.Status, tt.wantStatus)
		}
		if got.Position != tt.wantPosition {
			t.Errorf("RaiseHand(%s) position = %d, want %d", tt.identity, got.Position, tt.wantPosition)
		}
	}

	if arb.Len() != 2 {
		t.Errorf("Len() = %d, want 2", arb.Len())
	}
	if want := []string{"alice"}; !slices.Equal(g.identities(), want) {
		t.Errorf("grants = %v, want %v", g.identities(), want)
	}
}

func TestArbiter_FIFO(t *testing.T) {
	arb, _, g := createTestArbiter(t)
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		arb.RaiseHand(ctx, id, nil)
	}

	for _, want := range []string{"B", "C"} {
		active, _ := arb.Active()
		if !arb.Release(ctx, active) {
			t.Fatalf("Release(%s) = false, want true", active)
		}
		if got, _ := arb.Active(); got != want {
			t.Errorf("Active() = %q, want %q", got, want)
		}
	}

	arb.Release(ctx, "C")
	if _, ok := arb.Active(); ok {
		t.Error("floor should be free after the queue drains")
	}
	if want := []string{"A", "B", "C"}; !slices.Equal(g.identities(), want) {
		t.Errorf("grant order = %v, want %v", g.identities(), want)
	}
}

func TestArbiter_GrantCarriesPayload(t *testing.T) {
	arb, _, g := createTestArbiter(t)
	payload := json.RawMessage(`{"topic":"review"}`)

	arb.RaiseHand(context.Background(), "alice", payload)

	if len(g.got) != 1 || string(g.got[0].Payload) != string(payload) {
		t.Errorf("grant payload = %v, want %s", g.got, payload)
	}
}

func TestArbiter_ReleaseByNonSpeaker(t *testing.T) {
	arb, _, _ := createTestArbiter(t)
	ctx := context.Background()
	arb.RaiseHand(ctx, "alice", nil)
	arb.RaiseHand(ctx, "bob", nil)

	if arb.Release(ctx, "bob") {
		t.Error("Release by a queued identity should be a no-op")
	}
	if got, _ := arb.Active(); got != "alice" {
		t.Errorf("Active() = %q, want alice", got)
	}
}

func TestArbiter_SkipsDisconnected(t *testing.T) {
	rec := &observability.Recorder{}
	arb, p, g := createTestArbiter(t, turn.WithObserver(rec))
	ctx := context.Background()

	for _, id := range []string{"A", "B", "C"} {
		arb.RaiseHand(ctx, id, nil)
	}
	p.disconnect("B")

	got, ok := arb.GrantNext(ctx)
	if !ok || got != "C" {
		t.Errorf("GrantNext() = %q, %v; want C, true", got, ok)
	}
	if want := []string{"A", "C"}; !slices.Equal(g.identities(), want) {
		t.Errorf("grants = %v, want %v", g.identities(), want)
	}
	if len(rec.OfType(turn.EventSkip)) != 1 {
		t.Errorf("skip events = %d, want 1", len(rec.OfType(turn.EventSkip)))
	}
	// Nothing between A and C ever left the floor empty.
	if len(rec.OfType(turn.EventIdle)) != 0 {
		t.Error("floor should never have been idle during the skip")
	}
}

func TestArbiter_NotifyFailureMovesOn(t *testing.T) {
	arb, _, g := createTestArbiter(t)
	ctx := context.Background()
	g.fail["B"] = true

	for _, id := range []string{"A", "B", "C"} {
		arb.RaiseHand(ctx, id, nil)
	}
	arb.Release(ctx, "A")

	if got, _ := arb.Active(); got != "C" {
		t.Errorf("Active() = %q, want C", got)
	}
}

func TestArbiter_RaiseHandNotifyFailure(t *testing.T) {
	arb, _, g := createTestArbiter(t)
	ctx := context.Background()
	g.fail["A"] = true

	if out := arb.RaiseHand(ctx, "A", nil); out.Status != turn.StatusDropped {
		t.Errorf("RaiseHand(A) status = %v, want dropped", out.Status)
	}
	if active, ok := arb.Active(); ok {
		t.Errorf("Active() = %q, want free floor", active)
	}

	// The free floor is granted normally afterwards.
	if out := arb.RaiseHand(ctx, "B", nil); out.Status != turn.StatusGranted {
		t.Errorf("RaiseHand(B) status = %v, want granted", out.Status)
	}
	if got, _ := arb.Active(); got != "B" {
		t.Errorf("Active() = %q, want B", got)
	}
}

func TestArbiter_Drop(t *testing.T) {
	arb, _, g := createTestArbiter(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		arb.RaiseHand(ctx, id, nil)
	}

	arb.Drop(ctx, "B")
	if want := []string{"C"}; !slices.Equal(arb.Queue(), want) {
		t.Errorf("Queue() = %v, want %v", arb.Queue(), want)
	}

	arb.Drop(ctx, "A")
	if got, _ := arb.Active(); got != "C" {
		t.Errorf("Active() = %q, want C", got)
	}

	arb.Drop(ctx, "nobody")
	if want := []string{"A", "C"}; !slices.Equal(g.identities(), want) {
		t.Errorf("grants = %v, want %v", g.identities(), want)
	}

	// A dropped identity may raise again.
	if out := arb.RaiseHand(ctx, "A", nil); out.Status != turn.StatusQueued {
		t.Errorf("RaiseHand after Drop status = %v, want queued", out.Status)
	}
}

func TestArbiter_HoldLimit(t *testing.T) {
	cfg := turn.DefaultConfig()
	cfg.HoldLimit = 20 * time.Millisecond
	g := &grants{}
	arb := turn.NewArbiter(cfg, &presence{}, g.notify)
	ctx := context.Background()

	arb.RaiseHand(ctx, "A", nil)
	arb.RaiseHand(ctx, "B", nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Contains(g.identities(), "B") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("hold limit should have passed the floor to B")
}

func TestArbiter_NoHoldLimitByDefault(t *testing.T) {
	arb, _, _ := createTestArbiter(t)
	ctx := context.Background()
	arb.RaiseHand(ctx, "A", nil)
	arb.RaiseHand(ctx, "B", nil)

	time.Sleep(30 * time.Millisecond)
	if got, _ := arb.Active(); got != "A" {
		t.Errorf("Active() = %q, want A", got)
	}
}

func TestQueueCollector(t *testing.T) {
	arb, _, _ := createTestArbiter(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		arb.RaiseHand(ctx, id, nil)
	}

	if got := testutil.ToFloat64(turn.NewQueueCollector("switchboard", arb)); got != 2 {
		t.Errorf("queue_depth = %v, want 2", got)
	}
}
