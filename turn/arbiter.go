package turn

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/switchboard/observability"
)

// Status is the outcome of raising a hand. The values are the wire status
// strings.
type Status string

const (
	StatusGranted       Status = "granted"
	StatusQueued        Status = "queued"
	StatusAlreadyQueued Status = "already_in_queue_or_active"

	// StatusDropped means the floor was free but the grant could not be
	// delivered, so the hand was discarded and the floor moved on.
	StatusDropped Status = "dropped"
)

type Outcome struct {
	Status Status
	// 1-based queue position, set when Status is StatusQueued.
	Position int
}

// Request is one raised hand. Payload is handed back unchanged in the grant.
type Request struct {
	Identity string
	Payload  json.RawMessage
	RaisedAt time.Time
}

// Presence answers whether an identity currently has a live connection.
type Presence interface {
	IsReachable(identity string) bool
}

// Notifier tells a participant it holds the floor. A returned error means the
// grant could not be delivered and the floor moves on.
type Notifier func(ctx context.Context, grant Request) error

type Option func(*Arbiter)

func WithObserver(obs observability.Observer) Option {
	return func(a *Arbiter) { a.observer = observability.OrNoOp(obs) }
}

type Arbiter struct {
	presence  Presence
	notify    Notifier
	holdLimit time.Duration
	logger    *slog.Logger
	observer  observability.Observer

	mu     sync.Mutex
	active *Request
	queue  []Request
	epoch  uint64
	timer  *time.Timer
}

func NewArbiter(cfg Config, presence Presence, notify Notifier, opts ...Option) *Arbiter {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)

	a := &Arbiter{
		presence:  presence,
		notify:    notify,
		holdLimit: defaults.HoldLimit,
		logger:    defaults.Logger,
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RaiseHand queues identity for the floor, granting it at once when the
// floor is free.
func (a *Arbiter) RaiseHand(ctx context.Context, identity string, payload json.RawMessage) Outcome {
	a.mu.Lock()

	if a.holdsLocked(identity) {
		a.mu.Unlock()
		return Outcome{Status: StatusAlreadyQueued}
	}

	req := Request{Identity: identity, Payload: payload, RaisedAt: time.Now().UTC()}

	if a.active == nil {
		epoch := a.grantLocked(req)
		a.mu.Unlock()

		observability.Emit(ctx, a.observer, EventRaise, observability.LevelInfo, "turn.Arbiter.RaiseHand", map[string]any{
			"identity": identity,
			"position": 0,
		})
		if !a.deliver(ctx, req, epoch) {
			return Outcome{Status: StatusDropped}
		}
		return Outcome{Status: StatusGranted}
	}

	a.queue = append(a.queue, req)
	position := len(a.queue)
	a.mu.Unlock()

	observability.Emit(ctx, a.observer, EventRaise, observability.LevelInfo, "turn.Arbiter.RaiseHand", map[string]any{
		"identity": identity,
		"position": position,
	})
	return Outcome{Status: StatusQueued, Position: position}
}

// GrantNext hands the floor to the first reachable identity in the queue,
// discarding unreachable ones. With nothing left to grant the floor becomes
// free. It reports the speaker once the hand-off settles.
func (a *Arbiter) GrantNext(ctx context.Context) (string, bool) {
	a.mu.Lock()
	req, epoch, ok := a.advanceLocked(ctx)
	a.mu.Unlock()

	if ok {
		a.deliver(ctx, req, epoch)
	}
	return a.Active()
}

// Release ends identity's turn and grants the next one. It is a no-op
// unless identity is the active speaker.
func (a *Arbiter) Release(ctx context.Context, identity string) bool {
	released := a.releaseIf(ctx, identity, 0, false)
	if released {
		observability.Emit(ctx, a.observer, EventRelease, observability.LevelVerbose, "turn.Arbiter.Release", map[string]any{
			"identity": identity,
		})
	}
	return released
}

// Drop forgets every claim identity has on the floor. A queued request is
// removed; an active turn is released to the next in line.
func (a *Arbiter) Drop(ctx context.Context, identity string) {
	a.mu.Lock()
	before := len(a.queue)
	a.queue = slices.DeleteFunc(a.queue, func(r Request) bool { return r.Identity == identity })
	dequeued := before != len(a.queue)
	wasActive := a.active != nil && a.active.Identity == identity
	a.mu.Unlock()

	if !dequeued && !wasActive {
		return
	}
	observability.Emit(ctx, a.observer, EventDrop, observability.LevelInfo, "turn.Arbiter.Drop", map[string]any{
		"identity": identity,
		"active":   wasActive,
	})
	if wasActive {
		a.releaseIf(ctx, identity, 0, false)
	}
}

// Active returns the current speaker.
func (a *Arbiter) Active() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == nil {
		return "", false
	}
	return a.active.Identity, true
}

// Queue returns the waiting identities in grant order.
func (a *Arbiter) Queue() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.queue))
	for i, r := range a.queue {
		out[i] = r.Identity
	}
	return out
}

func (a *Arbiter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Arbiter) holdsLocked(identity string) bool {
	if a.active != nil && a.active.Identity == identity {
		return true
	}
	return slices.ContainsFunc(a.queue, func(r Request) bool { return r.Identity == identity })
}

// advanceLocked pops queue heads until one is reachable and makes it active.
// The floor is cleared only when the queue runs dry.
func (a *Arbiter) advanceLocked(ctx context.Context) (Request, uint64, bool) {
	for len(a.queue) > 0 {
		head := a.queue[0]
		a.queue = a.queue[1:]

		if a.presence != nil && !a.presence.IsReachable(head.Identity) {
			a.logger.DebugContext(ctx, "skipping unreachable turn request", slog.String("identity", head.Identity))
			observability.Emit(ctx, a.observer, EventSkip, observability.LevelInfo, "turn.Arbiter.GrantNext", map[string]any{
				"identity": head.Identity,
			})
			continue
		}
		return head, a.grantLocked(head), true
	}

	a.clearLocked()
	observability.Emit(ctx, a.observer, EventIdle, observability.LevelVerbose, "turn.Arbiter.GrantNext", nil)
	return Request{}, 0, false
}

func (a *Arbiter) grantLocked(req Request) uint64 {
	a.stopTimerLocked()
	a.epoch++
	a.active = &req

	if a.holdLimit > 0 {
		epoch, identity := a.epoch, req.Identity
		a.timer = time.AfterFunc(a.holdLimit, func() {
			a.expire(identity, epoch)
		})
	}
	return a.epoch
}

func (a *Arbiter) clearLocked() {
	a.stopTimerLocked()
	a.epoch++
	a.active = nil
}

func (a *Arbiter) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// deliver notifies the grantee. When notification fails and the grant is
// still current, the floor moves on as if the grantee had disconnected.
// It reports whether req itself was notified.
func (a *Arbiter) deliver(ctx context.Context, req Request, epoch uint64) bool {
	for first := true; ; first = false {
		observability.Emit(ctx, a.observer, EventGrant, observability.LevelInfo, "turn.Arbiter.Grant", map[string]any{
			"identity": req.Identity,
		})
		if a.notify == nil {
			return first
		}
		err := a.notify(ctx, req)
		if err == nil {
			return first
		}
		a.logger.WarnContext(
			ctx,
			"failed to deliver turn grant",
			slog.String("identity", req.Identity),
			slog.String("error", err.Error()),
		)

		a.mu.Lock()
		if a.epoch != epoch {
			a.mu.Unlock()
			return false
		}
		var ok bool
		req, epoch, ok = a.advanceLocked(ctx)
		a.mu.Unlock()
		if !ok {
			return false
		}
	}
}

func (a *Arbiter) expire(identity string, epoch uint64) {
	ctx := context.Background()
	observability.Emit(ctx, a.observer, EventExpire, observability.LevelWarning, "turn.Arbiter.expire", map[string]any{
		"identity": identity,
	})
	a.releaseIf(ctx, identity, epoch, true)
}

// releaseIf moves the floor held by identity to the next request in one
// step. With checkEpoch set, nothing happens unless that exact grant is
// still current.
func (a *Arbiter) releaseIf(ctx context.Context, identity string, epoch uint64, checkEpoch bool) bool {
	a.mu.Lock()
	if a.active == nil || a.active.Identity != identity || (checkEpoch && a.epoch != epoch) {
		a.mu.Unlock()
		return false
	}
	next, nextEpoch, ok := a.advanceLocked(ctx)
	a.mu.Unlock()

	if ok {
		a.deliver(ctx, next, nextEpoch)
	}
	return true
}
