package tracker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/switchboard/observability"
)

// Status is the result of resolving one awaited identity.
type Status int

const (
	Unknown Status = iota
	Pending
	Completed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Reply is one answer collected for a tracking id.
type Reply[T any] struct {
	From  string
	Value T
}

// CompletionFunc runs once when the last awaited identity resolves.
type CompletionFunc[T any] func(ctx context.Context, trackingID string, replies []Reply[T]) error

type replySet[T any] struct {
	awaited    []string
	replies    []Reply[T]
	onComplete CompletionFunc[T]
	done       chan struct{}
}

// ReplyTracker maps tracking ids to the identities still expected to answer.
// Entries never expire; Wait lets a caller bound its own patience.
type ReplyTracker[T any] struct {
	mu      sync.Mutex
	entries map[string]*replySet[T]
	settings
}

func NewReplyTracker[T any](opts ...Option) *ReplyTracker[T] {
	return &ReplyTracker[T]{
		entries:  make(map[string]*replySet[T]),
		settings: newSettings(opts),
	}
}

// Start registers trackingID awaiting each identity in awaited once.
// onComplete may be nil. An empty set completes on the first Resolve.
func (t *ReplyTracker[T]) Start(trackingID string, awaited []string, onComplete CompletionFunc[T]) error {
	set := make([]string, 0, len(awaited))
	for _, id := range awaited {
		if id != "" && !slices.Contains(set, id) {
			set = append(set, id)
		}
	}

	t.mu.Lock()
	if _, exists := t.entries[trackingID]; exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTrackingID, trackingID)
	}
	t.entries[trackingID] = &replySet[T]{
		awaited:    set,
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
	t.mu.Unlock()

	observability.Emit(context.Background(), t.observer, EventStart, observability.LevelInfo, "tracker.ReplyTracker.Start", map[string]any{
		"tracking_id": trackingID,
		"awaited":     set,
	})
	return nil
}

// Resolve marks identity as having answered trackingID.
func (t *ReplyTracker[T]) Resolve(ctx context.Context, trackingID, identity string) Status {
	var zero T
	return t.ResolveWith(ctx, trackingID, identity, zero)
}

// ResolveWith is Resolve that also keeps reply for the completion callback.
// Replies from identities not awaited are ignored.
func (t *ReplyTracker[T]) ResolveWith(ctx context.Context, trackingID, identity string, reply T) Status {
	t.mu.Lock()
	entry, ok := t.entries[trackingID]
	if !ok {
		t.mu.Unlock()
		return Unknown
	}

	if i := slices.Index(entry.awaited, identity); i >= 0 {
		entry.awaited = slices.Delete(entry.awaited, i, i+1)
		entry.replies = append(entry.replies, Reply[T]{From: identity, Value: reply})
	}

	if len(entry.awaited) > 0 {
		remaining := len(entry.awaited)
		t.mu.Unlock()

		observability.Emit(ctx, t.observer, EventResolve, observability.LevelVerbose, "tracker.ReplyTracker.Resolve", map[string]any{
			"tracking_id": trackingID,
			"identity":    identity,
			"remaining":   remaining,
		})
		return Pending
	}

	delete(t.entries, trackingID)
	t.mu.Unlock()
	close(entry.done)

	observability.Emit(ctx, t.observer, EventComplete, observability.LevelInfo, "tracker.ReplyTracker.Resolve", map[string]any{
		"tracking_id": trackingID,
		"replies":     len(entry.replies),
	})
	if entry.onComplete != nil {
		t.invoke(ctx, "tracker.ReplyTracker.Resolve", trackingID, func() error {
			return entry.onComplete(ctx, trackingID, entry.replies)
		})
	}
	return Completed
}

// Cancel forgets trackingID without running its callback. Waiters are
// released as if it had completed.
func (t *ReplyTracker[T]) Cancel(trackingID string) bool {
	t.mu.Lock()
	entry, ok := t.entries[trackingID]
	delete(t.entries, trackingID)
	t.mu.Unlock()

	if ok {
		close(entry.done)
	}
	return ok
}

func (t *ReplyTracker[T]) Exists(trackingID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[trackingID]
	return ok
}

// Pending returns the identities trackingID still waits on.
func (t *ReplyTracker[T]) Pending(trackingID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[trackingID]
	if !ok {
		return nil
	}
	return slices.Clone(entry.awaited)
}

// Wait blocks until trackingID completes or ctx is done. A tracking id that
// is not registered, including one that already completed, returns
// ErrUnknownTrackingID.
func (t *ReplyTracker[T]) Wait(ctx context.Context, trackingID string) error {
	t.mu.Lock()
	entry, ok := t.entries[trackingID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrackingID, trackingID)
	}

	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of open reply sets.
func (t *ReplyTracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
