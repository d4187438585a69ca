package tracker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/switchboard/observability"
)

// BranchFunc runs once when its branch completes.
type BranchFunc[T any] func(ctx context.Context, name string, payload T) error

type branch[T any] struct {
	parent     string
	children   []string
	onComplete BranchFunc[T]
	completed  bool
}

// Tree records named branches of work and their parent/child links.
type Tree[T any] struct {
	mu       sync.Mutex
	branches map[string]*branch[T]
	settings
}

func NewTree[T any](opts ...Option) *Tree[T] {
	return &Tree[T]{
		branches: make(map[string]*branch[T]),
		settings: newSettings(opts),
	}
}

// Branch registers name. When parent is registered, name becomes one of its
// children; an empty or unknown parent leaves name as a root.
func (t *Tree[T]) Branch(name, parent string, onComplete BranchFunc[T]) error {
	t.mu.Lock()
	if _, exists := t.branches[name]; exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateBranch, name)
	}

	b := &branch[T]{onComplete: onComplete}
	if p, ok := t.branches[parent]; ok && parent != "" {
		b.parent = parent
		p.children = append(p.children, name)
	}
	t.branches[name] = b
	t.mu.Unlock()

	observability.Emit(context.Background(), t.observer, EventBranch, observability.LevelVerbose, "tracker.Tree.Branch", map[string]any{
		"name":   name,
		"parent": b.parent,
	})
	return nil
}

// IsEligible reports whether every child of name has completed.
func (t *Tree[T]) IsEligible(name string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.branches[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	return t.eligibleLocked(b), nil
}

// Complete marks name done and runs its callback with payload. It returns
// false without effect while a child is still open, and false for a branch
// already completed, so it reports true exactly once per branch.
func (t *Tree[T]) Complete(ctx context.Context, name string, payload T) (bool, error) {
	t.mu.Lock()
	b, ok := t.branches[name]
	if !ok {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownBranch, name)
	}
	if b.completed || !t.eligibleLocked(b) {
		t.mu.Unlock()
		return false, nil
	}
	b.completed = true
	onComplete := b.onComplete
	t.mu.Unlock()

	observability.Emit(ctx, t.observer, EventBranchComplete, observability.LevelInfo, "tracker.Tree.Complete", map[string]any{
		"name":   name,
		"parent": b.parent,
	})
	if onComplete != nil {
		t.invoke(ctx, "tracker.Tree.Complete", name, func() error {
			return onComplete(ctx, name, payload)
		})
	}
	return true, nil
}

// Parent returns the branch name was registered under.
func (t *Tree[T]) Parent(name string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.branches[name]
	if !ok || b.parent == "" {
		return "", false
	}
	return b.parent, true
}

func (t *Tree[T]) Children(name string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.branches[name]
	if !ok {
		return nil
	}
	return slices.Clone(b.children)
}

func (t *Tree[T]) IsComplete(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.branches[name]
	return ok && b.completed
}

func (t *Tree[T]) Exists(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.branches[name]
	return ok
}

// Prune removes a completed root and all of its descendants. It reports
// false and changes nothing when name is unknown, incomplete, or has a
// parent.
func (t *Tree[T]) Prune(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.branches[name]
	if !ok || !b.completed || b.parent != "" {
		return false
	}

	stack := []string{name}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node, ok := t.branches[current]; ok {
			stack = append(stack, node.children...)
			delete(t.branches, current)
		}
	}
	return true
}

// Remove drops a branch that has no children and unlinks it from its
// parent.
func (t *Tree[T]) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.branches[name]
	if !ok || len(b.children) > 0 {
		return false
	}
	if p, ok := t.branches[b.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c string) bool { return c == name })
	}
	delete(t.branches, name)
	return true
}

// Len returns the number of registered branches.
func (t *Tree[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.branches)
}

func (t *Tree[T]) eligibleLocked(b *branch[T]) bool {
	for _, child := range b.children {
		c, ok := t.branches[child]
		if !ok || !c.completed {
			return false
		}
	}
	return true
}
