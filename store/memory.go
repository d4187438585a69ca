package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/switchboard/messaging"
)

// Memory keeps everything in process. It backs tests and deployments that
// do not need history across restarts.
type Memory struct {
	mu       sync.RWMutex
	closed   bool
	log      []Candidate
	byID     map[string]int
	users    map[string]struct{}
	channels map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[string]int),
		users:    make(map[string]struct{}),
		channels: make(map[string]struct{}),
	}
}

func (m *Memory) Append(ctx context.Context, msg *messaging.Message, vec []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, exists := m.byID[msg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.ID)
	}
	m.byID[msg.ID] = len(m.log)
	m.log = append(m.log, Candidate{Message: msg.Clone(), Vector: slices.Clone(vec)})
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*messaging.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return m.log[i].Message.Clone(), nil
}

func (m *Memory) Query(ctx context.Context, filter Filter) ([]*messaging.Message, error) {
	m.mu.RLock()
	var out []*messaging.Message
	for _, c := range m.log {
		if filter.Matches(c.Message) {
			out = append(out, c.Message.Clone())
		}
	}
	m.mu.RUnlock()

	SortChronological(out)
	return filter.Arrange(out), nil
}

func (m *Memory) Contacts(ctx context.Context, identity string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range m.log {
		msg := c.Message
		if !msg.Target.IsDirect() {
			continue
		}
		if msg.From == identity || msg.Target.Name == identity {
			seen[msg.Peer(identity)] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (m *Memory) Nearest(ctx context.Context, vec []float64, search Search) ([]Match, error) {
	m.mu.RLock()
	candidates := slices.Clone(m.log)
	m.mu.RUnlock()

	matches := Rank(vec, candidates, search)
	for i := range matches {
		matches[i].Message = matches[i].Message.Clone()
	}
	return matches, nil
}

func (m *Memory) AddUser(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[name] = struct{}{}
	return nil
}

func (m *Memory) Users(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.users), nil
}

func (m *Memory) AddChannel(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = struct{}{}
	return nil
}

func (m *Memory) Channels(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.channels), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
