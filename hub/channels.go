package hub

import (
	"slices"
	"sync"
)

// Channels maps channel names to their members. Channels are created on
// first join and never deleted; members are kept in join order.
type Channels struct {
	members map[string][]string
	order   []string
	mu      sync.RWMutex
}

// NewChannels returns an empty channel registry.
func NewChannels() *Channels {
	return &Channels{members: make(map[string][]string)}
}

// Join adds identity to channel, creating the channel if needed. Joining
// twice is a no-op. It returns the member list after the join.
func (c *Channels) Join(channel, identity string) (members []string, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, exists := c.members[channel]
	if !exists {
		c.order = append(c.order, channel)
		created = true
	}
	if !slices.Contains(current, identity) {
		current = append(current, identity)
	}
	c.members[channel] = current
	return slices.Clone(current), created
}

// Members returns a copy of channel's member list. ok is false when the
// channel was never created.
func (c *Channels) Members(channel string) (members []string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current, ok := c.members[channel]
	return slices.Clone(current), ok
}

// RemoveMember drops identity from every channel and returns the channels
// it left.
func (c *Channels) RemoveMember(identity string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var left []string
	for _, name := range c.order {
		current := c.members[name]
		if i := slices.Index(current, identity); i >= 0 {
			c.members[name] = slices.Delete(current, i, i+1)
			left = append(left, name)
		}
	}
	return left
}

// Names returns every channel in creation order.
func (c *Channels) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}
