package hub

import (
	"slices"
	"sync"
)

// Connections maps participant identities to live connections. Each
// identity has at most one Conn and each Conn serves at most one identity.
type Connections struct {
	byIdentity map[string]Conn
	byConn     map[string]string
	mu         sync.RWMutex
}

// NewConnections returns an empty registry.
func NewConnections() *Connections {
	return &Connections{
		byIdentity: make(map[string]Conn),
		byConn:     make(map[string]string),
	}
}

// Register binds identity to conn, replacing any earlier handle for that
// identity. If conn was serving another identity, that binding is dropped.
// previous is the replaced handle when it belonged to a different
// connection.
func (c *Connections) Register(identity string, conn Conn) (previous Conn, replaced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byConn[conn.ID()]; ok && old != identity {
		delete(c.byIdentity, old)
	}

	if prev, ok := c.byIdentity[identity]; ok && prev.ID() != conn.ID() {
		delete(c.byConn, prev.ID())
		previous, replaced = prev, true
	}

	c.byIdentity[identity] = conn
	c.byConn[conn.ID()] = identity
	return previous, replaced
}

// Lookup returns the live connection for identity.
func (c *Connections) Lookup(identity string) (Conn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conn, ok := c.byIdentity[identity]
	return conn, ok
}

// IsReachable reports whether identity has a live connection.
func (c *Connections) IsReachable(identity string) bool {
	_, ok := c.Lookup(identity)
	return ok
}

// IdentityOf returns the identity conn is registered under.
func (c *Connections) IdentityOf(conn Conn) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	identity, ok := c.byConn[conn.ID()]
	return identity, ok
}

// Remove drops identity's handle. Removing an unknown identity is a no-op.
func (c *Connections) Remove(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.byIdentity[identity]
	if !ok {
		return false
	}
	delete(c.byIdentity, identity)
	delete(c.byConn, conn.ID())
	return true
}

// RemoveConn drops the identity conn serves, but only while conn still owns
// it; a stale connection closing after its identity re-registered elsewhere
// changes nothing.
func (c *Connections) RemoveConn(conn Conn) (identity string, removed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	identity, ok := c.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(c.byConn, conn.ID())
	if current, ok := c.byIdentity[identity]; ok && current.ID() == conn.ID() {
		delete(c.byIdentity, identity)
		return identity, true
	}
	return "", false
}

// Identities returns every reachable identity, sorted.
func (c *Connections) Identities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.byIdentity))
	for identity := range c.byIdentity {
		out = append(out, identity)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of reachable identities.
func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byIdentity)
}
