package store

import "github.com/tailored-agentic-units/switchboard/messaging"

// Scope is the conversation a message belongs to: one channel, or the
// direct-message pairing of two identities regardless of direction.
type Scope struct {
	Kind messaging.TargetKind
	// Channel name, or the two identities of a direct pairing in sorted order.
	Name string
	Peer string
}

func ChannelScope(name string) Scope {
	return Scope{Kind: messaging.TargetChannel, Name: name}
}

func DirectScope(a, b string) Scope {
	if b < a {
		a, b = b, a
	}
	return Scope{Kind: messaging.TargetDirect, Name: a, Peer: b}
}

// ScopeOf returns the scope msg is logged under.
func ScopeOf(msg *messaging.Message) Scope {
	if msg.Target.IsChannel() {
		return ChannelScope(msg.Target.Name)
	}
	return DirectScope(msg.From, msg.Target.Name)
}

// Key is a stable string form, unique per scope.
func (s Scope) Key() string {
	if s.Kind == messaging.TargetChannel {
		return "channel:" + s.Name
	}
	return "direct:" + s.Name + "\x1f" + s.Peer
}

func (s Scope) String() string {
	if s.Kind == messaging.TargetChannel {
		return "#" + s.Name
	}
	return s.Name + "<->" + s.Peer
}

// Contains reports whether msg was logged under s.
func (s Scope) Contains(msg *messaging.Message) bool {
	return ScopeOf(msg) == s
}
