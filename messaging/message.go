package messaging

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

type TargetKind string

const (
	TargetChannel TargetKind = "channel"
	TargetDirect  TargetKind = "direct"
)

// Target addresses a message either to a channel name or to a single
// recipient identity.
type Target struct {
	Kind TargetKind `json:"kind"`
	Name string     `json:"name"`
}

func Channel(name string) Target {
	return Target{Kind: TargetChannel, Name: name}
}

func Direct(recipient string) Target {
	return Target{Kind: TargetDirect, Name: recipient}
}

func (t Target) IsChannel() bool {
	return t.Kind == TargetChannel
}

func (t Target) IsDirect() bool {
	return t.Kind == TargetDirect
}

// Message is immutable once persisted. Callers that need a modified copy
// must Clone it first.
type Message struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	From         string    `json:"from"`
	Target       Target    `json:"target"`
	Body         string    `json:"body"`
	Timestamp    time.Time `json:"timestamp"`
	AwaitReplies []string  `json:"await_replies,omitempty"`
}

// ExpectsReplies reports whether the sender asked named participants to
// respond under this message's id.
func (msg *Message) ExpectsReplies() bool {
	return len(msg.AwaitReplies) > 0
}

// IsReply reports whether the message answers an earlier tracked message.
func (msg *Message) IsReply() bool {
	return msg.ThreadID != ""
}

// Peer returns the other side of a direct message relative to identity.
// For channel messages it returns the channel name.
func (msg *Message) Peer(identity string) string {
	if msg.Target.IsChannel() {
		return msg.Target.Name
	}
	if msg.From == identity {
		return msg.Target.Name
	}
	return msg.From
}

func (msg *Message) Clone() *Message {
	clone := *msg
	clone.AwaitReplies = slices.Clone(msg.AwaitReplies)
	return &clone
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"Message{ID: %s, From: %s, Target: %s:%s, Thread: %s}",
		msg.ID,
		msg.From,
		msg.Target.Kind,
		msg.Target.Name,
		msg.ThreadID,
	)
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
