package messaging

import "time"

type MessageBuilder struct {
	message *Message
}

func NewMessage(from string, target Target, body string) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			ID:        generateID(),
			From:      from,
			Target:    target,
			Body:      body,
			Timestamp: time.Now().UTC(),
		},
	}
}

func NewChannelMessage(from, channel, body string) *MessageBuilder {
	return NewMessage(from, Channel(channel), body)
}

func NewDirectMessage(from, recipient, body string) *MessageBuilder {
	return NewMessage(from, Direct(recipient), body)
}

// Thread marks the message as a reply to the tracked message threadID.
func (mb *MessageBuilder) Thread(threadID string) *MessageBuilder {
	mb.message.ThreadID = threadID
	return mb
}

func (mb *MessageBuilder) Parent(parentID string) *MessageBuilder {
	mb.message.ParentID = parentID
	return mb
}

// AwaitReplies records the identities expected to answer this message.
// Duplicates and empty names are dropped, first occurrence wins.
func (mb *MessageBuilder) AwaitReplies(identities ...string) *MessageBuilder {
	seen := make(map[string]struct{}, len(identities))
	awaited := make([]string, 0, len(identities))
	for _, id := range identities {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		awaited = append(awaited, id)
	}
	if len(awaited) == 0 {
		awaited = nil
	}
	mb.message.AwaitReplies = awaited
	return mb
}

func (mb *MessageBuilder) Timestamp(ts time.Time) *MessageBuilder {
	mb.message.Timestamp = ts.UTC()
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}
