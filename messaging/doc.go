// Package messaging defines the message record exchanged between participants.
//
// A Message is addressed either to a channel (broadcast to every member except
// the sender) or directly to one recipient. Messages may belong to a thread,
// which groups a request with its replies, and may name a parent message when
// they open a sub-task in a dependency tree.
//
// # Message Construction
//
// Messages are constructed using a fluent builder API:
//
//	msg := messaging.NewChannelMessage("alice", "general", "who can review #42?").
//	    AwaitReplies("bob", "carol").
//	    Build()
//
//	reply := messaging.NewChannelMessage("bob", "general", "on it").
//	    Thread(msg.ID).
//	    Build()
//
// # Message Metadata
//
//   - ID: UUIDv7 providing time-sortable unique identification
//   - Timestamp: creation time in UTC
//   - ThreadID: id of the tracked message this one replies to
//   - ParentID: id of the enclosing request for hierarchical tracking
//   - AwaitReplies: identities the sender expects to hear from
//
// Messages are persisted exactly once by the broker and never mutated after.
package messaging
