// Package hub routes messages between connected participants.
//
// It owns three pieces of state, each behind its own lock:
//
//   - Connections: participant identity to live Conn, the source of truth for
//     whether someone is reachable now
//   - Channels: channel name to ordered member list, with idempotent join
//   - Broker: persists each message through a Recorder, then delivers it
//
// # Routing
//
// A channel message goes to every member except the sender, in join order.
// A direct message goes to one recipient and fails with
// ErrRecipientUnreachable when that recipient has no Conn; nothing is queued
// for later. In both cases the message is recorded before any delivery is
// attempted, so a failed delivery never loses the record.
//
//	broker := hub.NewBroker(hub.DefaultConfig(), recorder)
//	broker.Register(ctx, "alice", conn)
//	broker.Join(ctx, "general", "alice")
//	id, err := broker.PublishToChannel(ctx, "alice", "general", "hello")
//
// # Delivery
//
// Conn abstracts the transport. Deliver must not block indefinitely; the
// broker bounds each call with Config.DeliveryTimeout and logs failures
// without aborting delivery to the remaining members.
package hub
