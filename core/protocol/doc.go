// Package protocol defines the switchboard wire format: one JSON object per
// frame over a persistent duplex connection.
//
// Inbound frames carry an "action" field naming one of a closed set of
// actions. Decode turns a frame into a Request holding a typed Action, so
// an unknown action or a malformed field is rejected at the boundary and
// never reaches the coordinator. Any frame may carry "request_id"; replies
// to it echo the same value.
//
// Outbound frames are either notifications pushed to a participant
// (channel_message, direct_message, your_turn, replies_complete), a status
// or error reply to an inbound action, or a query result whose "action"
// names the query that produced it.
package protocol
