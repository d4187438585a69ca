// Package agent is the participant side of the coordination protocol.
//
// Client holds one WebSocket connection to a coordinator. It registers an
// identity, joins channels and correlates every request with its reply by
// request_id, while pushed notifications (channel and direct messages,
// your_turn, replies_complete) arrive on Events.
//
//	client, err := agent.Dial(ctx, agent.Config{URL: "ws://localhost:8080/ws", Username: "bob", Channels: []string{"general"}})
//	defer client.Close()
//	_, err = client.Send(ctx, agent.Outgoing{Channel: "general", Message: "on it"})
//
// Runner drives a Client with a Decider: inbound messages are offered to
// ShouldAct, a positive answer raises the participant's hand, and when the
// floor is granted Act produces the messages to send. Sending a message is
// what releases the floor, so a turn that produces nothing is held until
// the coordinator's hold limit expires.
package agent
