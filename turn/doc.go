// Package turn arbitrates the floor: at most one participant is the active
// speaker at a time, and everyone else who raised a hand waits in strict FIFO
// order.
//
// An identity holds at most one outstanding request. Raising a hand while
// queued or active reports StatusAlreadyQueued and changes nothing. When the
// floor is free the request is granted immediately; otherwise the caller
// learns its 1-based queue position.
//
//	arb := turn.NewArbiter(turn.DefaultConfig(), broker.Connections(), notify)
//	outcome := arb.RaiseHand(ctx, "alice", payload)
//	...
//	arb.Release(ctx, "alice") // alice finished her turn
//
// # Release
//
// The arbiter never decides on its own that a turn is over. The caller
// invokes Release (or GrantNext) when the active speaker completes a
// qualifying action. Config.HoldLimit optionally bounds how long a grant
// may be held; the default of zero holds forever.
//
// # Disconnected participants
//
// GrantNext consults a Presence before granting. Queued identities that are
// no longer reachable are discarded and the next head is tried, all under one
// lock, so no caller observes an empty floor in between.
package turn
