// Package ws carries the coordination protocol over WebSocket: one JSON
// object per text frame in each direction.
//
// Every accepted connection gets a Conn with its own outbound queue and
// writer goroutine, so replies and pushed notifications reach the client in
// the order they were produced. Inbound frames are read on the serving
// goroutine, paced by a per-connection rate limiter, and handed to a
// Handler, whose single reply is queued behind anything already pending.
//
//	srv := ws.NewServer(cfg.WebSocket, coord)
//	mux.Handle(cfg.WebSocket.Path, srv)
package ws
