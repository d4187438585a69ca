// Package rpc exposes the read-only query actions over Connect.
//
// The service has a single unary procedure, QueryProcedure, whose request
// and response are google.protobuf.Struct values holding the same JSON
// objects the WebSocket transport carries. Any client that speaks the
// Connect, gRPC or gRPC-Web protocols can call it without generated stubs:
//
//	path, handler := rpc.NewHandler(coord)
//	mux.Handle(path, handler)
//
//	client := rpc.NewClient(http.DefaultClient, "http://localhost:8080")
//	env, err := client.Query(ctx, &protocol.GetUsersAction{})
//
// Actions that change state are rejected with CodeInvalidArgument; they need
// a registered connection and belong on the WebSocket transport.
package rpc
