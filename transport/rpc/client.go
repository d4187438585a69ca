package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

// Client calls the query service on a remote coordinator.
type Client struct {
	query *connect.Client[structpb.Struct, structpb.Struct]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		query: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+QueryProcedure, opts...),
	}
}

// Query runs action remotely and decodes the result.
func (c *Client) Query(ctx context.Context, action protocol.Action) (protocol.Envelope, error) {
	frame, err := protocol.Encode("", action)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("encode %s: %w", action.Name(), err)
	}

	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(frame, msg); err != nil {
		return protocol.Envelope{}, fmt.Errorf("encode %s: %w", action.Name(), err)
	}

	resp, err := c.query.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return protocol.Envelope{}, err
	}

	data, err := protojson.Marshal(resp.Msg)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("decode %s result: %w", action.Name(), err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("decode %s result: %w", action.Name(), err)
	}
	return env, nil
}
