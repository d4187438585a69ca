package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is a decoded inbound frame.
type Request struct {
	ID     string
	Action Action
}

type header struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// Decode parses and validates one inbound frame. On failure the returned
// Request still carries the request_id when the frame was a JSON object, so
// the error reply can be correlated.
func Decode(frame []byte) (Request, error) {
	var h header
	if err := json.Unmarshal(frame, &h); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	req := Request{ID: h.RequestID}

	if h.Action == "" {
		return req, fmt.Errorf("%w: action", ErrMissingField)
	}
	newAction, ok := constructors[Name(h.Action)]
	if !ok {
		return req, fmt.Errorf("%w: %s", ErrUnknownAction, h.Action)
	}

	action := newAction()
	if err := json.Unmarshal(frame, action); err != nil {
		return req, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, h.Action, err)
	}
	if err := action.validate(); err != nil {
		return req, err
	}

	req.Action = action
	return req, nil
}

// Encode writes an action as a frame, adding the action name and request id.
// It is the client-side counterpart of Decode.
func Encode(requestID string, action Action) ([]byte, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	h, err := json.Marshal(header{Action: string(action.Name()), RequestID: requestID})
	if err != nil {
		return nil, err
	}

	// Splice the header fields into the action object.
	h = bytes.TrimSuffix(h, []byte("}"))
	body = bytes.TrimPrefix(body, []byte("{"))
	if len(body) > 1 {
		h = append(h, ',')
	}
	return append(h, body...), nil
}
