package protocol

import (
	"encoding/json"
	"time"

	"github.com/tailored-agentic-units/switchboard/messaging"
)

// StatusReply acknowledges a successful register, join_channel, raise_hand,
// send_message or send_direct. Fields not relevant to the status are omitted.
type StatusReply struct {
	RequestID string   `json:"request_id,omitempty"`
	Status    string   `json:"status"`
	Username  string   `json:"username,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Members   []string `json:"members,omitempty"`
	Position  int      `json:"position,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
}

type ErrorReply struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

func Status(requestID, status string) StatusReply {
	return StatusReply{RequestID: requestID, Status: status}
}

func Error(requestID string, err error) ErrorReply {
	return ErrorReply{RequestID: requestID, Error: err.Error()}
}

// MessageEvent is pushed to recipients of a channel or direct message.
// Channel is empty for direct messages.
type MessageEvent struct {
	Action       string    `json:"action"`
	MessageID    string    `json:"message_id"`
	Channel      string    `json:"channel,omitempty"`
	From         string    `json:"from"`
	Message      string    `json:"message"`
	ThreadID     string    `json:"thread_id,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	AwaitReplies []string  `json:"await_replies,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Deliver builds the notification a recipient of msg receives.
func Deliver(msg *messaging.Message) MessageEvent {
	event := MessageEvent{
		Action:       EventDirectMessage,
		MessageID:    msg.ID,
		From:         msg.From,
		Message:      msg.Body,
		ThreadID:     msg.ThreadID,
		ParentID:     msg.ParentID,
		AwaitReplies: msg.AwaitReplies,
		Timestamp:    msg.Timestamp,
	}
	if msg.Target.IsChannel() {
		event.Action = EventChannelMessage
		event.Channel = msg.Target.Name
	}
	return event
}

// YourTurn grants the floor. Data is the payload supplied with raise_hand.
type YourTurn struct {
	Action   string          `json:"action"`
	Username string          `json:"username"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func NewYourTurn(username string, data json.RawMessage) YourTurn {
	return YourTurn{Action: EventYourTurn, Username: username, Data: data}
}

// Reply is one answer gathered for a tracked message.
type Reply struct {
	From      string `json:"from"`
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

// RepliesComplete tells a requester that every awaited identity answered
// TrackingID, and that any sub-tasks opened beneath it have completed.
type RepliesComplete struct {
	Action     string  `json:"action"`
	TrackingID string  `json:"tracking_id"`
	ThreadID   string  `json:"thread_id,omitempty"`
	Payload    []Reply `json:"payload"`
}

func NewRepliesComplete(trackingID, threadID string, payload []Reply) RepliesComplete {
	if payload == nil {
		payload = []Reply{}
	}
	return RepliesComplete{
		Action:     EventRepliesComplete,
		TrackingID: trackingID,
		ThreadID:   threadID,
		Payload:    payload,
	}
}

// Scored pairs a message with its similarity to a query.
type Scored struct {
	Message    *messaging.Message `json:"message"`
	Similarity float64            `json:"similarity"`
}

// Result answers a query action. Action names the query; only the fields
// that query produces are set.
type Result struct {
	Action    string               `json:"action"`
	RequestID string               `json:"request_id,omitempty"`
	Channel   string               `json:"channel,omitempty"`
	Channels  []string             `json:"channels,omitempty"`
	Users     []string             `json:"users,omitempty"`
	Contacts  []string             `json:"contacts,omitempty"`
	Logs      []*messaging.Message `json:"logs,omitempty"`
	Results   []Scored             `json:"results,omitempty"`
	History   []*messaging.Message `json:"history,omitempty"`
	Relevant  []Scored             `json:"relevant,omitempty"`
}

// Envelope is the union of every outbound frame. Clients decode into it
// and switch on Action, Status or Error.
type Envelope struct {
	Action    string `json:"action,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`

	Username  string   `json:"username,omitempty"`
	Members   []string `json:"members,omitempty"`
	Position  int      `json:"position,omitempty"`
	MessageID string   `json:"message_id,omitempty"`

	Channel      string    `json:"channel,omitempty"`
	From         string    `json:"from,omitempty"`
	Message      string    `json:"message,omitempty"`
	ThreadID     string    `json:"thread_id,omitempty"`
	ParentID     string    `json:"parent_id,omitempty"`
	AwaitReplies []string  `json:"await_replies,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`

	Data       json.RawMessage `json:"data,omitempty"`
	TrackingID string          `json:"tracking_id,omitempty"`
	Payload    []Reply         `json:"payload,omitempty"`

	Channels []string             `json:"channels,omitempty"`
	Users    []string             `json:"users,omitempty"`
	Contacts []string             `json:"contacts,omitempty"`
	Logs     []*messaging.Message `json:"logs,omitempty"`
	Results  []Scored             `json:"results,omitempty"`
	History  []*messaging.Message `json:"history,omitempty"`
	Relevant []Scored             `json:"relevant,omitempty"`
}

// IsReply reports whether the envelope answers an inbound action rather than
// being a pushed notification.
func (e *Envelope) IsReply() bool {
	if e.Status != "" || e.Error != "" {
		return true
	}
	switch e.Action {
	case EventChannelMessage, EventDirectMessage, EventYourTurn, EventRepliesComplete, "":
		return false
	}
	return true
}
