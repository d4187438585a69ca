package protocol_test

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/messaging"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   bool
	}{
		{"register valid", "register", true},
		{"send_message valid", "send_message", true},
		{"get_context valid", "get_context", true},
		{"send_channel is not an action", "send_channel", false},
		{"empty string", "", false},
		{"uppercase", "REGISTER", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := protocol.IsValid(tt.action); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}

func TestValidActions(t *testing.T) {
	actions := protocol.ValidActions()
	if len(actions) != 13 {
		t.Errorf("got %d actions, want 13", len(actions))
	}
	for _, name := range actions {
		if !protocol.IsValid(string(name)) {
			t.Errorf("ValidActions() contains %q which IsValid rejects", name)
		}
	}
}

func TestIsQuery(t *testing.T) {
	if protocol.IsQuery(protocol.SendMessage) {
		t.Error("IsQuery(send_message) = true, want false")
	}
	if !protocol.IsQuery(protocol.GetChannelLogs) {
		t.Error("IsQuery(get_channel_logs) = false, want true")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantName  protocol.Name
		wantID    string
		wantErr   error
		checkFunc func(t *testing.T, a protocol.Action)
	}{
		{
			name:     "register",
			frame:    `{"action":"register","username":"alice","request_id":"r1"}`,
			wantName: protocol.Register,
			wantID:   "r1",
			checkFunc: func(t *testing.T, a protocol.Action) {
				if got := a.(*protocol.RegisterAction).Username; got != "alice" {
					t.Errorf("Username = %q, want alice", got)
				}
			},
		},
		{
			name:     "send_message with threading",
			frame:    `{"action":"send_message","channel":"general","message":"hi","thread_id":"t1","await_replies":["bob"]}`,
			wantName: protocol.SendMessage,
			checkFunc: func(t *testing.T, a protocol.Action) {
				sm := a.(*protocol.SendMessageAction)
				if sm.Channel != "general" || sm.Message != "hi" {
					t.Errorf("got %+v", sm)
				}
				if sm.ThreadID != "t1" {
					t.Errorf("ThreadID = %q, want t1", sm.ThreadID)
				}
				if !slices.Equal(sm.AwaitReplies, []string{"bob"}) {
					t.Errorf("AwaitReplies = %v, want [bob]", sm.AwaitReplies)
				}
			},
		},
		{
			name:     "raise_hand keeps raw data",
			frame:    `{"action":"raise_hand","data":{"task":42}}`,
			wantName: protocol.RaiseHand,
			checkFunc: func(t *testing.T, a protocol.Action) {
				if got := string(a.(*protocol.RaiseHandAction).Data); got != `{"task":42}` {
					t.Errorf("Data = %s, want {\"task\":42}", got)
				}
			},
		},
		{
			name:     "channel logs defaults",
			frame:    `{"action":"get_channel_logs","channel":"general"}`,
			wantName: protocol.GetChannelLogs,
			checkFunc: func(t *testing.T, a protocol.Action) {
				cl := a.(*protocol.GetChannelLogsAction)
				if cl.Sort != "ASC" {
					t.Errorf("Sort = %q, want ASC", cl.Sort)
				}
				if cl.Limit != protocol.DefaultChannelLogLimit {
					t.Errorf("Limit = %d, want %d", cl.Limit, protocol.DefaultChannelLogLimit)
				}
			},
		},
		{
			name:     "channel logs with timestamp query",
			frame:    `{"action":"get_channel_logs","channel":"general","sort":"desc","query":{"timestamp":{"operator":">=","value":"2024-01-02T03:04:05Z"}}}`,
			wantName: protocol.GetChannelLogs,
			checkFunc: func(t *testing.T, a protocol.Action) {
				cl := a.(*protocol.GetChannelLogsAction)
				if cl.Sort != "DESC" {
					t.Errorf("Sort = %q, want DESC", cl.Sort)
				}
				tc := cl.Query.Timestamp
				if tc.Operator != protocol.OpAtOrAfter {
					t.Errorf("Operator = %q, want >=", tc.Operator)
				}
				want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
				if !tc.Value.Equal(want) {
					t.Errorf("Value = %v, want %v", tc.Value, want)
				}
			},
		},
		{
			name:     "similar channel messages default limit",
			frame:    `{"action":"get_similar_channel_messages","queryText":"deploy"}`,
			wantName: protocol.GetSimilarChannelMessages,
			checkFunc: func(t *testing.T, a protocol.Action) {
				if got := a.(*protocol.GetSimilarChannelMessagesAction).Limit; got != protocol.DefaultSimilarLimit {
					t.Errorf("Limit = %d, want %d", got, protocol.DefaultSimilarLimit)
				}
			},
		},
		{
			name:     "get_context defaults",
			frame:    `{"action":"get_context","channel":"general"}`,
			wantName: protocol.GetContext,
			checkFunc: func(t *testing.T, a protocol.Action) {
				gc := a.(*protocol.GetContextAction)
				if gc.HistoryLimit != 25 || gc.RelevantLimit != 25 {
					t.Errorf("limits = %d/%d, want 25/25", gc.HistoryLimit, gc.RelevantLimit)
				}
			},
		},
		{name: "invalid json", frame: `{"action":`, wantErr: protocol.ErrMalformedFrame},
		{name: "not an object", frame: `["register"]`, wantErr: protocol.ErrMalformedFrame},
		{name: "missing action", frame: `{"username":"alice","request_id":"r2"}`, wantID: "r2", wantErr: protocol.ErrMissingField},
		{name: "unknown action", frame: `{"action":"fly","request_id":"r3"}`, wantID: "r3", wantErr: protocol.ErrUnknownAction},
		{name: "missing username", frame: `{"action":"register"}`, wantErr: protocol.ErrMissingField},
		{name: "blank channel", frame: `{"action":"join_channel","channel":"  "}`, wantErr: protocol.ErrMissingField},
		{name: "wrong field type", frame: `{"action":"join_channel","channel":7}`, wantErr: protocol.ErrMalformedFrame},
		{name: "missing recipient", frame: `{"action":"send_direct","message":"hi"}`, wantErr: protocol.ErrMissingField},
		{name: "bad sort", frame: `{"action":"get_direct_logs","userA":"a","userB":"b","sort":"up"}`, wantErr: protocol.ErrInvalidField},
		{name: "negative limit", frame: `{"action":"get_similar_direct_messages","queryText":"q","user":"a","limit":-1}`, wantErr: protocol.ErrInvalidField},
		{name: "bad operator", frame: `{"action":"get_channel_logs","channel":"c","query":{"timestamp":{"operator":"~","value":"2024-01-02T03:04:05Z"}}}`, wantErr: protocol.ErrInvalidField},
		{name: "bad timestamp", frame: `{"action":"get_channel_logs","channel":"c","query":{"timestamp":{"operator":"<","value":"yesterday"}}}`, wantErr: protocol.ErrInvalidField},
		{name: "empty awaited identity", frame: `{"action":"send_message","channel":"c","message":"m","await_replies":["a",""]}`, wantErr: protocol.ErrInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := protocol.Decode([]byte(tt.frame))

			if req.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", req.ID, tt.wantID)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if req.Action != nil {
					t.Errorf("Action = %T, want nil on error", req.Action)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Action.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", req.Action.Name(), tt.wantName)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, req.Action)
			}
		})
	}
}

func TestEncode_DecodeRoundTrip(t *testing.T) {
	frame, err := protocol.Encode("r9", &protocol.SendDirectAction{
		Recipient: "bob",
		Message:   "ping",
		Threading: protocol.Threading{ParentID: "p1"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	req, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%s): %v", frame, err)
	}
	if req.ID != "r9" {
		t.Errorf("ID = %q, want r9", req.ID)
	}
	sd, ok := req.Action.(*protocol.SendDirectAction)
	if !ok {
		t.Fatalf("Action = %T, want *SendDirectAction", req.Action)
	}
	if sd.Recipient != "bob" || sd.Message != "ping" || sd.ParentID != "p1" {
		t.Errorf("got %+v", sd)
	}
}

func TestEncode_EmptyAction(t *testing.T) {
	frame, err := protocol.Encode("", &protocol.GetUsersAction{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(frame) != `{"action":"get_users"}` {
		t.Errorf("frame = %s, want {\"action\":\"get_users\"}", frame)
	}
}

func TestDeliver(t *testing.T) {
	ch := messaging.NewChannelMessage("alice", "general", "hello").Thread("t1").Build()
	event := protocol.Deliver(ch)
	if event.Action != protocol.EventChannelMessage {
		t.Errorf("Action = %q, want channel_message", event.Action)
	}
	if event.Channel != "general" || event.From != "alice" || event.Message != "hello" {
		t.Errorf("got %+v", event)
	}
	if event.MessageID != ch.ID || event.ThreadID != "t1" {
		t.Errorf("ids = %q/%q, want %q/t1", event.MessageID, event.ThreadID, ch.ID)
	}

	dm := messaging.NewDirectMessage("alice", "bob", "psst").Build()
	event = protocol.Deliver(dm)
	if event.Action != protocol.EventDirectMessage {
		t.Errorf("Action = %q, want direct_message", event.Action)
	}
	if event.Channel != "" {
		t.Errorf("Channel = %q, want empty for direct message", event.Channel)
	}
}

func TestEnvelope_Decode(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		wantReply bool
	}{
		{"status", protocol.Status("r1", protocol.StatusRegistered), true},
		{"error", protocol.Error("r1", errors.New("boom")), true},
		{"query result", protocol.Result{Action: string(protocol.GetUsers), Users: []string{"a"}}, true},
		{"your_turn", protocol.NewYourTurn("alice", json.RawMessage(`"go"`)), false},
		{"replies_complete", protocol.NewRepliesComplete("m1", "", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("Unmarshal(%s): %v", data, err)
			}
			if got := env.IsReply(); got != tt.wantReply {
				t.Errorf("IsReply() = %v, want %v (%s)", got, tt.wantReply, data)
			}
		})
	}
}

func TestRepliesComplete_EmptyPayload(t *testing.T) {
	data, err := json.Marshal(protocol.NewRepliesComplete("m1", "t1", nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"action":"replies_complete","tracking_id":"m1","thread_id":"t1","payload":[]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
