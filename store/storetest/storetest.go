// Package storetest checks a store.Store implementation against the
// behavior every backend must share.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/store"
)

// Factory opens an empty store. Run closes it.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func at(minute int) time.Time {
	return base.Add(time.Duration(minute) * time.Minute)
}

// Run exercises the store contract against fresh stores from open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"AppendGet", testAppendGet},
		{"DuplicateAppend", testDuplicateAppend},
		{"GetMissing", testGetMissing},
		{"Window", testWindow},
		{"QueryOrderAndLimit", testQueryOrderAndLimit},
		{"QueryTimeFilter", testQueryTimeFilter},
		{"DirectScope", testDirectScope},
		{"Contacts", testContacts},
		{"Nearest", testNearest},
		{"NearestExcludeBeforeLimit", testNearestExcludeBeforeLimit},
		{"NearestDirect", testNearestDirect},
		{"UsersAndChannels", testUsersAndChannels},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func appendAll(t *testing.T, s store.Store, msgs ...*messaging.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := s.Append(context.Background(), m, []float64{1, 0}); err != nil {
			t.Fatalf("Append(%s): %v", m.ID, err)
		}
	}
}

func channelMsg(from, channel, body string, minute int) *messaging.Message {
	return messaging.NewChannelMessage(from, channel, body).Timestamp(at(minute)).Build()
}

func directMsg(from, to, body string, minute int) *messaging.Message {
	return messaging.NewDirectMessage(from, to, body).Timestamp(at(minute)).Build()
}

func bodies(msgs []*messaging.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func testAppendGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	msg := messaging.NewChannelMessage("alice", "general", "hello").
		Thread("t1").
		Parent("p1").
		AwaitReplies("bob", "carol").
		Timestamp(at(0)).
		Build()

	if err := s.Append(ctx, msg, []float64{0.5, 0.5}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Get(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != msg.ID || got.From != "alice" || got.Body != "hello" {
		t.Errorf("Get = %v, want %v", got, msg)
	}
	if got.Target != msg.Target {
		t.Errorf("Target = %+v, want %+v", got.Target, msg.Target)
	}
	if got.ThreadID != "t1" || got.ParentID != "p1" {
		t.Errorf("thread/parent = %q/%q, want t1/p1", got.ThreadID, got.ParentID)
	}
	if !slices.Equal(got.AwaitReplies, []string{"bob", "carol"}) {
		t.Errorf("AwaitReplies = %v, want [bob carol]", got.AwaitReplies)
	}
	if !got.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, msg.Timestamp)
	}
}

func testDuplicateAppend(t *testing.T, s store.Store) {
	msg := channelMsg("alice", "general", "once", 0)
	appendAll(t, s, msg)

	err := s.Append(context.Background(), msg, nil)
	if !errors.Is(err, store.ErrDuplicateMessage) {
		t.Errorf("second Append error = %v, want ErrDuplicateMessage", err)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func testWindow(t *testing.T, s store.Store) {
	appendAll(t, s,
		channelMsg("a", "general", "m1", 1),
		channelMsg("b", "general", "m2", 2),
		channelMsg("a", "random", "other", 3),
		channelMsg("c", "general", "m3", 4),
		channelMsg("a", "general", "m4", 5),
	)

	got, err := s.Query(context.Background(), store.Window(store.ChannelScope("general"), 3))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want := []string{"m2", "m3", "m4"}; !slices.Equal(bodies(got), want) {
		t.Errorf("Window = %v, want %v", bodies(got), want)
	}
}

func testQueryOrderAndLimit(t *testing.T, s store.Store) {
	// Appended out of time order; results follow timestamps.
	appendAll(t, s,
		channelMsg("a", "general", "m3", 3),
		channelMsg("a", "general", "m1", 1),
		channelMsg("a", "general", "m2", 2),
	)
	ctx := context.Background()
	scope := store.ChannelScope("general")

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"ascending all", store.Filter{Scope: scope, Order: store.Ascending}, []string{"m1", "m2", "m3"}},
		{"descending all", store.Filter{Scope: scope, Order: store.Descending}, []string{"m3", "m2", "m1"}},
		{"ascending last two", store.Filter{Scope: scope, Order: store.Ascending, Limit: 2}, []string{"m2", "m3"}},
		{"descending last two", store.Filter{Scope: scope, Order: store.Descending, Limit: 2}, []string{"m3", "m2"}},
		{"limit larger than log", store.Filter{Scope: scope, Order: store.Ascending, Limit: 10}, []string{"m1", "m2", "m3"}},
		{"unknown scope", store.Filter{Scope: store.ChannelScope("nowhere")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if !slices.Equal(bodies(got), tt.want) {
				t.Errorf("Query = %v, want %v", bodies(got), tt.want)
			}
		})
	}
}

func testQueryTimeFilter(t *testing.T, s store.Store) {
	appendAll(t, s,
		channelMsg("a", "general", "m1", 1),
		channelMsg("a", "general", "m2", 2),
		channelMsg("a", "general", "m3", 3),
	)
	ctx := context.Background()
	scope := store.ChannelScope("general")

	tests := []struct {
		op   store.Operator
		want []string
	}{
		{store.Before, []string{"m1"}},
		{store.AtOrBefore, []string{"m1", "m2"}},
		{store.After, []string{"m3"}},
		{store.AtOrAfter, []string{"m2", "m3"}},
		{store.Equal, []string{"m2"}},
		{store.NotEqual, []string{"m1", "m3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := s.Query(ctx, store.Filter{
				Scope: scope,
				Time:  &store.TimeFilter{Op: tt.op, Value: at(2)},
				Order: store.Ascending,
			})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if !slices.Equal(bodies(got), tt.want) {
				t.Errorf("Query(%s) = %v, want %v", tt.op, bodies(got), tt.want)
			}
		})
	}
}

func testDirectScope(t *testing.T, s store.Store) {
	appendAll(t, s,
		directMsg("alice", "bob", "d1", 1),
		directMsg("bob", "alice", "d2", 2),
		directMsg("alice", "carol", "x", 3),
		channelMsg("alice", "bob", "channel named bob", 4),
	)

	got, err := s.Query(context.Background(), store.Filter{Scope: store.DirectScope("bob", "alice"), Order: store.Ascending})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want := []string{"d1", "d2"}; !slices.Equal(bodies(got), want) {
		t.Errorf("direct logs = %v, want %v", bodies(got), want)
	}
}

func testContacts(t *testing.T, s store.Store) {
	appendAll(t, s,
		directMsg("alice", "bob", "d1", 1),
		directMsg("carol", "alice", "d2", 2),
		directMsg("alice", "bob", "d3", 3),
		directMsg("bob", "carol", "d4", 4),
		channelMsg("alice", "general", "c1", 5),
	)

	got, err := s.Contacts(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if want := []string{"bob", "carol"}; !slices.Equal(got, want) {
		t.Errorf("Contacts(alice) = %v, want %v", got, want)
	}

	got, err = s.Contacts(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Contacts(nobody) = %v, want empty", got)
	}
}

func appendVec(t *testing.T, s store.Store, msg *messaging.Message, vec []float64) {
	t.Helper()
	if err := s.Append(context.Background(), msg, vec); err != nil {
		t.Fatalf("Append(%s): %v", msg.Body, err)
	}
}

func testNearest(t *testing.T, s store.Store) {
	appendVec(t, s, channelMsg("a", "general", "exact", 1), []float64{1, 0, 0})
	appendVec(t, s, channelMsg("a", "general", "close", 2), []float64{0.9, 0.1, 0})
	appendVec(t, s, channelMsg("a", "random", "other-channel", 3), []float64{1, 0, 0})
	appendVec(t, s, channelMsg("a", "general", "far", 4), []float64{0, 1, 0})
	appendVec(t, s, directMsg("a", "b", "direct", 5), []float64{1, 0, 0})

	matches, err := s.Nearest(context.Background(), []float64{1, 0, 0}, store.Search{
		Channels: []string{"general"},
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Message.Body != "exact" || matches[1].Message.Body != "close" {
		t.Errorf("matches = %s, %s; want exact, close", matches[0].Message.Body, matches[1].Message.Body)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores not descending: %v, %v", matches[0].Score, matches[1].Score)
	}

	all, err := s.Nearest(context.Background(), []float64{1, 0, 0}, store.Search{})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("unrestricted channel search returned %d matches, want 4", len(all))
	}
}

func testNearestExcludeBeforeLimit(t *testing.T, s store.Store) {
	best := channelMsg("a", "general", "best", 1)
	appendVec(t, s, best, []float64{1, 0})
	appendVec(t, s, channelMsg("a", "general", "second", 2), []float64{0.8, 0.2})
	appendVec(t, s, channelMsg("a", "general", "third", 3), []float64{0.6, 0.4})
	appendVec(t, s, channelMsg("a", "general", "fourth", 4), []float64{0.1, 0.9})

	matches, err := s.Nearest(context.Background(), []float64{1, 0}, store.Search{
		Exclude: []string{best.ID},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = m.Message.Body
	}
	if want := []string{"second", "third"}; !slices.Equal(got, want) {
		t.Errorf("Nearest = %v, want %v", got, want)
	}
}

func testNearestDirect(t *testing.T, s store.Store) {
	appendVec(t, s, directMsg("alice", "bob", "to-bob", 1), []float64{1, 0})
	appendVec(t, s, directMsg("carol", "alice", "from-carol", 2), []float64{0.5, 0.5})
	appendVec(t, s, directMsg("bob", "carol", "not-alice", 3), []float64{1, 0})
	appendVec(t, s, channelMsg("alice", "general", "channel", 4), []float64{1, 0})

	matches, err := s.Nearest(context.Background(), []float64{1, 0}, store.Search{Participant: "alice", Limit: 5})
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = m.Message.Body
	}
	if want := []string{"to-bob", "from-carol"}; !slices.Equal(got, want) {
		t.Errorf("Nearest(participant alice) = %v, want %v", got, want)
	}
}

func testUsersAndChannels(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, u := range []string{"carol", "alice", "bob", "alice"} {
		if err := s.AddUser(ctx, u); err != nil {
			t.Fatalf("AddUser(%s): %v", u, err)
		}
	}
	for _, c := range []string{"random", "general", "random"} {
		if err := s.AddChannel(ctx, c); err != nil {
			t.Fatalf("AddChannel(%s): %v", c, err)
		}
	}

	users, err := s.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if want := []string{"alice", "bob", "carol"}; !slices.Equal(users, want) {
		t.Errorf("Users = %v, want %v", users, want)
	}

	channels, err := s.Channels(ctx)
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if want := []string{"general", "random"}; !slices.Equal(channels, want) {
		t.Errorf("Channels = %v, want %v", channels, want)
	}
}
