package memory_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/memory"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/store"
)

// vectors maps a body to a fixed embedding so similarity is predictable.
func vectors(table map[string][]float64) embedding.Embedder {
	return embedding.Func(func(_ context.Context, text string) ([]float64, error) {
		if v, ok := table[text]; ok {
			return v, nil
		}
		return []float64{0, 0, 1}, nil
	})
}

func record(t *testing.T, r *memory.Recorder, msgs ...*messaging.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := r.Record(context.Background(), m); err != nil {
			t.Fatalf("Record(%s): %v", m.Body, err)
		}
	}
}

func at(minute int) time.Time {
	return time.Date(2024, 6, 1, 10, minute, 0, 0, time.UTC)
}

func msg(from, channel, body string, minute int) *messaging.Message {
	return messaging.NewChannelMessage(from, channel, body).Timestamp(at(minute)).Build()
}

func bodies(msgs []*messaging.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func matchBodies(matches []store.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Message.Body
	}
	return out
}

func TestAssembler_HistoryWindow(t *testing.T) {
	s := store.NewMemory()
	emb := embedding.NewHash(16)
	record(t, memory.NewRecorder(s, emb),
		msg("a", "general", "one", 1),
		msg("b", "general", "two", 2),
		msg("c", "general", "three", 3),
		msg("a", "other", "elsewhere", 4),
	)
	a := memory.NewAssembler(s, emb, nil)

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"last two", 2, []string{"two", "three"}},
		{"more than stored", 10, []string{"one", "two", "three"}},
		{"zero limit", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.HistoryWindow(context.Background(), store.ChannelScope("general"), tt.limit)
			if err != nil {
				t.Fatalf("HistoryWindow: %v", err)
			}
			if !slices.Equal(bodies(got), tt.want) {
				t.Errorf("HistoryWindow = %v, want %v", bodies(got), tt.want)
			}
		})
	}
}

func TestAssembler_RelevantExcerpts_ExcludeBeforeLimit(t *testing.T) {
	s := store.NewMemory()
	emb := vectors(map[string][]float64{
		"query":  {1, 0, 0},
		"self":   {1, 0, 0},
		"near":   {0.9, 0.1, 0},
		"middle": {0.7, 0.3, 0},
		"far":    {0, 1, 0},
	})
	self := msg("a", "general", "self", 1)
	record(t, memory.NewRecorder(s, emb),
		self,
		msg("a", "general", "near", 2),
		msg("a", "general", "middle", 3),
		msg("a", "general", "far", 4),
	)
	a := memory.NewAssembler(s, emb, nil)

	got, err := a.RelevantExcerpts(context.Background(), "query", 2, []string{self.ID}, store.Search{})
	if err != nil {
		t.Fatalf("RelevantExcerpts: %v", err)
	}
	if want := []string{"near", "middle"}; !slices.Equal(matchBodies(got), want) {
		t.Errorf("RelevantExcerpts = %v, want %v", matchBodies(got), want)
	}
}

func TestAssembler_RelevantExcerpts_FewerCandidates(t *testing.T) {
	s := store.NewMemory()
	emb := embedding.NewHash(16)
	only := msg("a", "general", "lonely message", 1)
	record(t, memory.NewRecorder(s, emb), only, msg("a", "general", "another", 2))
	a := memory.NewAssembler(s, emb, nil)

	got, err := a.RelevantExcerpts(context.Background(), "lonely", 5, []string{only.ID}, store.Search{})
	if err != nil {
		t.Fatalf("RelevantExcerpts: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d excerpts, want 1 (only one candidate remains)", len(got))
	}
}

func TestAssembler_Assemble(t *testing.T) {
	s := store.NewMemory()
	emb := vectors(map[string][]float64{
		"billing?":        {1, 0, 0},
		"billing is down": {1, 0, 0},
		"old billing":     {0.95, 0.05, 0},
		"lunch":           {0, 1, 0},
	})
	record(t, memory.NewRecorder(s, emb),
		msg("a", "ops", "old billing", 1),
		msg("b", "general", "lunch", 2),
		msg("c", "general", "billing is down", 3),
	)
	a := memory.NewAssembler(s, emb, nil)

	bundle, err := a.Assemble(context.Background(), memory.Request{
		Scope:         store.ChannelScope("general"),
		QueryText:     "billing?",
		HistoryLimit:  5,
		RelevantLimit: 5,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if want := []string{"lunch", "billing is down"}; !slices.Equal(bodies(bundle.History), want) {
		t.Errorf("History = %v, want %v", bodies(bundle.History), want)
	}
	// Relevant never repeats history.
	if want := []string{"old billing"}; !slices.Equal(matchBodies(bundle.Relevant), want) {
		t.Errorf("Relevant = %v, want %v", matchBodies(bundle.Relevant), want)
	}
}

func TestAssembler_Assemble_NoQuery(t *testing.T) {
	s := store.NewMemory()
	emb := embedding.NewHash(16)
	record(t, memory.NewRecorder(s, emb), msg("a", "general", "hi", 1))

	bundle, err := memory.NewAssembler(s, emb, nil).Assemble(context.Background(), memory.Request{
		Scope:        store.ChannelScope("general"),
		HistoryLimit: 5,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.History) != 1 || bundle.Relevant != nil {
		t.Errorf("bundle = %d history / %d relevant, want 1 / 0", len(bundle.History), len(bundle.Relevant))
	}
}

func TestRecorder_EmbeddingFailure(t *testing.T) {
	s := store.NewMemory()
	boom := errors.New("embedding service down")
	r := memory.NewRecorder(s, embedding.Func(func(context.Context, string) ([]float64, error) {
		return nil, boom
	}))

	m := msg("a", "general", "hello", 1)
	if err := r.Record(context.Background(), m); !errors.Is(err, boom) {
		t.Fatalf("Record error = %v, want %v", err, boom)
	}
	if _, err := s.Get(context.Background(), m.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("message stored despite embedding failure (err = %v)", err)
	}
}

func TestRecorder_Duplicate(t *testing.T) {
	s := store.NewMemory()
	r := memory.NewRecorder(s, embedding.NewHash(8))
	m := msg("a", "general", "once", 1)

	record(t, r, m)
	if err := r.Record(context.Background(), m); !errors.Is(err, store.ErrDuplicateMessage) {
		t.Errorf("second Record error = %v, want ErrDuplicateMessage", err)
	}
}

func TestEmbeddingCache(t *testing.T) {
	calls := 0
	next := embedding.Func(func(_ context.Context, text string) ([]float64, error) {
		calls++
		return []float64{float64(len(text))}, nil
	})

	e, err := memory.NewEmbeddingCache(next, 2)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	cache := e.(*memory.EmbeddingCache)
	ctx := context.Background()

	for _, text := range []string{"a", "bb", "a", "bb", "ccc", "a"} {
		if _, err := cache.Embed(ctx, text); err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
	}

	// a, bb miss; a, bb hit; ccc misses and evicts a; a misses again.
	if calls != 4 {
		t.Errorf("underlying calls = %d, want 4", calls)
	}
	hits, misses := cache.Stats()
	if hits != 2 || misses != 4 {
		t.Errorf("Stats() = %d hits, %d misses, want 2, 4", hits, misses)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	e, _ := memory.NewEmbeddingCache(embedding.NewHash(4), 8)
	ctx := context.Background()

	first, _ := e.Embed(ctx, "stable text")
	first[0] = 42
	second, _ := e.Embed(ctx, "stable text")
	if second[0] == 42 {
		t.Error("cached vector was mutated through a returned slice")
	}
}

func TestEmbeddingCache_Disabled(t *testing.T) {
	next := embedding.NewHash(4)
	e, err := memory.NewEmbeddingCache(next, 0)
	if err != nil {
		t.Fatalf("NewEmbeddingCache: %v", err)
	}
	if e != embedding.Embedder(next) {
		t.Error("size 0 should return the embedder unwrapped")
	}
}
