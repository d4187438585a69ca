package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/store"
)

// Assembler merges recent history with semantically related excerpts.
type Assembler struct {
	store    store.Store
	embedder embedding.Embedder
	logger   *slog.Logger
}

func NewAssembler(s store.Store, e embedding.Embedder, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: s, embedder: e, logger: logger}
}

// HistoryWindow returns the most recent limit messages of scope, oldest
// first.
func (a *Assembler) HistoryWindow(ctx context.Context, scope store.Scope, limit int) ([]*messaging.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	msgs, err := a.store.Query(ctx, store.Window(scope, limit))
	if err != nil {
		return nil, fmt.Errorf("history window %s: %w", scope, err)
	}
	return msgs, nil
}

// RelevantExcerpts ranks stored messages by cosine similarity to queryText.
// Messages in exclude are dropped before the limit is applied, so up to
// limit novel results come back.
func (a *Assembler) RelevantExcerpts(ctx context.Context, queryText string, limit int, exclude []string, search store.Search) ([]store.Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec, err := a.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	search.Exclude = append(slices.Clone(search.Exclude), exclude...)
	search.Limit = limit

	matches, err := a.store.Nearest(ctx, vec, search)
	if err != nil {
		return nil, fmt.Errorf("nearest messages: %w", err)
	}
	return matches, nil
}

// Request describes one context assembly. Search narrows the relevant
// excerpts; its zero value searches every channel.
type Request struct {
	Scope         store.Scope
	QueryText     string
	HistoryLimit  int
	RelevantLimit int
	Search        store.Search
}

// Bundle is what a participant reads before acting.
type Bundle struct {
	History  []*messaging.Message
	Relevant []store.Match
}

// Assemble reads the history window, then, when QueryText is set, the
// excerpts most related to it that are not already in the window.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Bundle, error) {
	history, err := a.HistoryWindow(ctx, req.Scope, req.HistoryLimit)
	if err != nil {
		return Bundle{}, err
	}
	bundle := Bundle{History: history}

	if req.QueryText == "" {
		return bundle, nil
	}

	seen := make([]string, len(history))
	for i, msg := range history {
		seen[i] = msg.ID
	}

	relevant, err := a.RelevantExcerpts(ctx, req.QueryText, req.RelevantLimit, seen, req.Search)
	if err != nil {
		return Bundle{}, err
	}
	bundle.Relevant = relevant

	a.logger.DebugContext(ctx, "context assembled",
		slog.String("scope", req.Scope.String()),
		slog.Int("history", len(history)),
		slog.Int("relevant", len(relevant)))
	return bundle, nil
}
