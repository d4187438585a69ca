package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tailored-agentic-units/switchboard/observability"
)

type settings struct {
	logger   *slog.Logger
	observer observability.Observer
}

// Option configures a ReplyTracker or Tree.
type Option func(*settings)

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithObserver(obs observability.Observer) Option {
	return func(s *settings) { s.observer = observability.OrNoOp(obs) }
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:   slog.Default(),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// invoke runs a completion callback, converting a panic into an error and
// reporting any failure instead of returning it.
func (s settings) invoke(ctx context.Context, source, key string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("callback panic: %v", r)
			}
		}()
		err = fn()
	}()
	if err == nil {
		return
	}

	s.logger.ErrorContext(
		ctx,
		"completion callback failed",
		slog.String("source", source),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	observability.Emit(ctx, s.observer, EventCallbackFailed, observability.LevelError, source, map[string]any{
		"key":   key,
		"error": err.Error(),
	})
}
