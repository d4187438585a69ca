package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/observability"
)

// Trigger is an inbound message the participant may act on. It travels
// with raise_hand and comes back with your_turn.
type Trigger struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Channel   string `json:"channel,omitempty"`
	Message   string `json:"message"`
	ThreadID  string `json:"thread_id,omitempty"`
	// Set when the sender asked this participant to reply.
	Awaited bool `json:"awaited,omitempty"`
}

// Direct reports whether the trigger arrived as a direct message.
func (t Trigger) Direct() bool {
	return t.Channel == ""
}

// Turn is what a Decider sees when the floor is granted: the trigger that
// raised the hand plus recent history and related messages.
type Turn struct {
	Trigger  Trigger
	History  []*messaging.Message
	Relevant []protocol.Scored
}

// Decider supplies the participant's judgement.
type Decider interface {
	// ShouldAct decides whether an inbound message warrants taking a turn.
	ShouldAct(ctx context.Context, trigger Trigger) (bool, error)

	// Act returns the messages to send while holding the floor.
	Act(ctx context.Context, turn Turn) ([]Outgoing, error)
}

// RepliesHandler is implemented by deciders that want replies_complete
// notifications for messages they sent with await_replies.
type RepliesHandler interface {
	OnRepliesComplete(ctx context.Context, trackingID string, replies []protocol.Reply) error
}

type RunnerOption func(*Runner)

func WithObserver(o observability.Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// Runner drives a Client with a Decider until the connection ends or its
// context is cancelled.
type Runner struct {
	client   *Client
	decider  Decider
	logger   *slog.Logger
	observer observability.Observer

	historyLimit  int
	relevantLimit int
}

func NewRunner(client *Client, decider Decider, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:        client,
		decider:       decider,
		logger:        client.cfg.Logger,
		historyLimit:  client.cfg.HistoryLimit,
		relevantLimit: client.cfg.RelevantLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.observer == nil {
		r.observer = observability.NewSlogObserver(r.logger)
	}
	return r
}

// Run processes notifications in arrival order. Decider failures are
// reported and skipped; Run returns only when ctx is done or the connection
// ends.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-r.client.Events():
			if !ok {
				return r.client.Err()
			}
			if err := r.handle(ctx, env); err != nil {
				r.logger.ErrorContext(ctx, "agent step failed",
					slog.String("username", r.client.Username()),
					slog.String("action", env.Action),
					slog.String("error", err.Error()),
				)
				observability.Emit(ctx, r.observer, EventError, observability.LevelError, "agent.Run", map[string]any{
					"action": env.Action,
					"error":  err.Error(),
				})
			}
		}
	}
}

func (r *Runner) handle(ctx context.Context, env protocol.Envelope) error {
	switch env.Action {
	case protocol.EventChannelMessage, protocol.EventDirectMessage:
		return r.consider(ctx, env)
	case protocol.EventYourTurn:
		return r.takeTurn(ctx, env)
	case protocol.EventRepliesComplete:
		return r.replies(ctx, env)
	default:
		if env.Error != "" {
			r.logger.WarnContext(ctx, "unsolicited error", slog.String("error", env.Error))
		}
		return nil
	}
}

func (r *Runner) consider(ctx context.Context, env protocol.Envelope) error {
	trigger := Trigger{
		MessageID: env.MessageID,
		From:      env.From,
		Channel:   env.Channel,
		Message:   env.Message,
		ThreadID:  env.ThreadID,
	}
	for _, id := range env.AwaitReplies {
		if id == r.client.Username() {
			trigger.Awaited = true
			break
		}
	}

	act, err := r.decider.ShouldAct(ctx, trigger)
	if err != nil {
		return fmt.Errorf("should act on %s: %w", trigger.MessageID, err)
	}
	observability.Emit(ctx, r.observer, EventConsider, observability.LevelVerbose, "agent.consider", map[string]any{
		"message_id": trigger.MessageID,
		"from":       trigger.From,
		"act":        act,
	})
	if !act {
		return nil
	}

	reply, err := r.client.RaiseHand(ctx, trigger)
	if err != nil {
		return err
	}
	observability.Emit(ctx, r.observer, EventRaise, observability.LevelInfo, "agent.consider", map[string]any{
		"message_id": trigger.MessageID,
		"status":     reply.Status,
	})
	return nil
}

func (r *Runner) takeTurn(ctx context.Context, env protocol.Envelope) error {
	var trigger Trigger
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &trigger); err != nil {
			return fmt.Errorf("decode turn data: %w", err)
		}
	}

	turn, err := r.assemble(ctx, trigger)
	if err != nil {
		return err
	}

	observability.Emit(ctx, r.observer, EventTurn, observability.LevelInfo, "agent.takeTurn", map[string]any{
		"message_id": trigger.MessageID,
		"history":    len(turn.History),
		"relevant":   len(turn.Relevant),
	})

	outgoing, err := r.decider.Act(ctx, turn)
	if err != nil {
		return fmt.Errorf("act on %s: %w", trigger.MessageID, err)
	}
	if len(outgoing) == 0 {
		r.logger.WarnContext(ctx, "turn produced no messages, floor stays held",
			slog.String("username", r.client.Username()),
			slog.String("message_id", trigger.MessageID),
		)
		return nil
	}

	for _, out := range outgoing {
		reply, err := r.client.Send(ctx, out)
		if err != nil {
			return err
		}
		observability.Emit(ctx, r.observer, EventSend, observability.LevelVerbose, "agent.takeTurn", map[string]any{
			"message_id": reply.MessageID,
			"channel":    out.Channel,
			"recipient":  out.Recipient,
		})
	}
	return nil
}

// assemble gathers context for a turn: the channel's context bundle, or the
// direct conversation with the trigger's sender.
func (r *Runner) assemble(ctx context.Context, trigger Trigger) (Turn, error) {
	turn := Turn{Trigger: trigger}

	switch {
	case trigger.Channel != "":
		env, err := r.client.Do(ctx, &protocol.GetContextAction{
			Channel:       trigger.Channel,
			QueryText:     trigger.Message,
			HistoryLimit:  r.historyLimit,
			RelevantLimit: r.relevantLimit,
		})
		if err != nil {
			return turn, err
		}
		turn.History = env.History
		turn.Relevant = env.Relevant

	case trigger.From != "":
		env, err := r.client.Do(ctx, &protocol.GetDirectLogsAction{
			UserA: r.client.Username(),
			UserB: trigger.From,
		})
		if err != nil {
			return turn, err
		}
		turn.History = env.Logs
		if len(turn.History) > r.historyLimit {
			turn.History = turn.History[len(turn.History)-r.historyLimit:]
		}
	}
	return turn, nil
}

func (r *Runner) replies(ctx context.Context, env protocol.Envelope) error {
	observability.Emit(ctx, r.observer, EventReplies, observability.LevelInfo, "agent.replies", map[string]any{
		"tracking_id": env.TrackingID,
		"replies":     len(env.Payload),
	})
	handler, ok := r.decider.(RepliesHandler)
	if !ok {
		return nil
	}
	return handler.OnRepliesComplete(ctx, env.TrackingID, env.Payload)
}
