package coordinator

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/memory"
	"github.com/tailored-agentic-units/switchboard/store"
)

func (c *Coordinator) query(ctx context.Context, requestID string, action protocol.Action) (any, error) {
	result := protocol.Result{Action: string(action.Name()), RequestID: requestID}

	switch a := action.(type) {
	case *protocol.GetChannelsAction:
		result.Channels = c.broker.Channels().Names()

	case *protocol.GetUsersAction:
		users, err := c.store.Users(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		result.Users = users

	case *protocol.GetChannelLogsAction:
		filter, err := logFilter(store.ChannelScope(a.Channel), a.Query, a.Sort, a.Limit)
		if err != nil {
			return nil, err
		}
		logs, err := c.store.Query(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("channel logs: %w", err)
		}
		result.Channel = a.Channel
		result.Logs = logs

	case *protocol.GetDirectLogsAction:
		filter, err := logFilter(store.DirectScope(a.UserA, a.UserB), a.Query, a.Sort, 0)
		if err != nil {
			return nil, err
		}
		logs, err := c.store.Query(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("direct logs: %w", err)
		}
		result.Logs = logs

	case *protocol.GetDirectContactsAction:
		contacts, err := c.store.Contacts(ctx, a.Username)
		if err != nil {
			return nil, fmt.Errorf("direct contacts: %w", err)
		}
		result.Contacts = contacts

	case *protocol.GetSimilarChannelMessagesAction:
		matches, err := c.assembler.RelevantExcerpts(ctx, a.QueryText, a.Limit, nil, store.Search{Channels: a.Channels})
		if err != nil {
			return nil, err
		}
		result.Action = protocol.ResultSimilarChannelMessages
		result.Results = scored(matches)

	case *protocol.GetSimilarDirectMessagesAction:
		matches, err := c.assembler.RelevantExcerpts(ctx, a.QueryText, a.Limit, nil, store.Search{Participant: a.User})
		if err != nil {
			return nil, err
		}
		result.Action = protocol.ResultSimilarDirectMessages
		result.Results = scored(matches)

	case *protocol.GetContextAction:
		bundle, err := c.assembler.Assemble(ctx, memory.Request{
			Scope:         store.ChannelScope(a.Channel),
			QueryText:     a.QueryText,
			HistoryLimit:  a.HistoryLimit,
			RelevantLimit: a.RelevantLimit,
			Search:        store.Search{Channels: []string{a.Channel}},
		})
		if err != nil {
			return nil, err
		}
		result.Channel = a.Channel
		result.History = bundle.History
		result.Relevant = scored(bundle.Relevant)

	default:
		return nil, fmt.Errorf("%w: %s", ErrNotQuery, action.Name())
	}

	return result, nil
}

func logFilter(scope store.Scope, q *protocol.LogQuery, sort string, limit int) (store.Filter, error) {
	filter := store.Filter{
		Scope: scope,
		Order: store.Order(sort),
		Limit: limit,
	}
	if q == nil || q.Timestamp == nil {
		return filter, nil
	}

	op, err := store.ParseOperator(string(q.Timestamp.Operator))
	if err != nil {
		return store.Filter{}, fmt.Errorf("%w: %w", protocol.ErrInvalidField, err)
	}
	filter.Time = &store.TimeFilter{Op: op, Value: q.Timestamp.Value}
	return filter, nil
}

func scored(matches []store.Match) []protocol.Scored {
	if len(matches) == 0 {
		return nil
	}
	out := make([]protocol.Scored, len(matches))
	for i, m := range matches {
		out[i] = protocol.Scored{Message: m.Message, Similarity: m.Score}
	}
	return out
}
