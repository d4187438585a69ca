package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultChannelLogLimit = 50
	DefaultSimilarLimit    = 5
	DefaultHistoryLimit    = 25
	DefaultRelevantLimit   = 25
)

// Action is one decoded inbound action. The set is closed: only the types
// in this package implement it.
type Action interface {
	Name() Name
	validate() error
}

// Threading carries the optional reply-tracking fields accepted by
// send_message and send_direct.
type Threading struct {
	ThreadID     string   `json:"thread_id,omitempty"`
	ParentID     string   `json:"parent_id,omitempty"`
	AwaitReplies []string `json:"await_replies,omitempty"`
}

func (t *Threading) validate() error {
	for _, id := range t.AwaitReplies {
		if id == "" {
			return fmt.Errorf("%w: await_replies contains an empty identity", ErrInvalidField)
		}
	}
	return nil
}

type RegisterAction struct {
	Username string `json:"username"`
}

func (*RegisterAction) Name() Name { return Register }

func (a *RegisterAction) validate() error {
	return require("username", a.Username)
}

type JoinChannelAction struct {
	Channel string `json:"channel"`
}

func (*JoinChannelAction) Name() Name { return JoinChannel }

func (a *JoinChannelAction) validate() error {
	return require("channel", a.Channel)
}

// RaiseHandAction carries an opaque payload returned verbatim in your_turn.
type RaiseHandAction struct {
	Data json.RawMessage `json:"data,omitempty"`
}

func (*RaiseHandAction) Name() Name { return RaiseHand }

func (*RaiseHandAction) validate() error { return nil }

type SendMessageAction struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
	Threading
}

func (*SendMessageAction) Name() Name { return SendMessage }

func (a *SendMessageAction) validate() error {
	if err := require("channel", a.Channel); err != nil {
		return err
	}
	if err := require("message", a.Message); err != nil {
		return err
	}
	return a.Threading.validate()
}

// SendDirectAction names the sender in Username. When present it must match
// the identity registered on the sending connection.
type SendDirectAction struct {
	Username  string `json:"username,omitempty"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Threading
}

func (*SendDirectAction) Name() Name { return SendDirect }

func (a *SendDirectAction) validate() error {
	if err := require("recipient", a.Recipient); err != nil {
		return err
	}
	if err := require("message", a.Message); err != nil {
		return err
	}
	return a.Threading.validate()
}

type GetChannelsAction struct{}

func (*GetChannelsAction) Name() Name { return GetChannels }

func (*GetChannelsAction) validate() error { return nil }

type GetUsersAction struct{}

func (*GetUsersAction) Name() Name { return GetUsers }

func (*GetUsersAction) validate() error { return nil }

type GetChannelLogsAction struct {
	Channel string    `json:"channel"`
	Query   *LogQuery `json:"query,omitempty"`
	Sort    string    `json:"sort,omitempty"`
	Limit   int       `json:"limit,omitempty"`
}

func (*GetChannelLogsAction) Name() Name { return GetChannelLogs }

func (a *GetChannelLogsAction) validate() error {
	if err := require("channel", a.Channel); err != nil {
		return err
	}
	sort, err := normalizeSort(a.Sort)
	if err != nil {
		return err
	}
	a.Sort = sort
	a.Limit, err = limitOrDefault("limit", a.Limit, DefaultChannelLogLimit)
	return err
}

// GetDirectLogsAction returns every message between the two users unless a
// query narrows it.
type GetDirectLogsAction struct {
	UserA string    `json:"userA"`
	UserB string    `json:"userB"`
	Query *LogQuery `json:"query,omitempty"`
	Sort  string    `json:"sort,omitempty"`
}

func (*GetDirectLogsAction) Name() Name { return GetDirectLogs }

func (a *GetDirectLogsAction) validate() error {
	if err := require("userA", a.UserA); err != nil {
		return err
	}
	if err := require("userB", a.UserB); err != nil {
		return err
	}
	sort, err := normalizeSort(a.Sort)
	a.Sort = sort
	return err
}

type GetDirectContactsAction struct {
	Username string `json:"username"`
}

func (*GetDirectContactsAction) Name() Name { return GetDirectContacts }

func (a *GetDirectContactsAction) validate() error {
	return require("username", a.Username)
}

// GetSimilarChannelMessagesAction searches every channel when Channels is
// empty.
type GetSimilarChannelMessagesAction struct {
	QueryText string   `json:"queryText"`
	Channels  []string `json:"channels,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

func (*GetSimilarChannelMessagesAction) Name() Name { return GetSimilarChannelMessages }

func (a *GetSimilarChannelMessagesAction) validate() error {
	if err := require("queryText", a.QueryText); err != nil {
		return err
	}
	var err error
	a.Limit, err = limitOrDefault("limit", a.Limit, DefaultSimilarLimit)
	return err
}

type GetSimilarDirectMessagesAction struct {
	QueryText string `json:"queryText"`
	User      string `json:"user"`
	Limit     int    `json:"limit,omitempty"`
}

func (*GetSimilarDirectMessagesAction) Name() Name { return GetSimilarDirectMessages }

func (a *GetSimilarDirectMessagesAction) validate() error {
	if err := require("queryText", a.QueryText); err != nil {
		return err
	}
	if err := require("user", a.User); err != nil {
		return err
	}
	var err error
	a.Limit, err = limitOrDefault("limit", a.Limit, DefaultSimilarLimit)
	return err
}

// GetContextAction asks for the history window of Channel plus excerpts
// related to QueryText. Without QueryText only history is returned.
type GetContextAction struct {
	Channel       string `json:"channel"`
	QueryText     string `json:"queryText,omitempty"`
	HistoryLimit  int    `json:"historyLimit,omitempty"`
	RelevantLimit int    `json:"relevantLimit,omitempty"`
}

func (*GetContextAction) Name() Name { return GetContext }

func (a *GetContextAction) validate() error {
	if err := require("channel", a.Channel); err != nil {
		return err
	}
	var err error
	if a.HistoryLimit, err = limitOrDefault("historyLimit", a.HistoryLimit, DefaultHistoryLimit); err != nil {
		return err
	}
	a.RelevantLimit, err = limitOrDefault("relevantLimit", a.RelevantLimit, DefaultRelevantLimit)
	return err
}

func require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return nil
}

func normalizeSort(sort string) (string, error) {
	switch strings.ToUpper(sort) {
	case "", "ASC":
		return "ASC", nil
	case "DESC":
		return "DESC", nil
	default:
		return "", fmt.Errorf("%w: sort must be ASC or DESC, got %q", ErrInvalidField, sort)
	}
}

func limitOrDefault(field string, limit, fallback int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidField, field)
	case limit == 0:
		return fallback, nil
	default:
		return limit, nil
	}
}
