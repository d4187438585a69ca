package protocol

// Name identifies an inbound action.
type Name string

const (
	Register                  Name = "register"
	JoinChannel               Name = "join_channel"
	RaiseHand                 Name = "raise_hand"
	SendMessage               Name = "send_message"
	SendDirect                Name = "send_direct"
	GetChannels               Name = "get_channels"
	GetUsers                  Name = "get_users"
	GetChannelLogs            Name = "get_channel_logs"
	GetDirectLogs             Name = "get_direct_logs"
	GetDirectContacts         Name = "get_direct_contacts"
	GetSimilarChannelMessages Name = "get_similar_channel_messages"
	GetSimilarDirectMessages  Name = "get_similar_direct_messages"
	GetContext                Name = "get_context"
)

// Outbound notification and result names.
const (
	EventChannelMessage  = "channel_message"
	EventDirectMessage   = "direct_message"
	EventYourTurn        = "your_turn"
	EventRepliesComplete = "replies_complete"

	ResultSimilarChannelMessages = "similar_channel_messages"
	ResultSimilarDirectMessages  = "similar_direct_messages"
)

// Status values carried by {status: ...} replies.
const (
	StatusRegistered        = "registered"
	StatusJoined            = "joined"
	StatusGranted           = "granted"
	StatusQueued            = "queued"
	StatusAlreadyQueued     = "already_in_queue_or_active"
	StatusDropped           = "dropped"
	StatusMessageSent       = "message_sent"
	StatusDirectMessageSent = "direct_message_sent"
)

var constructors = map[Name]func() Action{
	Register:                  func() Action { return &RegisterAction{} },
	JoinChannel:               func() Action { return &JoinChannelAction{} },
	RaiseHand:                 func() Action { return &RaiseHandAction{} },
	SendMessage:               func() Action { return &SendMessageAction{} },
	SendDirect:                func() Action { return &SendDirectAction{} },
	GetChannels:               func() Action { return &GetChannelsAction{} },
	GetUsers:                  func() Action { return &GetUsersAction{} },
	GetChannelLogs:            func() Action { return &GetChannelLogsAction{} },
	GetDirectLogs:             func() Action { return &GetDirectLogsAction{} },
	GetDirectContacts:         func() Action { return &GetDirectContactsAction{} },
	GetSimilarChannelMessages: func() Action { return &GetSimilarChannelMessagesAction{} },
	GetSimilarDirectMessages:  func() Action { return &GetSimilarDirectMessagesAction{} },
	GetContext:                func() Action { return &GetContextAction{} },
}

var queries = map[Name]bool{
	GetChannels:               true,
	GetUsers:                  true,
	GetChannelLogs:            true,
	GetDirectLogs:             true,
	GetDirectContacts:         true,
	GetSimilarChannelMessages: true,
	GetSimilarDirectMessages:  true,
	GetContext:                true,
}

// IsValid reports whether name is a recognized inbound action.
func IsValid(name string) bool {
	_, ok := constructors[Name(name)]
	return ok
}

// IsQuery reports whether the action only reads state.
func IsQuery(name Name) bool {
	return queries[name]
}

// ValidActions returns every inbound action name in declaration order.
func ValidActions() []Name {
	return []Name{
		Register,
		JoinChannel,
		RaiseHand,
		SendMessage,
		SendDirect,
		GetChannels,
		GetUsers,
		GetChannelLogs,
		GetDirectLogs,
		GetDirectContacts,
		GetSimilarChannelMessages,
		GetSimilarDirectMessages,
		GetContext,
	}
}
