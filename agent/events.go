package agent

import "github.com/tailored-agentic-units/switchboard/observability"

const (
	EventConsider observability.EventType = "agent.consider"
	EventRaise    observability.EventType = "agent.raise"
	EventTurn     observability.EventType = "agent.turn"
	EventSend     observability.EventType = "agent.send"
	EventReplies  observability.EventType = "agent.replies"
	EventError    observability.EventType = "agent.error"
)
