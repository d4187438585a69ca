package turn

import "github.com/tailored-agentic-units/switchboard/observability"

const (
	EventRaise   observability.EventType = "turn.raise"
	EventGrant   observability.EventType = "turn.grant"
	EventSkip    observability.EventType = "turn.skip"
	EventRelease observability.EventType = "turn.release"
	EventDrop    observability.EventType = "turn.drop"
	EventExpire  observability.EventType = "turn.expire"
	EventIdle    observability.EventType = "turn.idle"
)
