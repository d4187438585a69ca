package hub

import "github.com/tailored-agentic-units/switchboard/observability"

const (
	EventRegister       observability.EventType = "hub.register"
	EventJoin           observability.EventType = "hub.join"
	EventDisconnect     observability.EventType = "hub.disconnect"
	EventPublish        observability.EventType = "hub.publish"
	EventDirect         observability.EventType = "hub.direct"
	EventDeliveryFailed observability.EventType = "hub.delivery.failed"
)
