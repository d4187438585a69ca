package coordinator

import "github.com/tailored-agentic-units/switchboard/observability"

// Coordinator event types emitted while handling inbound actions.
const (
	EventDispatch        observability.EventType = "coordinator.dispatch"
	EventActionFailed    observability.EventType = "coordinator.action.failed"
	EventTrackingStart   observability.EventType = "coordinator.tracking.start"
	EventRepliesComplete observability.EventType = "coordinator.replies.complete"
	EventBranchReady     observability.EventType = "coordinator.branch.ready"
	EventDisconnect      observability.EventType = "coordinator.disconnect"
)
