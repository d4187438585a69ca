package tracker

import "github.com/tailored-agentic-units/switchboard/observability"

const (
	EventStart          observability.EventType = "tracker.start"
	EventResolve        observability.EventType = "tracker.resolve"
	EventComplete       observability.EventType = "tracker.complete"
	EventBranch         observability.EventType = "tracker.branch"
	EventBranchComplete observability.EventType = "tracker.branch.complete"
	EventCallbackFailed observability.EventType = "tracker.callback.failed"
)
