package agent

import "errors"

var (
	// ErrClosed is returned by requests on a client whose connection is gone.
	ErrClosed = errors.New("client closed")

	// ErrRemote wraps an {error} reply from the coordinator.
	ErrRemote = errors.New("coordinator error")

	ErrNoDestination = errors.New("outgoing message needs a channel or a recipient")
)
