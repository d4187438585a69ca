package coordinator

import "errors"

var (
	// ErrIdentityMismatch is returned when an action names a sender other
	// than the identity registered on its connection.
	ErrIdentityMismatch = errors.New("identity does not match registered connection")

	// ErrNotQuery is returned by Query for actions that change state.
	ErrNotQuery = errors.New("action is not a read-only query")

	ErrUnknownStorage = errors.New("unknown storage driver")
)
