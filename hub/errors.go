package hub

import "errors"

var (
	ErrUnknownChannel       = errors.New("unknown channel")
	ErrRecipientUnreachable = errors.New("recipient unreachable")
	ErrNotRegistered        = errors.New("not registered")
	ErrOutboxClosed         = errors.New("outbox closed")

	// ErrNotDelivered marks a Publish failure that happened after the
	// message was recorded. The record stands.
	ErrNotDelivered = errors.New("recorded but not delivered")
)
