// Package store is the storage contract of the coordination layer: an
// append-only message log with time-window queries, plus a vector index
// searched by cosine similarity.
//
// Backends: Memory (this package), sqlite and pebble (subpackages). All of
// them share the filtering and ranking rules defined here, so they answer
// identical queries identically.
package store

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/switchboard/messaging"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrDuplicateMessage = errors.New("store: duplicate message id")
	ErrClosed           = errors.New("store: closed")
)

// Store persists messages with their embeddings and the names of users and
// channels ever seen. Implementations must be safe for concurrent use.
type Store interface {
	// Append records msg and its embedding. A message id is recorded once.
	Append(ctx context.Context, msg *messaging.Message, vec []float64) error
	Get(ctx context.Context, id string) (*messaging.Message, error)
	Query(ctx context.Context, filter Filter) ([]*messaging.Message, error)
	// Contacts lists the distinct identities that exchanged direct messages
	// with identity, sorted.
	Contacts(ctx context.Context, identity string) ([]string, error)
	Nearest(ctx context.Context, vec []float64, search Search) ([]Match, error)

	AddUser(ctx context.Context, name string) error
	Users(ctx context.Context) ([]string, error)
	AddChannel(ctx context.Context, name string) error
	Channels(ctx context.Context) ([]string, error)

	Close() error
}

// Match is a message with its similarity to a query vector.
type Match struct {
	Message *messaging.Message
	Score   float64
}
