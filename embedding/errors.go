package embedding

import "errors"

var (
	ErrEmptyText       = errors.New("embedding: empty text")
	ErrUnknownProvider = errors.New("embedding: unknown provider")
	ErrMissingAPIKey   = errors.New("embedding: missing api key")
	ErrBadResponse     = errors.New("embedding: bad response")
)
