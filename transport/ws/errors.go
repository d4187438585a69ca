package ws

import "errors"

// ErrRateLimited is returned to a client whose frames exceed its
// connection's rate.
var ErrRateLimited = errors.New("rate limit exceeded")
