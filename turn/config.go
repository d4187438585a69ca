package turn

import (
	"log/slog"
	"time"
)

// Config defines configuration for an Arbiter.
type Config struct {
	// Upper bound on how long one grant may be held. Zero holds forever.
	HoldLimit time.Duration `json:"hold_limit,omitempty" yaml:"hold_limit,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		HoldLimit: 0,
		Logger:    slog.Default(),
	}
}

func (c *Config) Merge(source *Config) {
	if source.HoldLimit > 0 {
		c.HoldLimit = source.HoldLimit
	}

	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
