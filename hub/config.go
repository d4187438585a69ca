package hub

import (
	"log/slog"
	"time"
)

// Config defines configuration for a Broker.
type Config struct {
	// Broker identity, used in logs
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Upper bound on one Conn.Deliver call
	DeliveryTimeout time.Duration `json:"delivery_timeout,omitempty" yaml:"delivery_timeout,omitempty"`

	// Buffered frames per LocalConn
	OutboxSize int `json:"outbox_size,omitempty" yaml:"outbox_size,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:            "switchboard",
		DeliveryTimeout: 5 * time.Second,
		OutboxSize:      256,
		Logger:          slog.Default(),
	}
}

func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.DeliveryTimeout > 0 {
		c.DeliveryTimeout = source.DeliveryTimeout
	}

	if source.OutboxSize > 0 {
		c.OutboxSize = source.OutboxSize
	}

	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
