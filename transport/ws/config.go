package ws

import (
	"log/slog"
	"time"
)

// Config defines configuration for the WebSocket transport.
type Config struct {
	Path            string   `json:"path,omitempty" yaml:"path,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	ReadBufferSize  int      `json:"read_buffer_size,omitempty" yaml:"read_buffer_size,omitempty"`
	WriteBufferSize int      `json:"write_buffer_size,omitempty" yaml:"write_buffer_size,omitempty"`

	// Largest inbound frame accepted; larger frames close the connection
	MaxMessageBytes int64 `json:"max_message_bytes,omitempty" yaml:"max_message_bytes,omitempty"`

	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`

	// Frames queued per connection before delivery blocks
	OutboxSize int `json:"outbox_size,omitempty" yaml:"outbox_size,omitempty"`

	// Inbound frame rate per connection
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Path:              "/ws",
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MaxMessageBytes:   1 << 20,
		WriteTimeout:      10 * time.Second,
		OutboxSize:        256,
		RequestsPerSecond: 20,
		Burst:             40,
		Logger:            slog.Default(),
	}
}

func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = source.AllowedOrigins
	}
	if source.ReadBufferSize > 0 {
		c.ReadBufferSize = source.ReadBufferSize
	}
	if source.WriteBufferSize > 0 {
		c.WriteBufferSize = source.WriteBufferSize
	}
	if source.MaxMessageBytes > 0 {
		c.MaxMessageBytes = source.MaxMessageBytes
	}
	if source.WriteTimeout > 0 {
		c.WriteTimeout = source.WriteTimeout
	}
	if source.OutboxSize > 0 {
		c.OutboxSize = source.OutboxSize
	}
	if source.RequestsPerSecond > 0 {
		c.RequestsPerSecond = source.RequestsPerSecond
	}
	if source.Burst > 0 {
		c.Burst = source.Burst
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
