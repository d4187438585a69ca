package agent

import (
	"log/slog"
	"time"
)

// Config defines how a Client connects and who it is.
type Config struct {
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`

	// Bound on each request's wait for its reply
	RequestTimeout time.Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`

	// Notifications buffered for Events; further ones are dropped
	EventBuffer int `json:"event_buffer,omitempty" yaml:"event_buffer,omitempty"`

	// Limits used when assembling context for a turn
	HistoryLimit  int `json:"history_limit,omitempty" yaml:"history_limit,omitempty"`
	RelevantLimit int `json:"relevant_limit,omitempty" yaml:"relevant_limit,omitempty"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		URL:            "ws://localhost:8080/ws",
		RequestTimeout: 30 * time.Second,
		EventBuffer:    256,
		HistoryLimit:   25,
		RelevantLimit:  25,
		Logger:         slog.Default(),
	}
}

func (c *Config) Merge(source *Config) {
	if source.URL != "" {
		c.URL = source.URL
	}
	if source.Username != "" {
		c.Username = source.Username
	}
	if len(source.Channels) > 0 {
		c.Channels = source.Channels
	}
	if source.RequestTimeout > 0 {
		c.RequestTimeout = source.RequestTimeout
	}
	if source.EventBuffer > 0 {
		c.EventBuffer = source.EventBuffer
	}
	if source.HistoryLimit > 0 {
		c.HistoryLimit = source.HistoryLimit
	}
	if source.RelevantLimit > 0 {
		c.RelevantLimit = source.RelevantLimit
	}
	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
