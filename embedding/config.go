package embedding

import (
	"fmt"
	"time"
)

const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Config selects and tunes the embedder. APIKey is never read from the
// config file; it comes from the environment variable named by APIKeyEnv.
type Config struct {
	Provider          string        `json:"provider,omitempty" yaml:"provider,omitempty"`
	Dimensions        int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	BaseURL           string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model             string        `json:"model,omitempty" yaml:"model,omitempty"`
	APIKeyEnv         string        `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             int           `json:"burst,omitempty" yaml:"burst,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CacheSize         int           `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`

	APIKey string `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Provider:          ProviderHash,
		Dimensions:        DefaultDimensions,
		BaseURL:           "https://api.openai.com/v1",
		Model:             "text-embedding-3-small",
		APIKeyEnv:         "OPENAI_API_KEY",
		RequestsPerSecond: 5,
		Burst:             5,
		Timeout:           30 * time.Second,
		CacheSize:         1024,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Dimensions > 0 {
		c.Dimensions = source.Dimensions
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.APIKeyEnv != "" {
		c.APIKeyEnv = source.APIKeyEnv
	}
	if source.RequestsPerSecond > 0 {
		c.RequestsPerSecond = source.RequestsPerSecond
	}
	if source.Burst > 0 {
		c.Burst = source.Burst
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.CacheSize != 0 {
		c.CacheSize = source.CacheSize
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
}

// New creates the embedder named by cfg.Provider.
func New(cfg *Config) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		return NewHash(cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
