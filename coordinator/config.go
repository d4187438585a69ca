package coordinator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/hub"
	"github.com/tailored-agentic-units/switchboard/transport/ws"
	"github.com/tailored-agentic-units/switchboard/turn"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StoragePebble = "pebble"
)

type StorageConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// File for sqlite, directory for pebble; unused by memory
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

type MetricsConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Config holds initialization parameters for every subsystem. Each section
// delegates to that subsystem's own Config.
type Config struct {
	Listen    string           `json:"listen,omitempty" yaml:"listen,omitempty"`
	Hub       hub.Config       `json:"hub" yaml:"hub"`
	Turn      turn.Config      `json:"turn" yaml:"turn"`
	Embedding embedding.Config `json:"embedding" yaml:"embedding"`
	Storage   StorageConfig    `json:"storage" yaml:"storage"`
	WebSocket ws.Config        `json:"websocket" yaml:"websocket"`
	Log       LogConfig        `json:"log" yaml:"log"`
	Metrics   MetricsConfig    `json:"metrics" yaml:"metrics"`

	// Names resolved through the observability registry and fanned out
	Observers []string `json:"observers,omitempty" yaml:"observers,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Listen:    ":8080",
		Hub:       hub.DefaultConfig(),
		Turn:      turn.DefaultConfig(),
		Embedding: embedding.DefaultConfig(),
		Storage: StorageConfig{
			Driver: StorageMemory,
			Path:   "data/switchboard.db",
		},
		WebSocket: ws.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "switchboard",
			Path:      "/metrics",
		},
		Observers: []string{"slog"},
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Listen != "" {
		c.Listen = source.Listen
	}

	c.Hub.Merge(&source.Hub)
	c.Turn.Merge(&source.Turn)
	c.Embedding.Merge(&source.Embedding)
	c.WebSocket.Merge(&source.WebSocket)

	if source.Storage.Driver != "" {
		c.Storage.Driver = source.Storage.Driver
	}
	if source.Storage.Path != "" {
		c.Storage.Path = source.Storage.Path
	}

	if source.Log.Level != "" {
		c.Log.Level = source.Log.Level
	}
	if source.Log.Format != "" {
		c.Log.Format = source.Log.Format
	}

	if source.Metrics.Namespace != "" {
		c.Metrics.Namespace = source.Metrics.Namespace
	}
	if source.Metrics.Path != "" {
		c.Metrics.Path = source.Metrics.Path
	}

	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
}

// LoadConfig reads a YAML config file, merges it with defaults, and returns
// the resulting Config. JSON files parse as YAML too.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// LoadEnv loads variables from the given dotenv files into the process
// environment. Files that do not exist are skipped; variables already set
// win over file values.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv overlays SWITCHBOARD_* variables and resolves the embedding API
// key from the variable named by Embedding.APIKeyEnv.
func (c *Config) ApplyEnv() {
	overlay := map[string]*string{
		"SWITCHBOARD_LISTEN":         &c.Listen,
		"SWITCHBOARD_STORAGE_DRIVER": &c.Storage.Driver,
		"SWITCHBOARD_STORAGE_PATH":   &c.Storage.Path,
		"SWITCHBOARD_LOG_LEVEL":      &c.Log.Level,
		"SWITCHBOARD_LOG_FORMAT":     &c.Log.Format,
	}
	for key, field := range overlay {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*field = v
		}
	}

	if c.Embedding.APIKeyEnv != "" {
		if key := os.Getenv(c.Embedding.APIKeyEnv); key != "" {
			c.Embedding.APIKey = key
		}
	}
}
