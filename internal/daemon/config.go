package daemon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudferry/cloudferry/internal/adapter"
	"github.com/cloudferry/cloudferry/internal/collector"
	"github.com/cloudferry/cloudferry/internal/health"
	"github.com/cloudferry/cloudferry/internal/publish"
)

// Config is the top-level configuration for the cloudferry daemon.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// SendInterval is how often buffered measurements are drained and
	// published. Defaults to 60s.
	SendInterval time.Duration `yaml:"send_interval"`

	// Adapter configures the namespace, prefix and tag set.
	Adapter adapter.Config `yaml:"adapter"`

	// Publish configures the remote backend.
	Publish publish.Config `yaml:"publish"`

	// Collector configures the built-in runtime metrics source.
	Collector collector.Config `yaml:"collector"`

	// Health configures the Prometheus health metrics server.
	Health health.Config `yaml:"health"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		SendInterval: 60 * time.Second,
		Health: health.Config{
			Addr: ":9090",
		},
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if c.SendInterval <= 0 {
		return fmt.Errorf("send_interval must be positive")
	}

	if err := c.Adapter.Validate(); err != nil {
		return fmt.Errorf("adapter: %w", err)
	}

	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}
