package publish

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Backend names accepted in Config.Backend.
const (
	BackendCloudWatch  = "cloudwatch"
	BackendHTTP        = "http"
	BackendRemoteWrite = "remote_write"
	BackendClickHouse  = "clickhouse"
)

// Config selects and configures the publish backend.
type Config struct {
	// Backend chooses the destination.
	// Valid values: cloudwatch, http, remote_write, clickhouse.
	// Defaults to cloudwatch.
	Backend string `yaml:"backend"`

	// CloudWatch configures the CloudWatch backend.
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`

	// HTTP configures the HTTP NDJSON backend.
	HTTP HTTPConfig `yaml:"http"`

	// RemoteWrite configures the Prometheus remote-write backend.
	RemoteWrite RemoteWriteConfig `yaml:"remote_write"`

	// ClickHouse configures the ClickHouse backend.
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendCloudWatch
	}
}

// Validate validates the configuration for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendCloudWatch:
		return nil
	case BackendHTTP:
		cfg := c.HTTP
		cfg.ApplyDefaults()

		return cfg.Validate()
	case BackendRemoteWrite:
		return c.RemoteWrite.Validate()
	case BackendClickHouse:
		cfg := c.ClickHouse
		cfg.ApplyDefaults()

		return cfg.Validate()
	default:
		return fmt.Errorf("unknown publish backend: %s", c.Backend)
	}
}

// New constructs the publisher selected by the configuration.
func New(ctx context.Context, log logrus.FieldLogger, cfg Config) (Publisher, error) {
	cfg.ApplyDefaults()

	switch cfg.Backend {
	case BackendCloudWatch:
		return NewCloudWatchFromDefaults(ctx, log, cfg.CloudWatch)
	case BackendHTTP:
		return NewHTTP(log, cfg.HTTP)
	case BackendRemoteWrite:
		return NewRemoteWrite(log, cfg.RemoteWrite)
	case BackendClickHouse:
		return NewClickHouse(log, cfg.ClickHouse)
	default:
		return nil, fmt.Errorf("unknown publish backend: %s", cfg.Backend)
	}
}
