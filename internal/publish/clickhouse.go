package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
)

// ClickHouseConfig configures the ClickHouse publisher.
type ClickHouseConfig struct {
	// Endpoint is the ClickHouse native protocol address.
	Endpoint string `yaml:"endpoint"`

	// Database is the target database name.
	Database string `yaml:"database"`

	// Table is the target table name. Defaults to "measurements".
	Table string `yaml:"table"`

	// Username for ClickHouse authentication.
	Username string `yaml:"username"`

	// Password for ClickHouse authentication.
	Password string `yaml:"password"`
}

// ApplyDefaults applies default values to unset fields.
func (c *ClickHouseConfig) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "default"
	}

	if c.Table == "" {
		c.Table = "measurements"
	}
}

// Validate validates the configuration.
func (c *ClickHouseConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("clickhouse.endpoint is required")
	}

	return nil
}

// ClickHouse publishes batches into a ClickHouse table, one row per datum.
type ClickHouse struct {
	log  logrus.FieldLogger
	cfg  ClickHouseConfig
	conn clickhouse.Conn
}

var _ Publisher = (*ClickHouse)(nil)

// NewClickHouse creates a new ClickHouse publisher.
func NewClickHouse(log logrus.FieldLogger, cfg ClickHouseConfig) (*ClickHouse, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ClickHouse{
		log: log.WithField("publisher", "clickhouse"),
		cfg: cfg,
	}, nil
}

// Name returns the publisher identifier.
func (p *ClickHouse) Name() string { return "clickhouse" }

// Start opens the ClickHouse connection.
func (p *ClickHouse) Start(ctx context.Context) error {
	opts := &clickhouse.Options{
		Addr: []string{p.cfg.Endpoint},
		Auth: clickhouse.Auth{
			Database: p.cfg.Database,
			Username: p.cfg.Username,
			Password: p.cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("opening ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("pinging ClickHouse: %w", err)
	}

	p.conn = conn

	p.log.WithField("endpoint", p.cfg.Endpoint).
		Info("ClickHouse publisher connected")

	return nil
}

// Publish inserts the batch as one prepared batch.
func (p *ClickHouse) Publish(ctx context.Context, batch Batch) error {
	if len(batch.Data) == 0 {
		// ClickHouse rejects empty prepared batches; nothing to insert.
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s.%s (
		namespace, name, tags, timestamp, value, inserted_at
	)`, p.cfg.Database, p.cfg.Table)

	ins, err := p.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}

	now := time.Now()

	for _, d := range batch.Data {
		tags := make(map[string]string, len(d.Tags))
		for _, t := range d.Tags {
			tags[t.Name] = t.Value
		}

		if err := ins.Append(
			batch.Namespace, d.Name, tags, d.Timestamp, d.Value, now,
		); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}

	if err := ins.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	p.log.WithField("rows", len(batch.Data)).Debug("Published batch to ClickHouse")

	return nil
}

// Stop closes the ClickHouse connection.
func (p *ClickHouse) Stop() error {
	if p.conn != nil {
		return p.conn.Close()
	}

	return nil
}
