package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/eryajf/promwrite"
	"github.com/sirupsen/logrus"
)

// RemoteWriteConfig configures the Prometheus remote-write publisher.
type RemoteWriteConfig struct {
	// URL is the remote write endpoint, e.g.
	// "http://localhost:8428/api/v1/write".
	URL string `yaml:"url"`
}

// Validate validates the configuration.
func (c *RemoteWriteConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("remote_write.url is required")
	}

	return nil
}

// RemoteWrite publishes batches to a Prometheus remote-write endpoint.
// Metric names are rewritten into the Prometheus charset and the batch
// namespace is carried as a "namespace" label.
type RemoteWrite struct {
	log    logrus.FieldLogger
	cfg    RemoteWriteConfig
	client *promwrite.Client
}

var _ Publisher = (*RemoteWrite)(nil)

// NewRemoteWrite creates a new remote-write publisher.
func NewRemoteWrite(log logrus.FieldLogger, cfg RemoteWriteConfig) (*RemoteWrite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &RemoteWrite{
		log:    log.WithField("publisher", "remote_write"),
		cfg:    cfg,
		client: promwrite.NewClient(cfg.URL),
	}, nil
}

// Name returns the publisher identifier.
func (p *RemoteWrite) Name() string { return "remote_write" }

// Start initializes the publisher.
func (p *RemoteWrite) Start(_ context.Context) error { return nil }

// Publish writes one batch as a single remote-write request.
func (p *RemoteWrite) Publish(ctx context.Context, batch Batch) error {
	if len(batch.Data) == 0 {
		// Remote write has no notion of an empty request; nothing to ship.
		return nil
	}

	series := make([]promwrite.TimeSeries, 0, len(batch.Data))
	for _, d := range batch.Data {
		series = append(series, toTimeSeries(batch.Namespace, d))
	}

	req := &promwrite.WriteRequest{TimeSeries: series}

	if _, err := p.client.Write(ctx, req); err != nil {
		return fmt.Errorf("writing time series: %w", err)
	}

	p.log.WithField("series", len(series)).Debug("Published batch via remote write")

	return nil
}

// Stop shuts down the publisher.
func (p *RemoteWrite) Stop() error { return nil }

func toTimeSeries(namespace string, d Datum) promwrite.TimeSeries {
	labels := make([]promwrite.Label, 0, 2+len(d.Tags))
	labels = append(labels,
		promwrite.Label{Name: "__name__", Value: sanitizeLabelValue(d.Name)},
		promwrite.Label{Name: "namespace", Value: namespace},
	)

	for _, t := range d.Tags {
		labels = append(labels, promwrite.Label{
			Name:  sanitizeLabelValue(t.Name),
			Value: t.Value,
		})
	}

	return promwrite.TimeSeries{
		Labels: labels,
		Sample: promwrite.Sample{
			Time:  d.Timestamp,
			Value: d.Value,
		},
	}
}

// sanitizeLabelValue maps a dotted metric or tag name into the
// [a-zA-Z0-9_] charset Prometheus requires.
func sanitizeLabelValue(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
