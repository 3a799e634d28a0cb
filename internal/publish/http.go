package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPConfig configures the HTTP NDJSON publisher.
type HTTPConfig struct {
	// Address is the HTTP endpoint batches are POSTed to.
	Address string `yaml:"address"`

	// Headers are additional HTTP headers to include in requests.
	Headers map[string]string `yaml:"headers"`

	// Compression specifies the request body compression algorithm.
	// Valid values: none, gzip, zstd, zlib, snappy. Defaults to gzip.
	Compression string `yaml:"compression"`

	// Timeout is the maximum duration for one publish request.
	// Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// KeepAlive enables HTTP keep-alive connections. Defaults to true.
	KeepAlive *bool `yaml:"keep_alive"`
}

// ApplyDefaults applies default values to unset fields.
func (c *HTTPConfig) ApplyDefaults() {
	if c.Compression == "" {
		c.Compression = CompressionGzip
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *HTTPConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("http.address is required")
	}

	if !validCompression(c.Compression) {
		return fmt.Errorf("invalid compression type: %s", c.Compression)
	}

	return nil
}

// IsKeepAlive returns whether HTTP keep-alive is enabled.
func (c *HTTPConfig) IsKeepAlive() bool {
	if c.KeepAlive == nil {
		return true
	}

	return *c.KeepAlive
}

// datumJSON is the NDJSON wire schema for one datum.
type datumJSON struct {
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp string            `json:"timestamp"`
	Value     float64           `json:"value"`
}

// HTTP publishes batches to an HTTP endpoint as newline-delimited JSON,
// one line per datum. Each Publish call issues exactly one request.
type HTTP struct {
	log        logrus.FieldLogger
	cfg        HTTPConfig
	client     *http.Client
	compressor *compressor
}

var _ Publisher = (*HTTP)(nil)

// NewHTTP creates a new HTTP publisher.
func NewHTTP(log logrus.FieldLogger, cfg HTTPConfig) (*HTTP, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	comp, err := newCompressor(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:      4,
		IdleConnTimeout:   90 * time.Second,
		DisableKeepAlives: !cfg.IsKeepAlive(),
	}

	return &HTTP{
		log:        log.WithField("publisher", "http"),
		cfg:        cfg,
		client:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		compressor: comp,
	}, nil
}

// Name returns the publisher identifier.
func (p *HTTP) Name() string { return "http" }

// Start initializes the publisher.
func (p *HTTP) Start(_ context.Context) error { return nil }

// Publish POSTs the batch to the configured endpoint.
func (p *HTTP) Publish(ctx context.Context, batch Batch) error {
	var buf bytes.Buffer
	buf.Grow(len(batch.Data) * 192)

	encoder := json.NewEncoder(&buf)

	for _, d := range batch.Data {
		line := datumJSON{
			Namespace: batch.Namespace,
			Name:      d.Name,
			Timestamp: d.Timestamp.UTC().Format(time.RFC3339Nano),
			Value:     d.Value,
		}

		if len(d.Tags) > 0 {
			line.Tags = make(map[string]string, len(d.Tags))
			for _, t := range d.Tags {
				line.Tags[t.Name] = t.Value
			}
		}

		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("encoding datum: %w", err)
		}
	}

	data := buf.Bytes()

	compressed, err := p.compressor.compress(data)
	if err != nil {
		return fmt.Errorf("compressing body: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, p.cfg.Address, bytes.NewReader(compressed),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")

	if encoding := p.compressor.contentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	// Drain response body to enable connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	p.log.WithFields(logrus.Fields{
		"datums":     len(batch.Data),
		"bytes":      len(data),
		"compressed": len(compressed),
	}).Debug("Published batch via HTTP")

	return nil
}

// Stop shuts down the publisher.
func (p *HTTP) Stop() error {
	p.client.CloseIdleConnections()

	if p.compressor != nil {
		return p.compressor.close()
	}

	return nil
}
