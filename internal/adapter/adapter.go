// Package adapter accumulates application measurements in memory and ships
// them, batched, to a remote metrics backend under a fixed namespace and
// tag set.
package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudferry/cloudferry/internal/publish"
)

// Adapter bridges in-process instrumentation (AddValue) and a rate-limited
// remote ingestion API (Send). It owns the pending-measurement buffer, the
// per-second timestamp cache and the immutable tag set built at
// construction.
//
// AddValue is safe for arbitrarily many concurrent callers. Send is meant
// to be driven by a single external scheduler and delivers each drained
// measurement at most once: on publish failure the batch is reported as a
// single wrapped error and is not requeued.
//
// Note: the adapter does not split oversized batches. Backends cap request
// sizes (CloudWatch: 1000 datums / ~1 MB per PutMetricData call); keep the
// send cadence high enough that one interval's measurements fit.
type Adapter struct {
	log       logrus.FieldLogger
	publisher publish.Publisher
	namespace string
	prefix    string
	tags      []publish.Tag
	skipEmpty bool

	clock  *secondClock
	buffer *Buffer

	stopOnce sync.Once
	stopErr  error
}

// New creates an Adapter. It fails fast on invalid configuration: a bad
// namespace or tag value is a programmer error, not a runtime condition.
func New(log logrus.FieldLogger, publisher publish.Publisher, cfg Config) (*Adapter, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The tag set is built once and shared by reference across every
	// measurement this adapter produces.
	tags := make([]publish.Tag, 0, 2)
	if cfg.Application != "" {
		tags = append(tags, publish.Tag{Name: "application", Value: cfg.Application})
	}

	if cfg.Hostname != "" {
		tags = append(tags, publish.Tag{Name: "hostname", Value: cfg.Hostname})
	}

	return &Adapter{
		log:       log.WithField("component", "adapter"),
		publisher: publisher,
		namespace: cfg.Namespace,
		prefix:    cfg.Prefix,
		tags:      tags,
		skipEmpty: cfg.SkipEmpty,
		clock:     newSecondClock(time.Now),
		buffer:    NewBuffer(),
	}, nil
}

// MustNew is New, panicking on error.
func MustNew(log logrus.FieldLogger, publisher publish.Publisher, cfg Config) *Adapter {
	a, err := New(log, publisher, cfg)
	if err != nil {
		panic(err)
	}

	return a
}

// Namespace returns the namespace measurements are published under.
func (a *Adapter) Namespace() string { return a.namespace }

// Tags returns a copy of the adapter's immutable tag set. Handing out
// the internal slice would let a caller mutate the tags attached to
// every buffered and future measurement.
func (a *Adapter) Tags() []publish.Tag {
	tags := make([]publish.Tag, len(a.tags))
	copy(tags, a.tags)

	return tags
}

// Pending returns the number of measurements awaiting the next Send.
func (a *Adapter) Pending() int { return a.buffer.Len() }

// AddValue records one measurement named prefix+name, carrying the
// adapter's tag set and the coalesced timestamp for the current second.
// Values are forwarded as-is; the backend's own range limits apply rather
// than dropping data locally.
func (a *Adapter) AddValue(name string, value float64) {
	a.buffer.Append(publish.Datum{
		Name:      a.prefix + name,
		Tags:      a.tags,
		Timestamp: a.clock.Instant(),
		Value:     value,
	})
}

// Send atomically drains the buffer and publishes the drained measurements
// as one batch. Measurements added concurrently during the remote call land
// in the next batch. On backend failure the batch is gone (at-most-once)
// and a single *publish.Error wrapping the cause is returned; the caller
// decides whether to log, alert or escalate.
func (a *Adapter) Send(ctx context.Context) error {
	data := a.buffer.Drain()

	if len(data) == 0 && a.skipEmpty {
		a.log.Debug("Skipping empty send cycle")

		return nil
	}

	batch := publish.Batch{
		Namespace: a.namespace,
		Data:      data,
	}

	if err := a.publisher.Publish(ctx, batch); err != nil {
		return publish.NewError(a.publisher.Name(), err)
	}

	a.log.WithFields(logrus.Fields{
		"namespace": a.namespace,
		"datums":    len(data),
	}).Debug("Sent measurement batch")

	return nil
}

// Stop releases the publisher's underlying resources. Safe to call more
// than once; repeated calls return the first result.
func (a *Adapter) Stop() error {
	a.stopOnce.Do(func() {
		a.stopErr = a.publisher.Stop()
	})

	return a.stopErr
}
