// Package publish defines the outbound batch-publish capability and its
// backend implementations (CloudWatch, HTTP, Prometheus remote write,
// ClickHouse).
package publish

import (
	"context"
	"time"
)

// Tag is a name/value pair attached to a datum, used for filtering
// in the remote backend.
type Tag struct {
	Name  string
	Value string
}

// Datum is a single measurement destined for the remote backend.
type Datum struct {
	Name      string
	Tags      []Tag
	Timestamp time.Time
	Value     float64
}

// Batch is the full set of datums drained in one send cycle,
// published as a single remote request scoped to a namespace.
type Batch struct {
	Namespace string
	Data      []Datum
}

// Publisher writes metric batches to a remote destination.
type Publisher interface {
	// Name returns the publisher's identifier for logging.
	Name() string
	// Start initializes the publisher.
	Start(ctx context.Context) error
	// Publish writes one batch to the destination.
	Publish(ctx context.Context, batch Batch) error
	// Stop shuts down the publisher and releases its resources.
	Stop() error
}
