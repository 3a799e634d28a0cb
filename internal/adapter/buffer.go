package adapter

import (
	"sync"

	"github.com/cloudferry/cloudferry/internal/publish"
)

// Buffer is a thread-safe accumulator of pending measurements.
// Appends and drains are mutually exclusive: a drain observes a complete
// prefix of the append order, and measurements appended while a drain is
// in flight land in the next batch.
type Buffer struct {
	mu   sync.Mutex
	data []publish.Datum
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds one measurement, preserving append order.
func (b *Buffer) Append(d publish.Datum) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, d)
}

// Drain atomically swaps the contents for an empty buffer and returns the
// accumulated measurements in append order. Returned slices are owned by
// the caller.
func (b *Buffer) Drain() []publish.Datum {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := b.data
	b.data = nil

	return data
}

// Len returns the number of pending measurements.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.data)
}
