package adapter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudferry/cloudferry/internal/publish"
)

func TestBuffer_AppendDrainOrder(t *testing.T) {
	b := NewBuffer()

	for i := 0; i < 10; i++ {
		b.Append(publish.Datum{Name: fmt.Sprintf("m%d", i)})
	}

	assert.Equal(t, 10, b.Len())

	data := b.Drain()
	require.Len(t, data, 10)

	for i, d := range data {
		assert.Equal(t, fmt.Sprintf("m%d", i), d.Name)
	}

	assert.Zero(t, b.Len())
}

func TestBuffer_DrainEmpty(t *testing.T) {
	b := NewBuffer()

	assert.Empty(t, b.Drain())
}

func TestBuffer_AppendAfterDrainLandsInNextBatch(t *testing.T) {
	b := NewBuffer()

	b.Append(publish.Datum{Name: "first"})
	first := b.Drain()

	b.Append(publish.Datum{Name: "second"})
	second := b.Drain()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "first", first[0].Name)
	assert.Equal(t, "second", second[0].Name)
}

func TestBuffer_ConcurrentAppendsAndDrains(t *testing.T) {
	b := NewBuffer()

	const (
		writers   = 8
		perWriter = 500
	)

	var wg sync.WaitGroup

	drained := make(chan []publish.Datum, 64)

	// One drainer racing the writers, mirroring the scheduler calling
	// send while instrumentation keeps appending.
	stop := make(chan struct{})

	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			select {
			case <-stop:
				return
			default:
				drained <- b.Drain()
			}
		}
	}()

	var writerWg sync.WaitGroup

	for w := 0; w < writers; w++ {
		writerWg.Add(1)

		go func() {
			defer writerWg.Done()

			for i := 0; i < perWriter; i++ {
				b.Append(publish.Datum{Value: 1})
			}
		}()
	}

	// Consume drained batches concurrently so the drainer never blocks
	// on a full channel while we wait for the writers.
	go func() {
		writerWg.Wait()
		close(stop)
		wg.Wait()
		close(drained)
	}()

	total := 0
	for batch := range drained {
		total += len(batch)
	}
	total += b.Len()

	assert.Equal(t, writers*perWriter, total)
}
