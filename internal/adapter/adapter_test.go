package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudferry/cloudferry/internal/publish"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

// fakePublisher records every published batch and can be told to fail.
type fakePublisher struct {
	mu      sync.Mutex
	batches []publish.Batch
	err     error

	// onPublish runs inside Publish, before recording.
	onPublish func()

	stops int
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) Start(_ context.Context) error { return nil }

func (f *fakePublisher) Publish(_ context.Context, batch publish.Batch) error {
	if f.onPublish != nil {
		f.onPublish()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.batches = append(f.batches, batch)

	return nil
}

func (f *fakePublisher) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stops++

	return nil
}

func (f *fakePublisher) published() []publish.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.batches
}

func newTestAdapter(t *testing.T, pub *fakePublisher, cfg Config) *Adapter {
	t.Helper()

	a, err := New(testLog(), pub, cfg)
	require.NoError(t, err)

	return a
}

func TestNew_BuildsTagSet(t *testing.T) {
	tests := []struct {
		name        string
		application string
		hostname    string
		want        []publish.Tag
	}{
		{
			name:        "both",
			application: "orders",
			hostname:    "host1",
			want: []publish.Tag{
				{Name: "application", Value: "orders"},
				{Name: "hostname", Value: "host1"},
			},
		},
		{
			name:        "application only",
			application: "orders",
			want: []publish.Tag{
				{Name: "application", Value: "orders"},
			},
		},
		{
			name:     "hostname only",
			hostname: "host1",
			want: []publish.Tag{
				{Name: "hostname", Value: "host1"},
			},
		},
		{
			name: "neither",
			want: []publish.Tag{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, &fakePublisher{}, Config{
				Namespace:   "MyApp/Prod",
				Application: tt.application,
				Hostname:    tt.hostname,
			})

			assert.ElementsMatch(t, tt.want, a.Tags())
		})
	}
}

func TestNew_NamespaceValidation(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
	}{
		{"empty", ""},
		{"reserved prefix", "AWS/EC2"},
		{"too long", strings.Repeat("n", 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testLog(), &fakePublisher{}, Config{
				Namespace: tt.namespace,
			})
			require.Error(t, err)
		})
	}
}

func TestNew_NilPublisher(t *testing.T) {
	_, err := New(testLog(), nil, Config{Namespace: "MyApp/Prod"})
	require.Error(t, err)
}

func TestMustNew_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(testLog(), &fakePublisher{}, Config{Namespace: "AWS/Reserved"})
	})
}

func TestAddValue_PrefixAndOrder(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{
		Namespace: "MyApp/Prod",
		Prefix:    "webapp.",
	})

	a.AddValue("sql.duration", 12.5)
	a.AddValue("sql.duration", 7.0)

	require.NoError(t, a.Send(context.Background()))

	batches := pub.published()
	require.Len(t, batches, 1)
	assert.Equal(t, "MyApp/Prod", batches[0].Namespace)

	require.Len(t, batches[0].Data, 2)
	assert.Equal(t, "webapp.sql.duration", batches[0].Data[0].Name)
	assert.Equal(t, 12.5, batches[0].Data[0].Value)
	assert.Equal(t, 7.0, batches[0].Data[1].Value)

	// Same second, same instant.
	assert.True(t, batches[0].Data[0].Timestamp.Equal(batches[0].Data[1].Timestamp))
}

func TestSend_ConcurrentAddValueNoLossNoDuplication(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{Namespace: "MyApp/Prod"})

	const (
		writers   = 16
		perWriter = 250
	)

	var wg sync.WaitGroup

	for w := 0; w < writers; w++ {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := 0; i < perWriter; i++ {
				a.AddValue(fmt.Sprintf("m.%d.%d", w, i), float64(i))
			}
		}(w)
	}

	wg.Wait()

	require.NoError(t, a.Send(context.Background()))

	batches := pub.published()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Data, writers*perWriter)

	// Each measurement exactly once.
	seen := make(map[string]int, writers*perWriter)
	for _, d := range batches[0].Data {
		seen[d.Name]++
	}

	assert.Len(t, seen, writers*perWriter)
	for name, n := range seen {
		assert.Equal(t, 1, n, "measurement %s duplicated", name)
	}
}

func TestSend_DrainAtomicity(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{Namespace: "MyApp/Prod"})

	// Measurements recorded while the publish is in flight must land in
	// the next batch.
	pub.onPublish = func() {
		a.AddValue("late", 1)
	}

	a.AddValue("early", 1)
	require.NoError(t, a.Send(context.Background()))

	pub.onPublish = nil
	require.NoError(t, a.Send(context.Background()))

	batches := pub.published()
	require.Len(t, batches, 2)

	require.Len(t, batches[0].Data, 1)
	assert.Equal(t, "early", batches[0].Data[0].Name)

	require.Len(t, batches[1].Data, 1)
	assert.Equal(t, "late", batches[1].Data[0].Name)
}

func TestSend_EmptyBatchStillPublished(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{Namespace: "MyApp/Prod"})

	require.NoError(t, a.Send(context.Background()))

	batches := pub.published()
	require.Len(t, batches, 1)
	assert.Empty(t, batches[0].Data)
}

func TestSend_SkipEmpty(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{
		Namespace: "MyApp/Prod",
		SkipEmpty: true,
	})

	require.NoError(t, a.Send(context.Background()))
	assert.Empty(t, pub.published())

	a.AddValue("m", 1)
	require.NoError(t, a.Send(context.Background()))
	assert.Len(t, pub.published(), 1)
}

func TestSend_ErrorTranslation(t *testing.T) {
	backendErr := errors.New("throttled")
	pub := &fakePublisher{err: backendErr}
	a := newTestAdapter(t, pub, Config{Namespace: "MyApp/Prod"})

	a.AddValue("m", 1)

	err := a.Send(context.Background())
	require.Error(t, err)

	var pubErr *publish.Error
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "fake", pubErr.Backend)
	assert.ErrorIs(t, err, backendErr)

	// The failed batch is gone; no rollback.
	assert.Zero(t, a.Pending())
}

func TestTags_ReturnsCopy(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{
		Namespace:   "MyApp/Prod",
		Application: "orders",
		Hostname:    "host1",
	})

	got := a.Tags()
	require.NotEmpty(t, got)

	// Mutating the returned slice must not touch the tags recorded on
	// measurements.
	got[0].Value = "tampered"

	a.AddValue("m", 1)
	require.NoError(t, a.Send(context.Background()))

	batches := pub.published()
	require.Len(t, batches, 1)

	assert.Equal(t, []publish.Tag{
		{Name: "application", Value: "orders"},
		{Name: "hostname", Value: "host1"},
	}, batches[0].Data[0].Tags)
}

func TestTagStability(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{
		Namespace:   "MyApp/Prod",
		Application: "orders",
		Hostname:    "host1",
	})

	for i := 0; i < 100; i++ {
		a.AddValue("m", float64(i))
	}

	require.NoError(t, a.Send(context.Background()))

	batches := pub.published()
	require.Len(t, batches, 1)

	want := []publish.Tag{
		{Name: "application", Value: "orders"},
		{Name: "hostname", Value: "host1"},
	}

	for _, d := range batches[0].Data {
		assert.Equal(t, want, d.Tags)
	}
}

func TestStop_Idempotent(t *testing.T) {
	pub := &fakePublisher{}
	a := newTestAdapter(t, pub, Config{Namespace: "MyApp/Prod"})

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())

	assert.Equal(t, 1, pub.stops)
}
