// Package collector samples in-process sources and records the readings
// as measurements.
package collector

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Recorder accepts one measurement at a time. Satisfied by *adapter.Adapter.
type Recorder interface {
	AddValue(name string, value float64)
}

// Config configures the runtime collector.
type Config struct {
	// Enabled enables sampling of Go runtime metrics. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Interval is the sample interval. Defaults to 15s.
	Interval time.Duration `yaml:"interval"`
}

// IsEnabled returns whether the collector should run.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}

	return *c.Enabled
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
}

// Runtime periodically samples Go runtime statistics (heap, GC, goroutines)
// and records them through the Recorder.
type Runtime struct {
	log      logrus.FieldLogger
	cfg      Config
	recorder Recorder

	lastNumGC     uint32
	lastPauseNs   uint64
	lastTotalFree uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRuntime creates a new runtime collector.
func NewRuntime(log logrus.FieldLogger, cfg Config, recorder Recorder) *Runtime {
	cfg.ApplyDefaults()

	return &Runtime{
		log:      log.WithField("component", "collector"),
		cfg:      cfg,
		recorder: recorder,
		done:     make(chan struct{}),
	}
}

// Start begins the sample loop.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	go r.runLoop(ctx)

	r.log.WithField("interval", r.cfg.Interval).Info("Runtime collector started")

	return nil
}

// Stop terminates the sample loop.
func (r *Runtime) Stop() error {
	if r.cancel == nil {
		return nil
	}

	r.cancel()
	<-r.done

	return nil
}

func (r *Runtime) runLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sample()
		}
	}
}

// Sample records one reading of each runtime metric.
func (r *Runtime) Sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r.recorder.AddValue("runtime.goroutines", float64(runtime.NumGoroutine()))
	r.recorder.AddValue("runtime.heap.alloc_bytes", float64(ms.HeapAlloc))
	r.recorder.AddValue("runtime.heap.objects", float64(ms.HeapObjects))
	r.recorder.AddValue("runtime.heap.sys_bytes", float64(ms.HeapSys))

	// Deltas since the previous sample.
	r.recorder.AddValue("runtime.gc.count", float64(ms.NumGC-r.lastNumGC))
	r.recorder.AddValue("runtime.gc.pause_ns", float64(ms.PauseTotalNs-r.lastPauseNs))
	r.recorder.AddValue("runtime.heap.frees", float64(ms.Frees-r.lastTotalFree))

	r.lastNumGC = ms.NumGC
	r.lastPauseNs = ms.PauseTotalNs
	r.lastTotalFree = ms.Frees
}
