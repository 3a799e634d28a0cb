// Package daemon composes the adapter, the publish backend, the runtime
// collector and the periodic send scheduler.
package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudferry/cloudferry/internal/adapter"
	"github.com/cloudferry/cloudferry/internal/collector"
	"github.com/cloudferry/cloudferry/internal/health"
	"github.com/cloudferry/cloudferry/internal/publish"
)

// Daemon is the top-level orchestrator for cloudferry.
type Daemon interface {
	// Start initializes all components and begins the send schedule.
	Start(ctx context.Context) error
	// Stop drains a final batch and shuts down all components.
	Stop() error
}

type daemon struct {
	log       logrus.FieldLogger
	cfg       *Config
	metrics   *health.Metrics
	publisher publish.Publisher
	adapter   *adapter.Adapter
	collector *collector.Runtime

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Daemon.
func New(ctx context.Context, log logrus.FieldLogger, cfg *Config) (Daemon, error) {
	d := &daemon{
		log:     log.WithField("component", "daemon"),
		cfg:     cfg,
		metrics: health.NewMetrics(log, cfg.Health),
		done:    make(chan struct{}),
	}

	pub, err := publish.New(ctx, log, cfg.Publish)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}

	d.publisher = pub

	// Default the hostname tag to the OS hostname when unset.
	adapterCfg := cfg.Adapter
	if adapterCfg.Hostname == "" {
		if hn, err := os.Hostname(); err == nil {
			adapterCfg.Hostname = hn
		}
	}

	a, err := adapter.New(log, pub, adapterCfg)
	if err != nil {
		return nil, fmt.Errorf("creating adapter: %w", err)
	}

	d.adapter = a

	if cfg.Collector.IsEnabled() {
		d.collector = collector.NewRuntime(
			log, cfg.Collector, d.recorder(),
		)
	}

	return d, nil
}

// recorder wraps the adapter so every recorded measurement also bumps
// the health counter.
func (d *daemon) recorder() collector.Recorder {
	return recorderFunc(func(name string, value float64) {
		d.adapter.AddValue(name, value)
		d.metrics.MeasurementsRecorded.Inc()
	})
}

type recorderFunc func(name string, value float64)

func (f recorderFunc) AddValue(name string, value float64) { f(name, value) }

func (d *daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if d.cfg.Health.IsEnabled() {
		if err := d.metrics.Start(ctx); err != nil {
			cancel()

			return fmt.Errorf("starting health metrics: %w", err)
		}
	}

	if err := d.publisher.Start(ctx); err != nil {
		cancel()

		return fmt.Errorf("starting publisher %s: %w", d.publisher.Name(), err)
	}

	if d.collector != nil {
		if err := d.collector.Start(ctx); err != nil {
			cancel()

			return fmt.Errorf("starting collector: %w", err)
		}
	}

	// Hand the cancel func over only once the loop is actually launched.
	// Stop waits on the loop through d.done, so it must not see a cancel
	// func when no loop is running.
	d.cancel = cancel
	go d.runLoop(ctx)

	d.log.WithFields(logrus.Fields{
		"namespace":     d.adapter.Namespace(),
		"backend":       d.publisher.Name(),
		"send_interval": d.cfg.SendInterval,
	}).Info("Daemon started")

	return nil
}

// runLoop drives the periodic send schedule. A failed send is logged and
// the loop keeps going; the buffer is already accumulating the next batch.
func (d *daemon) runLoop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sendOnce(ctx)
		}
	}
}

func (d *daemon) sendOnce(ctx context.Context) {
	backend := d.publisher.Name()
	pending := d.adapter.Pending()
	start := time.Now()

	err := d.adapter.Send(ctx)

	d.metrics.SendDuration.Observe(time.Since(start).Seconds())
	d.metrics.BatchSize.Observe(float64(pending))
	d.metrics.PendingMeasurements.Set(float64(d.adapter.Pending()))

	if err != nil {
		d.metrics.PublishErrors.WithLabelValues(backend).Inc()
		d.log.WithError(err).Error("Send failed, measurements dropped")

		return
	}

	d.metrics.BatchesSent.WithLabelValues(backend).Inc()
}

func (d *daemon) Stop() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}

	if d.collector != nil {
		if err := d.collector.Stop(); err != nil {
			d.log.WithError(err).Error("Collector stop failed")
		}
	}

	// Final drain so measurements recorded since the last tick are not
	// silently lost on shutdown.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.adapter.Send(flushCtx); err != nil {
		d.log.WithError(err).Error("Final send failed")
	}

	if err := d.adapter.Stop(); err != nil {
		d.log.WithError(err).Error("Adapter stop failed")
	}

	return d.metrics.Stop()
}
