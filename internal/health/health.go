// Package health exposes Prometheus self-metrics for the daemon.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Config configures the health metrics server.
type Config struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090". Empty string with Enabled=false disables it.
	Addr string `yaml:"addr"`

	// Enabled enables the health metrics server. Defaults to true.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled returns whether the server should run.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}

	return *c.Enabled
}

// Metrics exposes Prometheus metrics for daemon health.
type Metrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	MeasurementsRecorded prometheus.Counter
	BatchesSent          *prometheus.CounterVec
	PublishErrors        *prometheus.CounterVec
	BatchSize            prometheus.Histogram
	SendDuration         prometheus.Histogram
	PendingMeasurements  prometheus.Gauge

	running atomic.Bool
}

// NewMetrics creates a new health metrics server.
func NewMetrics(log logrus.FieldLogger, cfg Config) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		MeasurementsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cloudferry",
			Name:      "measurements_recorded_total",
			Help:      "Total measurements recorded into the buffer.",
		}),
		BatchesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cloudferry",
				Name:      "batches_sent_total",
				Help:      "Total batches published by backend.",
			},
			[]string{"backend"},
		),
		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cloudferry",
				Name:      "publish_errors_total",
				Help:      "Total publish failures by backend.",
			},
			[]string{"backend"},
		),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cloudferry",
			Name:      "batch_size",
			Help:      "Number of datums per published batch.",
			Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000, 2500},
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cloudferry",
			Name:      "send_duration_seconds",
			Help:      "Time to drain and publish one batch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		PendingMeasurements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cloudferry",
			Name:      "pending_measurements",
			Help:      "Measurements buffered and awaiting the next send.",
		}),
	}

	reg.MustRegister(
		m.MeasurementsRecorded,
		m.BatchesSent,
		m.PublishErrors,
		m.BatchSize,
		m.SendDuration,
		m.PendingMeasurements,
	)

	return m
}

// Start begins serving the /metrics endpoint.
func (m *Metrics) Start(_ context.Context) error {
	if m.addr == "" {
		m.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.addr, err)
	}

	m.listener = ln
	m.server = &http.Server{Handler: mux}

	m.running.Store(true)

	go func() {
		m.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := m.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			m.log.WithError(err).Error("Health metrics server error")
		}

		m.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started with ":0"
// to get the OS-assigned port.
func (m *Metrics) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}

	return m.addr
}

// Stop gracefully shuts down the health metrics server.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}
