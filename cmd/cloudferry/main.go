package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloudferry/cloudferry/internal/daemon"
	"github.com/cloudferry/cloudferry/internal/migrate"
	"github.com/cloudferry/cloudferry/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloudferry",
		Short: "Application metrics export daemon",
		Long: `cloudferry accumulates application performance measurements
in memory and periodically ships them, batched, to a remote metrics
backend (CloudWatch, HTTP, Prometheus remote write or ClickHouse).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"path to config file (required)",
	)
	cmd.Flags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	cmd.AddCommand(versionCmd())
	cmd.AddCommand(migrateCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func migrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ClickHouse schema for the clickhouse backend",
	}

	cmd.PersistentFlags().StringVar(
		&dsn, "dsn", "",
		`ClickHouse connection string, e.g. "clickhouse://host:9000/default"`,
	)

	// The connection string comes from --dsn, or from the clickhouse
	// section of the daemon config when --config is given instead.
	runner := func() (*migrate.Runner, error) {
		log := newLogger()

		if dsn != "" {
			return migrate.NewRunner(log, dsn), nil
		}

		if cfgFile != "" {
			cfg, err := daemon.LoadConfig(cfgFile)
			if err != nil {
				return nil, fmt.Errorf("loading config: %w", err)
			}

			if cfg.Publish.ClickHouse.Endpoint == "" {
				return nil, fmt.Errorf("config has no clickhouse endpoint")
			}

			return migrate.NewRunner(log, migrate.DSN(cfg.Publish.ClickHouse)), nil
		}

		return nil, fmt.Errorf("either --dsn or --config is required")
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := runner()
				if err != nil {
					return err
				}

				return r.Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := runner()
				if err != nil {
					return err
				}

				return r.Down()
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := runner()
				if err != nil {
					return err
				}

				version, dirty, err := r.Version()
				if errors.Is(err, migrate.ErrNoSchema) {
					fmt.Println("no schema applied")

					return nil
				}

				if err != nil {
					return err
				}

				if dirty {
					fmt.Printf("version %d (dirty)\n", version)
				} else {
					fmt.Printf("version %d\n", version)
				}

				return nil
			},
		},
	)

	return cmd
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return log
}

func run(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if cfgFile == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := daemon.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	d, err := daemon.New(ctx, log, cfg)
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}

	log.Info("Starting cloudferry")

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down cloudferry")

	if err := d.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping daemon: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}
