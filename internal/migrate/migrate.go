// Package migrate provisions the ClickHouse schema that the clickhouse
// publish backend writes into. The migrations are embedded so a fresh
// database can be bootstrapped from the binary alone.
package migrate

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // clickhouse:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/cloudferry/cloudferry/internal/publish"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// ErrNoSchema is returned by Version when no migration has ever been
// applied to the database.
var ErrNoSchema = errors.New("schema not provisioned")

// Runner applies the embedded schema migrations to one ClickHouse
// instance, addressed by a clickhouse:// connection string.
type Runner struct {
	log logrus.FieldLogger
	dsn string
}

// NewRunner creates a Runner for the given connection string,
// e.g. "clickhouse://host:9000/default".
func NewRunner(log logrus.FieldLogger, dsn string) *Runner {
	return &Runner{
		log: log.WithField("component", "migrate"),
		dsn: dsn,
	}
}

// DSN builds a clickhouse:// connection string from the publish
// backend's configuration, so the migrate subcommands can reuse the
// daemon config file instead of a hand-assembled URL.
func DSN(cfg publish.ClickHouseConfig) string {
	cfg.ApplyDefaults()

	u := url.URL{
		Scheme: "clickhouse",
		Host:   cfg.Endpoint,
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	return u.String()
}

// Up applies every migration not yet present on the database.
func (r *Runner) Up() error {
	m, err := r.open()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		r.log.Info("Schema already up to date")

		return nil
	} else if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, _, _ := m.Version()
	r.log.WithField("version", version).Info("Schema migrated")

	return nil
}

// Down rolls back the most recent migration only. Unwinding further is
// a deliberate, repeated action.
func (r *Runner) Down() error {
	m, err := r.open()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	r.log.Info("Rolled back one migration")

	return nil
}

// Version reports the schema version currently on the database. It
// returns ErrNoSchema when no migration has been applied yet.
func (r *Runner) Version() (version uint, dirty bool, err error) {
	m, err := r.open()
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, ErrNoSchema
	}

	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}

	return version, dirty, nil
}

func (r *Runner) open() (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, withMultiStatement(r.dsn))
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", r.dsn, err)
	}

	return m, nil
}

// withMultiStatement makes sure the DSN enables multi-statement mode;
// the ClickHouse driver otherwise refuses migration files containing
// more than one statement.
func withMultiStatement(dsn string) string {
	if strings.Contains(dsn, "x-multi-statement") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + "x-multi-statement=true"
}
