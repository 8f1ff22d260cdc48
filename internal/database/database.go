// Package database is the SQL store behind the webhook handlers. It runs on
// SQLite for single-node deployments and on PostgreSQL when several ingest
// workers share one store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/migrations"
	"github.com/mariovalmir/chatwoot/internal/models"
	"github.com/mariovalmir/chatwoot/internal/retry"
	"github.com/mariovalmir/chatwoot/internal/security"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

type Database struct {
	db        *sql.DB
	driver    string
	encryptor *encryptor
	logger    *logrus.Logger
}

// New opens (creating if needed) a SQLite store at dbPath with encryption
// disabled.
func New(dbPath string) (*Database, error) {
	return Open(context.Background(), models.DatabaseConfig{Driver: migrations.DriverSQLite, Path: dbPath}, nil)
}

// Open connects to the configured store and applies pending migrations.
// Connecting is retried with the startup backoff since the database often
// comes up alongside the service.
func Open(ctx context.Context, cfg models.DatabaseConfig, logger *logrus.Logger) (*Database, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	driver, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	enc, err := newEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == migrations.DriverSQLite {
		// One writer at a time; busy_timeout covers readers.
		db.SetMaxOpenConns(1)
	}

	err = retry.NewBackoff(retry.StartupBackoffConfig()).
		OnRetry(func(attempt int, delay time.Duration, err error) {
			logger.WithError(err).WithFields(logrus.Fields{
				"driver":   driver,
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
			}).Warn("Database not reachable yet, retrying")
		}).
		Retry(ctx, func() error { return db.PingContext(ctx) })
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &Database{db: db, driver: driver, encryptor: enc, logger: logger}
	if err := d.migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"driver":     driver,
		"encryption": enc.enabled(),
	}).Info("Database ready")
	return d, nil
}

func dataSource(cfg models.DatabaseConfig) (driver, dsn string, err error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", migrations.DriverSQLite, "sqlite":
		path := cfg.Path
		if path == "" {
			path = constants.DefaultDatabasePath
		}
		if err := security.ValidateFilePath(path); err != nil {
			return "", "", fmt.Errorf("invalid database path: %w", err)
		}
		return migrations.DriverSQLite, "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", nil
	case migrations.DriverPostgres, "postgresql":
		if cfg.DSN == "" {
			return "", "", fmt.Errorf("postgres driver requires a dsn")
		}
		return migrations.DriverPostgres, cfg.DSN, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Driver returns the database/sql driver name in use.
func (d *Database) Driver() string {
	return d.driver
}

// Ping reports whether the store answers, for health checks.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *Database) rebind(query string) string {
	if d.driver != migrations.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *Database) migrate(ctx context.Context) error {
	ms, err := migrations.Load(d.driver)
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, CreateSchemaMigrationsQuery); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	names, err := d.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	applied := make(map[string]bool, len(names))
	for _, name := range names {
		applied[name] = true
	}

	for _, m := range ms {
		if applied[m.Name] {
			continue
		}
		err := d.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, d.rebind(InsertAppliedMigrationQuery), m.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		d.logger.WithField("migration", m.Name).Info("Applied migration")
	}
	return nil
}

// AppliedMigrations lists the names of applied migrations in order.
func (d *Database) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, SelectAppliedMigrationsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// insertID runs an INSERT ... RETURNING id.
func insertID(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
