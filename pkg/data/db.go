// Package data persists trained models and assessment history in SQLite or
// PostgreSQL.
package data

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	// DataFileName is the default SQLite database file name.
	DataFileName string = "data.db"

	DriverSQLite   string = "sqlite"
	DriverPostgres string = "postgres"

	pingTimeout = 5 * time.Second
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	createSchemaVersion = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`

	selectSchemaVersion = `SELECT COALESCE(MAX(version), 0) FROM schema_version`
	insertSchemaVersion = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`
)

// DB is a migrated database holding models and assessments.
type DB struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and applies pending migrations. For SQLite
// the dsn is a file path whose directory is created when missing.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn not specified")
	}

	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrapf(err, "error creating database dir: %s", dir)
			}
		}
	case DriverPostgres:
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if driver == DriverSQLite {
		conn.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", driver)
	}

	d := &DB{db: conn, driver: driver}
	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Debug("database ready", "driver", driver)
	return d, nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Driver returns the name of the database driver.
func (d *DB) Driver() string {
	return d.driver
}

// SchemaVersion returns the latest applied migration.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	if d == nil || d.db == nil {
		return 0, errDBNotInitialized
	}
	var v int
	if err := d.db.QueryRowContext(ctx, selectSchemaVersion).Scan(&v); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

type migration struct {
	version int
	file    string
}

func (d *DB) migrations() ([]migration, error) {
	dir := path.Join("sql", d.driver)
	entries, err := fs.ReadDir(f, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list migrations in %s", dir)
	}

	list := make([]migration, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Errorf("migration file without version prefix: %s", name)
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid migration version in %s", name)
		}
		list = append(list, migration{version: v, file: path.Join(dir, name)})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createSchemaVersion); err != nil {
		return errors.Wrap(err, "failed to create schema_version table")
	}

	current, err := d.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	list, err := d.migrations()
	if err != nil {
		return err
	}

	for _, m := range list {
		if m.version <= current {
			continue
		}
		b, err := f.ReadFile(m.file)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration: %s", m.file)
		}

		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "failed to begin migration transaction")
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to apply migration: %s", m.file)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(insertSchemaVersion), m.version, time.Now().UTC().Unix()); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to record migration: %d", m.version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "failed to commit migration: %d", m.version)
		}
		slog.Debug("migration applied", "driver", d.driver, "version", m.version)
	}

	return nil
}

// rebind rewrites ? placeholders to the $n form PostgreSQL expects.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
