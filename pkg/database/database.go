// Package database persists the upload catalog: one row per ingest attempt
// with its outcome. The catalog is intentionally non-authoritative — the
// serving path reads records from memory only, so an operator can wipe the
// table or run without a database at all and nothing but the history
// endpoint changes.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Database wraps the SQL connection together with the normalized driver
// name so query builders can pick placeholder styles declaratively.
type Database struct {
	DB     *sql.DB
	Driver string
}

// Config holds the connection details taken from flags.
type Config struct {
	DBType    string // sqlite (default), genji, duckdb, or pgx (PostgreSQL)
	DBPath    string // file path for file-based drivers
	DBHost    string // PostgreSQL host
	DBPort    int    // PostgreSQL port
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
	Port      int // server port, used in default database file naming
}

// New opens the configured database and tunes the connection pool.
// File-based engines get a single connection so concurrent catalog writes
// serialize at the pool instead of hitting busy errors.
func New(config Config) (*Database, error) {
	driverName := strings.ToLower(strings.TrimSpace(config.DBType))

	var dsn string
	switch driverName {
	case "sqlite", "genji", "duckdb":
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("uploads-%d.%s", config.Port, driverName)
		}
	case "pgx":
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	switch driverName {
	case "sqlite", "genji", "duckdb":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if driverName == "sqlite" {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			tuneSQLite(tuneCtx, db)
			cancel()
		}
	}

	// Cheap liveness probe with timeout so startup never hangs on a dead
	// database server.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	return &Database{DB: db, Driver: driverName}, nil
}

// tuneSQLite applies the WAL/synchronous/busy pragmas that keep catalog
// inserts from stalling uploads. Failures are non-fatal; the defaults are
// merely slower.
func tuneSQLite(ctx context.Context, db *sql.DB) {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=5000;",
	} {
		_, _ = db.ExecContext(ctx, pragma)
	}
}

// InitSchema creates the upload_history table synchronously so the server
// can accept traffic immediately after startup.
func (db *Database) InitSchema() error {
	var schema string
	switch db.Driver {
	case "pgx":
		schema = `
CREATE TABLE IF NOT EXISTS upload_history (
  id               TEXT PRIMARY KEY,
  kind             TEXT,
  filename         TEXT,
  channels         INTEGER,
  duration_seconds DOUBLE PRECISION,
  status           TEXT,
  message          TEXT,
  uploaded_at      BIGINT
);`
	default:
		schema = `
CREATE TABLE IF NOT EXISTS upload_history (
  id               TEXT PRIMARY KEY,
  kind             TEXT,
  filename         TEXT,
  channels         INTEGER,
  duration_seconds REAL,
  status           TEXT,
  message          TEXT,
  uploaded_at      BIGINT
);`
	}

	if _, err := db.DB.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (db *Database) Close() error {
	return db.DB.Close()
}

// placeholder returns the n-th bind marker for the driver: "$n" for
// PostgreSQL, "?" everywhere else. Keeping SQL text driver-agnostic beats
// maintaining per-engine query copies.
func placeholder(driver string, n int) string {
	if driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
