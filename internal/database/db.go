// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver registered as "pgx"
	_ "modernc.org/sqlite"             // Pure Go SQLite driver
)

// Driver names the SQL backend
type Driver string

const (
	// DriverSQLite is the embedded single-file backend
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is the server backend
	DriverPostgres Driver = "postgres"
)

// DB wraps the database connection with production-grade configuration
type DB struct {
	conn   *sql.DB
	driver Driver
	name   string // Database name for logging
}

// Config holds database configuration
type Config struct {
	Driver Driver
	DSN    string // file path for sqlite, connection URL for postgres
	Name   string // Friendly name for logging (e.g., "bars")
}

// New creates a new database connection with production-grade configuration
func New(cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	var (
		driverName string
		connStr    string
	)
	switch cfg.Driver {
	case DriverSQLite:
		path := cfg.DSN
		// file: URIs are used as-is (in-memory databases in tests)
		if !strings.HasPrefix(path, "file:") {
			absPath, err := filepath.Abs(path)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			path = absPath
		}
		driverName = "sqlite"
		connStr = buildConnectionString(path)
	case DriverPostgres:
		driverName = "pgx"
		connStr = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{
		conn:   conn,
		driver: cfg.Driver,
		name:   cfg.Name,
	}, nil
}

// Wrap adopts an already opened connection (used by tests with in-memory databases)
func Wrap(conn *sql.DB, driver Driver, name string) *DB {
	return &DB{conn: conn, driver: driver, name: name}
}

// buildConnectionString creates SQLite connection string with the WAL and durability PRAGMAs
func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
	connStr += "&_pragma=temp_store(MEMORY)"

	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"

	return connStr
}

// configureConnectionPool sets up connection pool for long-term operation
func configureConnectionPool(conn *sql.DB) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the friendly database name
func (db *DB) Name() string {
	return db.name
}

// Driver returns the SQL backend in use
func (db *DB) Driver() Driver {
	return db.driver
}

// Rebind rewrites ? placeholders into the driver's native form
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteIdent quotes a table or column identifier. Both backends accept
// double quotes; embedded quotes are doubled.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExists reports whether a table with the exact given name exists
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var query string
	switch db.driver {
	case DriverPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table %s in %s: %w", name, db.name, err)
	}
	return count > 0, nil
}

// WithTransaction executes a function within a database transaction.
// If the function returns an error or panics, the transaction is rolled back.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck pings the database
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}
	return nil
}
