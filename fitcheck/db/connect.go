package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and base filesystem in package globals.
var gooseMu sync.Mutex

// Backends understood by Connect.
const (
	BackendLibSQL = "libsql"
	BackendSQLite = "sqlite"
)

// Connect opens the conversation database, verifies it answers queries, and
// brings the schema up to date.
func Connect(ctx context.Context, backend, dsn string, logger zerolog.Logger) (*sql.DB, error) {
	driver, err := driverFor(backend)
	if err != nil {
		return nil, err
	}

	if err := ensureDir(dsn); err != nil {
		return nil, err
	}

	logger.Info().Str("backend", backend).Str("dsn", dsn).Msg("opening conversation database")

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", backend, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := verify(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

func driverFor(backend string) (string, error) {
	switch backend {
	case BackendLibSQL:
		return "libsql", nil
	case BackendSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database backend %q", backend)
	}
}

// ensureDir creates the parent directory of a local file DSN.
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "://") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create database directory %s: %w", dir, err)
	}
	return nil
}

func verify(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}
