// Package sqlstore implements the ledger query gateway on SQLite or
// PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/platform/storage/sqlmigrate"
	"github.com/louisbranch/paysignal/internal/platform/timeouts"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
	"github.com/louisbranch/paysignal/internal/services/audit/storage/sqlstore/migrations"
	_ "modernc.org/sqlite"
)

// Config selects the ledger database.
type Config struct {
	Dialect sqldialect.Dialect
	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN string
	// Migrate applies the embedded schema on open.
	Migrate bool
}

// Store provides SQL-backed ledger access.
type Store struct {
	sqlDB   *sql.DB
	dialect sqldialect.Dialect
}

var (
	_ storage.GapFinder   = (*Store)(nil)
	_ storage.AuditLister = (*Store)(nil)
	_ storage.AuditWriter = (*Store)(nil)
	_ storage.LedgerStats = (*Store)(nil)
)

// Open connects to the ledger, verifies connectivity and optionally applies
// migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "ledger dsn is required")
	}
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = sqldialect.SQLite
	}
	if dialect == sqldialect.SQLite && dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn = filepath.Clean(dsn) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == sqldialect.SQLite {
		// A single writer keeps savepoints and :memory: databases on one connection.
		sqlDB.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeouts.StorePing)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, fmt.Sprintf("ping %s db", dialect), err)
	}

	if cfg.Migrate {
		if err := sqlmigrate.ApplyMigrations(ctx, sqlDB, dialect, migrations.FS, string(dialect)); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB, dialect: dialect}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB exposes the underlying handle for fixtures and diagnostics.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Dialect reports the engine the store talks to.
func (s *Store) Dialect() sqldialect.Dialect {
	if s == nil {
		return ""
	}
	return s.dialect
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}
