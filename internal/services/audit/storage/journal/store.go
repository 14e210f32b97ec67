// Package journal records replay delivery attempts in a local SQLite file so
// operators can see what a replay run sent and what failed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/platform/storage/sqlmigrate"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
	"github.com/louisbranch/paysignal/internal/services/audit/storage/journal/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed delivery attempt persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a journal SQLite store and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlmigrate.ApplyMigrations(ctx, sqlDB, sqldialect.SQLite, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordAttempt persists one delivery attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.DeliveryAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attempt.RunID = strings.TrimSpace(attempt.RunID)
	attempt.EventID = strings.TrimSpace(attempt.EventID)
	attempt.Channel = strings.TrimSpace(attempt.Channel)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	switch {
	case attempt.RunID == "":
		return fmt.Errorf("run id is required")
	case attempt.EventID == "":
		return fmt.Errorf("event id is required")
	case attempt.Channel == "":
		return fmt.Errorf("channel is required")
	case attempt.Outcome == "":
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO delivery_attempts (
	run_id,
	event_id,
	payment_transaction_id,
	event_type,
	channel,
	outcome,
	delivery_id,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		attempt.RunID,
		attempt.EventID,
		attempt.TransactionID,
		attempt.EventType,
		attempt.Channel,
		attempt.Outcome,
		attempt.DeliveryID,
		attempt.LastError,
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first delivery attempts.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.DeliveryAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	run_id,
	event_id,
	payment_transaction_id,
	event_type,
	channel,
	outcome,
	delivery_id,
	last_error,
	created_at
FROM delivery_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]storage.DeliveryAttempt, 0, limit)
	for rows.Next() {
		var attempt storage.DeliveryAttempt
		var createdAt int64
		if err := rows.Scan(
			&attempt.ID,
			&attempt.RunID,
			&attempt.EventID,
			&attempt.TransactionID,
			&attempt.EventType,
			&attempt.Channel,
			&attempt.Outcome,
			&attempt.DeliveryID,
			&attempt.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt.CreatedAt = time.UnixMilli(createdAt).UTC()
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

var _ storage.AttemptStore = (*Store)(nil)
