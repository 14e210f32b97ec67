package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
)

// BeginBatch opens a write transaction for appending audit entries.
func (s *Store) BeginBatch(ctx context.Context) (storage.AuditBatch, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit batch: %w", err)
	}
	return &batch{tx: tx, store: s}, nil
}

type batch struct {
	tx    *sql.Tx
	store *Store
	seq   int
	done  bool
}

// AppendIfAbsent inserts entry under its own savepoint. The existence check
// and the insert share the savepoint, so a failure of either leaves earlier
// items in the batch untouched.
func (b *batch) AppendIfAbsent(ctx context.Context, entry domain.AuditEntry) (err error) {
	if b.done {
		return fmt.Errorf("audit batch is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validate audit entry: %w", err)
	}
	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	b.seq++
	savepoint := fmt.Sprintf("audit_item_%d", b.seq)
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err == nil {
			if _, releaseErr := b.tx.ExecContext(cleanupCtx, "RELEASE SAVEPOINT "+savepoint); releaseErr != nil {
				err = fmt.Errorf("release savepoint: %w", releaseErr)
			}
			return
		}
		if _, rbErr := b.tx.ExecContext(cleanupCtx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
			return
		}
		_, _ = b.tx.ExecContext(cleanupCtx, "RELEASE SAVEPOINT "+savepoint)
	}()

	dialect := b.store.dialect
	var exists int
	row := b.tx.QueryRowContext(ctx, dialect.Rebind(
		"SELECT 1 FROM audit_logs WHERE payment_transaction_id = ? LIMIT 1",
	), entry.TransactionID)
	switch scanErr := row.Scan(&exists); {
	case scanErr == nil:
		return storage.ErrEntryExists
	case !errors.Is(scanErr, sql.ErrNoRows):
		return fmt.Errorf("check audit history for %s: %w", entry.TransactionID, scanErr)
	}

	_, err = b.tx.ExecContext(ctx, dialect.Rebind(`
INSERT INTO audit_logs (
	payment_transaction_id,
	event_id,
	event_type,
	previous_state,
	new_state,
	timestamp,
	source_service,
	correlation_id,
	metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`),
		entry.TransactionID,
		entry.EventID,
		string(entry.EventType),
		nullableState(entry.PreviousState),
		string(entry.NewState),
		dialect.TimeValue(entry.Timestamp),
		entry.SourceService,
		nullableString(entry.CorrelationID),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry %s: %w", entry.EventID, err)
	}
	return nil
}

func (b *batch) Commit() error {
	if b.done {
		return fmt.Errorf("audit batch is closed")
	}
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

// Rollback discards uncommitted items. It is a no-op after Commit.
func (b *batch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback audit batch: %w", err)
	}
	return nil
}
