package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
)

// ListAuditEntries returns entries matching filter in authoritative order:
// timestamp ascending, then ID ascending. Rows are fully read and closed
// before returning.
func (s *Store) ListAuditEntries(ctx context.Context, filter storage.AuditFilter) ([]domain.AuditEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if err := filter.Range.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if id := strings.TrimSpace(filter.TransactionID); id != "" {
		where = append(where, "payment_transaction_id = ?")
		args = append(args, id)
	}
	if filter.Range.HasStart() {
		where = append(where, "timestamp >= ?")
		args = append(args, s.dialect.TimeValue(filter.Range.Start))
	}
	if filter.Range.HasEnd() {
		where = append(where, "timestamp < ?")
		args = append(args, s.dialect.TimeValue(filter.Range.End))
	}

	query := "SELECT " + auditColumns + "\nFROM audit_logs"
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY timestamp ASC, audit_log_id ASC\nLIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.sqlDB.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
