package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
)

// FindGaps returns transactions created within r that have no audit entry.
// The anti-join runs as one statement so the result reflects a single
// snapshot of both tables.
func (s *Store) FindGaps(ctx context.Context, r timerange.Range) ([]domain.Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if r.HasStart() {
		where = append(where, "pt.created_at >= ?")
		args = append(args, s.dialect.TimeValue(r.Start))
	}
	if r.HasEnd() {
		where = append(where, "pt.created_at < ?")
		args = append(args, s.dialect.TimeValue(r.End))
	}
	where = append(where, "al.audit_log_id IS NULL")

	query := `
SELECT ` + transactionColumns + `
FROM payment_transactions pt
LEFT JOIN audit_logs al ON al.payment_transaction_id = pt.payment_transaction_id
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY pt.created_at ASC, pt.payment_transaction_id ASC
`
	rows, err := s.sqlDB.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find gaps: %w", err)
	}
	defer rows.Close()

	gaps := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		gaps = append(gaps, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gaps: %w", err)
	}
	return gaps, nil
}
