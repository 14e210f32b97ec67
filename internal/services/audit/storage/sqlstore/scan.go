package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
)

const transactionColumns = `pt.payment_transaction_id, pt.merchant_id, pt.amount, pt.currency,
	pt.current_state, pt.created_at, pt.retry_count, pt.failure_reason`

const auditColumns = `audit_log_id, payment_transaction_id, event_id, event_type, previous_state,
	new_state, timestamp, source_service, correlation_id, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		txn           domain.Transaction
		state         string
		createdAt     sqldialect.ScanTime
		failureReason sql.NullString
	)
	if err := row.Scan(
		&txn.ID,
		&txn.MerchantID,
		&txn.Amount,
		&txn.Currency,
		&state,
		&createdAt,
		&txn.RetryCount,
		&failureReason,
	); err != nil {
		return domain.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	txn.State = domain.State(state)
	txn.CreatedAt = createdAt.Time
	if failureReason.Valid {
		reason := failureReason.String
		txn.FailureReason = &reason
	}
	return txn, nil
}

func scanAuditEntry(row rowScanner) (domain.AuditEntry, error) {
	var (
		entry         domain.AuditEntry
		eventType     string
		previousState sql.NullString
		newState      string
		timestamp     sqldialect.ScanTime
		correlationID sql.NullString
		metadata      sql.NullString
	)
	if err := row.Scan(
		&entry.ID,
		&entry.TransactionID,
		&entry.EventID,
		&eventType,
		&previousState,
		&newState,
		&timestamp,
		&entry.SourceService,
		&correlationID,
		&metadata,
	); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("scan audit entry: %w", err)
	}
	entry.EventType = domain.EventType(eventType)
	entry.NewState = domain.State(newState)
	entry.Timestamp = timestamp.Time
	if previousState.Valid {
		prev := domain.State(previousState.String)
		entry.PreviousState = &prev
	}
	if correlationID.Valid {
		id := correlationID.String
		entry.CorrelationID = &id
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("decode metadata for %s: %w", entry.EventID, err)
		}
	}
	return entry, nil
}

func encodeMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func nullableState(state *domain.State) any {
	if state == nil {
		return nil
	}
	return string(*state)
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
