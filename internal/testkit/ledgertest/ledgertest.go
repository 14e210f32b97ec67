// Package ledgertest seeds SQL ledgers for tests.
//
// Helpers write straight to payment_transactions and audit_logs so tests can
// shape a ledger without going through the audit engine.
package ledgertest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/shopspring/decimal"
)

// Transaction builds a transaction with fixed merchant and amount.
func Transaction(id string, createdAt time.Time, state domain.State) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		MerchantID: "merchant-1",
		Amount:     decimal.RequireFromString("42.50"),
		Currency:   "USD",
		State:      state,
		CreatedAt:  createdAt.UTC(),
	}
}

// Entry builds a genuine audit entry for txnID.
func Entry(txnID, eventID string, ts time.Time, eventType domain.EventType, newState domain.State) domain.AuditEntry {
	return domain.AuditEntry{
		TransactionID: txnID,
		EventID:       eventID,
		EventType:     eventType,
		NewState:      newState,
		Timestamp:     ts.UTC(),
		SourceService: "payment-service",
	}
}

// InsertTransactions writes txns or fails the test.
func InsertTransactions(tb testing.TB, db *sql.DB, dialect sqldialect.Dialect, txns ...domain.Transaction) {
	tb.Helper()
	for _, txn := range txns {
		var reason any
		if txn.FailureReason != nil {
			reason = *txn.FailureReason
		}
		_, err := db.ExecContext(context.Background(), dialect.Rebind(`
INSERT INTO payment_transactions (
	payment_transaction_id, merchant_id, amount, currency, current_state, created_at, retry_count, failure_reason
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`),
			txn.ID, txn.MerchantID, txn.Amount.String(), txn.Currency, string(txn.State),
			dialect.TimeValue(txn.CreatedAt), txn.RetryCount, reason,
		)
		if err != nil {
			tb.Fatalf("insert transaction %s: %v", txn.ID, err)
		}
	}
}

// InsertEntries writes entries in order or fails the test.
func InsertEntries(tb testing.TB, db *sql.DB, dialect sqldialect.Dialect, entries ...domain.AuditEntry) {
	tb.Helper()
	for _, entry := range entries {
		var prev, correlation, metadata any
		if entry.PreviousState != nil {
			prev = string(*entry.PreviousState)
		}
		if entry.CorrelationID != nil {
			correlation = *entry.CorrelationID
		}
		if entry.Metadata != nil {
			data, err := json.Marshal(entry.Metadata)
			if err != nil {
				tb.Fatalf("encode metadata: %v", err)
			}
			metadata = string(data)
		}
		_, err := db.ExecContext(context.Background(), dialect.Rebind(`
INSERT INTO audit_logs (
	payment_transaction_id, event_id, event_type, previous_state, new_state, timestamp, source_service, correlation_id, metadata
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`),
			entry.TransactionID, entry.EventID, string(entry.EventType), prev, string(entry.NewState),
			dialect.TimeValue(entry.Timestamp), entry.SourceService, correlation, metadata,
		)
		if err != nil {
			tb.Fatalf("insert audit entry %s: %v", entry.EventID, err)
		}
	}
}

// FailInsertsFor installs a SQLite trigger that aborts any audit insert for
// transactionID.
func FailInsertsFor(tb testing.TB, db *sql.DB, transactionID string) {
	tb.Helper()
	stmt := fmt.Sprintf(`
CREATE TRIGGER fail_audit_%d BEFORE INSERT ON audit_logs
WHEN NEW.payment_transaction_id = '%s'
BEGIN
	SELECT RAISE(ABORT, 'injected audit insert failure');
END;
`, time.Now().UnixNano(), transactionID)
	if _, err := db.ExecContext(context.Background(), stmt); err != nil {
		tb.Fatalf("install failure trigger: %v", err)
	}
}

// CountEntries returns the number of audit entries for transactionID.
func CountEntries(tb testing.TB, db *sql.DB, dialect sqldialect.Dialect, transactionID string) int {
	tb.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), dialect.Rebind(
		"SELECT COUNT(*) FROM audit_logs WHERE payment_transaction_id = ?",
	), transactionID).Scan(&n); err != nil {
		tb.Fatalf("count audit entries: %v", err)
	}
	return n
}

// CreatePlatformLedger lays out the ledger the way the payment platform does:
// both tables, no indexes, and the platform's own schema_migrations table.
func CreatePlatformLedger(tb testing.TB, db *sql.DB) {
	tb.Helper()
	const ddl = `
CREATE TABLE schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
);
INSERT INTO schema_migrations (version, applied_at) VALUES ('001_initial', '2024-01-01T00:00:00Z');
CREATE TABLE payment_transactions (
    payment_transaction_id TEXT PRIMARY KEY,
    merchant_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    current_state TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT
);
CREATE TABLE audit_logs (
    audit_log_id INTEGER PRIMARY KEY AUTOINCREMENT,
    payment_transaction_id TEXT NOT NULL REFERENCES payment_transactions (payment_transaction_id),
    event_id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    previous_state TEXT,
    new_state TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    source_service TEXT NOT NULL,
    correlation_id TEXT,
    metadata TEXT
);
`
	if _, err := db.ExecContext(context.Background(), ddl); err != nil {
		tb.Fatalf("create platform ledger: %v", err)
	}
}

// Schema lists every object in a SQLite database as "type|name|sql", sorted.
func Schema(tb testing.TB, db *sql.DB) []string {
	tb.Helper()
	rows, err := db.QueryContext(context.Background(),
		"SELECT type, name, COALESCE(sql, '') FROM sqlite_master ORDER BY type, name")
	if err != nil {
		tb.Fatalf("read sqlite_master: %v", err)
	}
	defer rows.Close()
	var objects []string
	for rows.Next() {
		var kind, name, stmt string
		if err := rows.Scan(&kind, &name, &stmt); err != nil {
			tb.Fatalf("scan sqlite_master: %v", err)
		}
		objects = append(objects, kind+"|"+name+"|"+stmt)
	}
	if err := rows.Err(); err != nil {
		tb.Fatalf("iterate sqlite_master: %v", err)
	}
	return objects
}
