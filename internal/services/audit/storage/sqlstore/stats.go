package sqlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"time"

	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
)

// Stats counts both ledger tables and hashes every row in key order. Equal
// checksums before and after a run prove the run wrote nothing.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Stats{}, err
	}

	sum := sha256.New()
	txSum := sha256.New()
	var stats storage.Stats

	txRows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM payment_transactions pt
ORDER BY pt.payment_transaction_id ASC
`)
	if err != nil {
		return storage.Stats{}, fmt.Errorf("read transactions: %w", err)
	}
	for txRows.Next() {
		txn, err := scanTransaction(txRows)
		if err != nil {
			_ = txRows.Close()
			return storage.Stats{}, err
		}
		hashTransaction(io.MultiWriter(sum, txSum), txn)
		stats.Transactions++
	}
	if err := txRows.Err(); err != nil {
		_ = txRows.Close()
		return storage.Stats{}, fmt.Errorf("iterate transactions: %w", err)
	}
	_ = txRows.Close()

	auditRows, err := s.sqlDB.QueryContext(ctx, "SELECT "+auditColumns+"\nFROM audit_logs\nORDER BY audit_log_id ASC")
	if err != nil {
		return storage.Stats{}, fmt.Errorf("read audit entries: %w", err)
	}
	defer auditRows.Close()
	for auditRows.Next() {
		entry, err := scanAuditEntry(auditRows)
		if err != nil {
			return storage.Stats{}, err
		}
		hashAuditEntry(sum, entry)
		stats.AuditEntries++
	}
	if err := auditRows.Err(); err != nil {
		return storage.Stats{}, fmt.Errorf("iterate audit entries: %w", err)
	}

	stats.Checksum = hex.EncodeToString(sum.Sum(nil))
	stats.TransactionChecksum = hex.EncodeToString(txSum.Sum(nil))
	return stats, nil
}

func hashTransaction(h io.Writer, txn domain.Transaction) {
	reason := "<nil>"
	if txn.FailureReason != nil {
		reason = *txn.FailureReason
	}
	fmt.Fprintf(h, "T|%s|%s|%s|%s|%s|%s|%d|%s\n",
		txn.ID, txn.MerchantID, txn.Amount.String(), txn.Currency, txn.State,
		txn.CreatedAt.UTC().Format(time.RFC3339Nano), txn.RetryCount, reason)
}

func hashAuditEntry(h hash.Hash, entry domain.AuditEntry) {
	prev := "<nil>"
	if entry.PreviousState != nil {
		prev = string(*entry.PreviousState)
	}
	correlation := "<nil>"
	if entry.CorrelationID != nil {
		correlation = *entry.CorrelationID
	}
	fmt.Fprintf(h, "A|%d|%s|%s|%s|%s|%s|%s|%s|%s|",
		entry.ID, entry.TransactionID, entry.EventID, entry.EventType, prev, entry.NewState,
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.SourceService, correlation)
	keys := make([]string, 0, len(entry.Metadata))
	for key := range entry.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(h, "%s=%v;", key, entry.Metadata[key])
	}
	fmt.Fprintln(h)
}
