// Package storage declares the narrow capabilities the audit engine needs
// from the ledger: gap lookup, ordered audit reads, append-only batched
// writes, and a fingerprint used to prove that read-only runs wrote nothing.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
)

// ErrEntryExists indicates the transaction already has audit history, so a
// synthetic entry must not be written.
var ErrEntryExists = apperrors.New(apperrors.CodeAuditEntryExists, "audit entry already exists for transaction")

// GapFinder finds transactions created in a range that have no audit entry,
// ordered by creation time then ID.
type GapFinder interface {
	FindGaps(ctx context.Context, r timerange.Range) ([]domain.Transaction, error)
}

// AuditFilter selects audit entries for replay.
type AuditFilter struct {
	TransactionID string
	Range         timerange.Range
	Limit         int
}

// AuditLister returns entries matching a filter ordered by timestamp then ID.
type AuditLister interface {
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error)
}

// AuditBatch is one open write transaction. Each AppendIfAbsent is isolated:
// a failed item is rolled back without discarding earlier items.
type AuditBatch interface {
	// AppendIfAbsent writes entry unless its transaction already has any
	// audit entry, in which case it returns ErrEntryExists.
	AppendIfAbsent(ctx context.Context, entry domain.AuditEntry) error
	Commit() error
	Rollback() error
}

// AuditWriter opens append-only write batches.
type AuditWriter interface {
	BeginBatch(ctx context.Context) (AuditBatch, error)
}

// LedgerStats fingerprints the ledger tables.
type LedgerStats interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarizes ledger contents. Checksum covers every row of both tables;
// TransactionChecksum covers payment_transactions alone, which the audit
// engine must never change.
type Stats struct {
	Transactions        int
	AuditEntries        int
	Checksum            string
	TransactionChecksum string
}

// DeliveryAttempt is one durable replay delivery outcome.
type DeliveryAttempt struct {
	ID            int64     `json:"id" yaml:"id"`
	RunID         string    `json:"run_id" yaml:"run_id"`
	EventID       string    `json:"event_id" yaml:"event_id"`
	TransactionID string    `json:"payment_transaction_id" yaml:"payment_transaction_id"`
	EventType     string    `json:"event_type" yaml:"event_type"`
	Channel       string    `json:"channel" yaml:"channel"`
	Outcome       string    `json:"outcome" yaml:"outcome"`
	DeliveryID    string    `json:"delivery_id,omitempty" yaml:"delivery_id,omitempty"`
	LastError     string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// AttemptStore persists replay delivery attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt DeliveryAttempt) error
	ListAttempts(ctx context.Context, limit int) ([]DeliveryAttempt, error)
}
