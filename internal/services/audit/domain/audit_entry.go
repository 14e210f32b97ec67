package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BackfillEventIDPrefix prefixes event IDs of synthetic entries.
	BackfillEventIDPrefix = "BACKFILL-"
	// BackfillSourceService is the originating service of synthetic entries.
	BackfillSourceService = "audit-backfill"
	// BackfillReasonMissingTrail is the metadata reason on synthetic entries.
	BackfillReasonMissingTrail = "missing_audit_trail"
)

// AuditEntry records one state transition of a transaction.
type AuditEntry struct {
	ID            int64
	TransactionID string
	EventID       string
	EventType     EventType
	PreviousState *State
	NewState      State
	Timestamp     time.Time
	SourceService string
	CorrelationID *string
	Metadata      map[string]any
}

// Validate checks the fields required to append an entry.
func (e AuditEntry) Validate() error {
	switch {
	case strings.TrimSpace(e.TransactionID) == "":
		return fmt.Errorf("transaction id is required")
	case strings.TrimSpace(e.EventID) == "":
		return fmt.Errorf("event id is required")
	case strings.TrimSpace(string(e.EventType)) == "":
		return fmt.Errorf("event type is required")
	case strings.TrimSpace(string(e.NewState)) == "":
		return fmt.Errorf("new state is required")
	case e.Timestamp.IsZero():
		return fmt.Errorf("timestamp is required")
	case strings.TrimSpace(e.SourceService) == "":
		return fmt.Errorf("source service is required")
	}
	return nil
}

// BackfillEventID derives the deterministic event ID of the synthetic entry
// for a transaction.
func BackfillEventID(transactionID string) string {
	return BackfillEventIDPrefix + transactionID
}

// NewSyntheticInitiation builds the entry that closes a gap for txn. The entry
// is stamped at the transaction's creation time so it never sorts after
// genuine history appended later.
func NewSyntheticInitiation(txn Transaction, runID string) AuditEntry {
	entry := AuditEntry{
		TransactionID: txn.ID,
		EventID:       BackfillEventID(txn.ID),
		EventType:     EventSyntheticInitiation,
		PreviousState: nil,
		NewState:      txn.State,
		Timestamp:     txn.CreatedAt.UTC(),
		SourceService: BackfillSourceService,
		Metadata: map[string]any{
			"reason": BackfillReasonMissingTrail,
		},
	}
	if runID = strings.TrimSpace(runID); runID != "" {
		entry.CorrelationID = &runID
		entry.Metadata["backfill_run_id"] = runID
	}
	return entry
}
