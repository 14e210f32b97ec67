package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewSyntheticInitiation(t *testing.T) {
	created := time.Date(2024, 1, 1, 9, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	txn := Transaction{
		ID:         "txn-42",
		MerchantID: "m-1",
		Amount:     decimal.RequireFromString("19.90"),
		Currency:   "USD",
		State:      StateFailed,
		CreatedAt:  created,
	}

	entry := NewSyntheticInitiation(txn, "run-1")

	if entry.EventID != "BACKFILL-txn-42" {
		t.Fatalf("event id = %q, want BACKFILL-txn-42", entry.EventID)
	}
	if entry.EventType != EventSyntheticInitiation {
		t.Fatalf("event type = %q", entry.EventType)
	}
	if entry.PreviousState != nil {
		t.Fatalf("previous state = %v, want nil", *entry.PreviousState)
	}
	if entry.NewState != StateFailed {
		t.Fatalf("new state = %q, want %q", entry.NewState, StateFailed)
	}
	if !entry.Timestamp.Equal(created) || entry.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v, want %v in UTC", entry.Timestamp, created)
	}
	if entry.CorrelationID == nil || *entry.CorrelationID != "run-1" {
		t.Fatalf("correlation id = %v, want run-1", entry.CorrelationID)
	}
	if entry.Metadata["backfill_run_id"] != "run-1" || entry.Metadata["reason"] != BackfillReasonMissingTrail {
		t.Fatalf("metadata = %v", entry.Metadata)
	}
	if err := entry.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNewSyntheticInitiationWithoutRunID(t *testing.T) {
	entry := NewSyntheticInitiation(Transaction{ID: "txn-1", State: StatePending, CreatedAt: time.Now()}, " ")
	if entry.CorrelationID != nil {
		t.Fatalf("expected no correlation id, got %q", *entry.CorrelationID)
	}
	if _, ok := entry.Metadata["backfill_run_id"]; ok {
		t.Fatal("expected no run id metadata")
	}
}

func TestAuditEntryValidate(t *testing.T) {
	valid := AuditEntry{
		TransactionID: "txn-1",
		EventID:       "EVT-1",
		EventType:     EventPaymentInitiated,
		NewState:      StatePending,
		Timestamp:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SourceService: "node-api",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AuditEntry)
	}{
		{name: "transaction", mutate: func(e *AuditEntry) { e.TransactionID = " " }},
		{name: "event id", mutate: func(e *AuditEntry) { e.EventID = "" }},
		{name: "event type", mutate: func(e *AuditEntry) { e.EventType = "" }},
		{name: "new state", mutate: func(e *AuditEntry) { e.NewState = "" }},
		{name: "timestamp", mutate: func(e *AuditEntry) { e.Timestamp = time.Time{} }},
		{name: "source", mutate: func(e *AuditEntry) { e.SourceService = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry := valid
			tc.mutate(&entry)
			if err := entry.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestStateKnown(t *testing.T) {
	if !StateCompleted.Known() {
		t.Fatal("expected completed to be known")
	}
	if State("chargeback_pending").Known() {
		t.Fatal("expected unknown state")
	}
	if !EventSyntheticInitiation.Synthetic() || EventPaymentInitiated.Synthetic() {
		t.Fatal("unexpected synthetic classification")
	}
}
