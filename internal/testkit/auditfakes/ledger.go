package auditfakes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
)

// Ledger is an in-memory ledger fake.
type Ledger struct {
	mu           sync.Mutex
	transactions []domain.Transaction
	entries      []domain.AuditEntry
	nextID       int64

	// FindErr is returned by FindGaps when set.
	FindErr error
	// ListErr is returned by ListAuditEntries when set.
	ListErr error
	// BeginErr is returned by BeginBatch when set.
	BeginErr error
	// CommitErr is returned by batch commits when set.
	CommitErr error
	// AppendErrs fails appends for the keyed transaction IDs.
	AppendErrs map[string]error

	Begins    int
	Commits   int
	Rollbacks int
	Lists     []storage.AuditFilter
}

// NewLedger constructs an empty ledger fake.
func NewLedger() *Ledger {
	return &Ledger{AppendErrs: make(map[string]error)}
}

// AddTransactions seeds transactions.
func (l *Ledger) AddTransactions(txns ...domain.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = append(l.transactions, txns...)
}

// AddEntries seeds entries, assigning increasing IDs.
func (l *Ledger) AddEntries(entries ...domain.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range entries {
		l.appendLocked(entry)
	}
}

// Entries returns a copy of committed entries in insertion order.
func (l *Ledger) Entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AuditEntry(nil), l.entries...)
}

// EntriesFor returns committed entries for a transaction.
func (l *Ledger) EntriesFor(transactionID string) []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.AuditEntry
	for _, entry := range l.entries {
		if entry.TransactionID == transactionID {
			out = append(out, entry)
		}
	}
	return out
}

func (l *Ledger) appendLocked(entry domain.AuditEntry) {
	l.nextID++
	entry.ID = l.nextID
	l.entries = append(l.entries, entry)
}

func (l *Ledger) hasHistoryLocked(transactionID string) bool {
	for _, entry := range l.entries {
		if entry.TransactionID == transactionID {
			return true
		}
	}
	return false
}

func (l *Ledger) FindGaps(ctx context.Context, r timerange.Range) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FindErr != nil {
		return nil, l.FindErr
	}
	gaps := make([]domain.Transaction, 0)
	for _, txn := range l.transactions {
		if r.Contains(txn.CreatedAt) && !l.hasHistoryLocked(txn.ID) {
			gaps = append(gaps, txn)
		}
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		if !gaps[i].CreatedAt.Equal(gaps[j].CreatedAt) {
			return gaps[i].CreatedAt.Before(gaps[j].CreatedAt)
		}
		return gaps[i].ID < gaps[j].ID
	})
	return gaps, nil
}

func (l *Ledger) ListAuditEntries(ctx context.Context, filter storage.AuditFilter) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Lists = append(l.Lists, filter)
	if l.ListErr != nil {
		return nil, l.ListErr
	}
	if filter.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	out := make([]domain.AuditEntry, 0)
	for _, entry := range l.entries {
		if id := strings.TrimSpace(filter.TransactionID); id != "" && entry.TransactionID != id {
			continue
		}
		if !filter.Range.Contains(entry.Timestamp) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *Ledger) BeginBatch(ctx context.Context) (storage.AuditBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BeginErr != nil {
		return nil, l.BeginErr
	}
	l.Begins++
	return &batch{ledger: l}, nil
}

// Stats fingerprints committed state.
func (l *Ledger) Stats(ctx context.Context) (storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return storage.Stats{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := sha256.New()
	txSum := sha256.New()
	for _, txn := range l.transactions {
		fmt.Fprintf(io.MultiWriter(sum, txSum), "T|%s|%s|%s\n", txn.ID, txn.State, txn.CreatedAt)
	}
	for _, entry := range l.entries {
		fmt.Fprintf(sum, "A|%d|%s|%s|%s\n", entry.ID, entry.TransactionID, entry.EventID, entry.Timestamp)
	}
	return storage.Stats{
		Transactions:        len(l.transactions),
		AuditEntries:        len(l.entries),
		Checksum:            hex.EncodeToString(sum.Sum(nil)),
		TransactionChecksum: hex.EncodeToString(txSum.Sum(nil)),
	}, nil
}

type batch struct {
	ledger  *Ledger
	pending []domain.AuditEntry
	done    bool
}

func (b *batch) AppendIfAbsent(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.done {
		return fmt.Errorf("audit batch is closed")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	l := b.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.AppendErrs[entry.TransactionID]; err != nil {
		return err
	}
	if l.hasHistoryLocked(entry.TransactionID) {
		return storage.ErrEntryExists
	}
	for _, pending := range b.pending {
		if pending.TransactionID == entry.TransactionID {
			return storage.ErrEntryExists
		}
	}
	b.pending = append(b.pending, entry)
	return nil
}

func (b *batch) Commit() error {
	if b.done {
		return fmt.Errorf("audit batch is closed")
	}
	b.done = true
	l := b.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.CommitErr != nil {
		return l.CommitErr
	}
	for _, entry := range b.pending {
		l.appendLocked(entry)
	}
	l.Commits++
	return nil
}

func (b *batch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	b.ledger.mu.Lock()
	b.ledger.Rollbacks++
	b.ledger.mu.Unlock()
	return nil
}

var (
	_ storage.GapFinder   = (*Ledger)(nil)
	_ storage.AuditLister = (*Ledger)(nil)
	_ storage.AuditWriter = (*Ledger)(nil)
	_ storage.LedgerStats = (*Ledger)(nil)
)
