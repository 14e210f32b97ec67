package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/channel"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/reconcile"
	"github.com/louisbranch/paysignal/internal/services/audit/replay"
	"github.com/louisbranch/paysignal/internal/testkit/ledgertest"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func openRuntime(t *testing.T) *Runtime {
	t.Helper()
	dir := t.TempDir()
	rt, err := Open(context.Background(), RuntimeConfig{
		Dialect:     sqldialect.SQLite,
		DSN:         filepath.Join(dir, "nested", "ledger.db"),
		Migrate:     true,
		JournalPath: filepath.Join(dir, "journal.db"),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(); err != nil {
			t.Fatalf("close runtime: %v", err)
		}
	})
	return rt
}

func TestBackfillThenReplay(t *testing.T) {
	rt := openRuntime(t)
	db := rt.Store.DB()
	ledgertest.InsertTransactions(t, db, sqldialect.SQLite,
		ledgertest.Transaction("txn-1", day.Add(time.Hour), domain.StateCompleted),
		ledgertest.Transaction("txn-2", day.Add(2*time.Hour), domain.StateFailed),
		ledgertest.Transaction("txn-3", day.Add(3*time.Hour), domain.StateCompleted),
	)
	ledgertest.InsertEntries(t, db, sqldialect.SQLite,
		ledgertest.Entry("txn-3", "evt-3", day.Add(3*time.Hour), domain.EventPaymentInitiated, domain.StateInitiated),
	)

	var progress []reconcile.Progress
	summary, err := rt.Reconciler(func(p reconcile.Progress) { progress = append(progress, p) }).
		Backfill(context.Background(), reconcile.Request{
			Range:     timerange.Range{Start: day, End: day.Add(24 * time.Hour)},
			BatchSize: 100,
		})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if summary.Gaps != 2 || summary.Inserted != 2 || summary.Commits != 1 || len(progress) != 1 {
		t.Fatalf("summary = %+v, progress = %v", summary, progress)
	}

	var out bytes.Buffer
	ch, err := channel.Open(context.Background(), channel.Config{Kind: channel.KindStdout, Out: &out})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	result, err := rt.Dispatcher(ch, replay.WithSleeper(func(context.Context, time.Duration) error { return nil })).
		Replay(context.Background(), replay.Request{Limit: 1000, Delay: time.Millisecond})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Delivered != 3 || result.Channel != channel.KindStdout {
		t.Fatalf("replay summary = %+v", result)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"event_id":"BACKFILL-txn-1"`) || !strings.Contains(lines[0], `"previous_state":null`) {
		t.Fatalf("first line = %s", lines[0])
	}

	attempts, err := rt.Journal.ListAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 3 || attempts[0].RunID != result.RunID {
		t.Fatalf("attempts = %+v", attempts)
	}
}

func TestOpenWithoutJournal(t *testing.T) {
	rt, err := Open(context.Background(), RuntimeConfig{
		DSN:     filepath.Join(t.TempDir(), "ledger.db"),
		Migrate: true,
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if rt.Journal != nil {
		t.Fatal("journal opened without a path")
	}
	if rt.Store.Dialect() != sqldialect.SQLite {
		t.Fatalf("dialect = %q", rt.Store.Dialect())
	}
	// Without a gateway this must be a silent no-op.
	rt.PushMetrics(context.Background(), "audit-backfill")
}
