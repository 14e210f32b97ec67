package replay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/channel"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/testkit/auditfakes"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

type recordingDeliverer struct {
	calls []channel.Message
	fail  map[string]error
}

func (r *recordingDeliverer) Deliver(ctx context.Context, msg channel.Message) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("delivery context has no deadline")
	}
	r.calls = append(r.calls, msg)
	if err := r.fail[msg.EventID]; err != nil {
		return "", err
	}
	return "dlv-" + msg.EventID, nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func entry(txn, eventID string, ts time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		TransactionID: txn,
		EventID:       eventID,
		EventType:     domain.EventPaymentProcessing,
		NewState:      domain.StateProcessing,
		Timestamp:     ts,
		SourceService: "payment-service",
	}
}

func seedEntries(ledger *auditfakes.Ledger, n int) {
	for i := 0; i < n; i++ {
		ledger.AddEntries(entry("txn-1", fmt.Sprintf("evt-%d", i+1), day.Add(time.Duration(i)*time.Minute)))
	}
}

func newDispatcher(ledger *auditfakes.Ledger, deliverer Deliverer, sleeper *sleepRecorder, opts ...Option) *Dispatcher {
	opts = append([]Option{
		WithSleeper(sleeper.sleep),
		WithRunID(func() string { return "run-fixed" }),
	}, opts...)
	return New(ledger, deliverer, opts...)
}

func TestReplayDeliversInTimestampOrder(t *testing.T) {
	ledger := auditfakes.NewLedger()
	ledger.AddEntries(
		entry("txn-1", "evt-late", day.Add(2*time.Hour)),
		entry("txn-2", "evt-tie-1", day.Add(time.Hour)),
		entry("txn-1", "evt-tie-2", day.Add(time.Hour)),
		entry("txn-2", "evt-early", day),
	)
	deliverer := &recordingDeliverer{}
	sleeper := &sleepRecorder{}

	summary, err := newDispatcher(ledger, deliverer, sleeper).Replay(context.Background(), Request{Limit: 100, Delay: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := []string{"evt-early", "evt-tie-1", "evt-tie-2", "evt-late"}
	if len(deliverer.calls) != len(want) {
		t.Fatalf("deliveries = %d, want %d", len(deliverer.calls), len(want))
	}
	for i, id := range want {
		if deliverer.calls[i].EventID != id {
			t.Fatalf("delivery[%d] = %q, want %q", i, deliverer.calls[i].EventID, id)
		}
	}
	if deliverer.calls[0].Key != "txn-2" {
		t.Fatalf("key = %q, want transaction id", deliverer.calls[0].Key)
	}
	if summary.Matched != 4 || summary.Attempted != 4 || summary.Delivered != 4 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Results[3].DeliveryID != "dlv-evt-late" {
		t.Fatalf("delivery id = %q", summary.Results[3].DeliveryID)
	}
	if len(sleeper.calls) != 4 || sleeper.calls[0] != 50*time.Millisecond {
		t.Fatalf("sleeps = %v, want one 50ms pause per attempt", sleeper.calls)
	}
}

func TestReplayHonorsLimit(t *testing.T) {
	ledger := auditfakes.NewLedger()
	seedEntries(ledger, 7)
	deliverer := &recordingDeliverer{}

	summary, err := newDispatcher(ledger, deliverer, &sleepRecorder{}).Replay(context.Background(), Request{Limit: 5})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if summary.Matched != 5 || len(deliverer.calls) != 5 {
		t.Fatalf("matched = %d, deliveries = %d, want 5", summary.Matched, len(deliverer.calls))
	}
	if deliverer.calls[4].EventID != "evt-5" {
		t.Fatalf("last delivery = %q, want the five earliest", deliverer.calls[4].EventID)
	}
}

func TestReplayPassesFilters(t *testing.T) {
	ledger := auditfakes.NewLedger()
	seedEntries(ledger, 3)
	r := timerange.Range{Start: day, End: day.Add(time.Hour)}

	if _, err := newDispatcher(ledger, &recordingDeliverer{}, &sleepRecorder{}).Replay(context.Background(), Request{
		TransactionID: " txn-1 ",
		Range:         r,
		Limit:         10,
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(ledger.Lists) != 1 {
		t.Fatalf("fetches = %d, want 1", len(ledger.Lists))
	}
	got := ledger.Lists[0]
	if got.TransactionID != "txn-1" || got.Range != r || got.Limit != 10 {
		t.Fatalf("filter = %+v", got)
	}
}

func TestReplayIsolatesDeliveryFailures(t *testing.T) {
	ledger := auditfakes.NewLedger()
	seedEntries(ledger, 3)
	deliverer := &recordingDeliverer{fail: map[string]error{"evt-2": errors.New("queue unavailable")}}
	journal := &auditfakes.Journal{}
	sleeper := &sleepRecorder{}

	summary, err := newDispatcher(ledger, deliverer, sleeper, WithJournal(journal), WithChannelName("sqs")).
		Replay(context.Background(), Request{Limit: 10})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if summary.Attempted != 3 || summary.Delivered != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Results[1].Status != StatusFailed || summary.Results[1].Error == "" {
		t.Fatalf("result[1] = %+v", summary.Results[1])
	}
	if len(deliverer.calls) != 3 || len(sleeper.calls) != 3 {
		t.Fatalf("deliveries = %d, sleeps = %d", len(deliverer.calls), len(sleeper.calls))
	}
	if len(journal.Attempts) != 3 {
		t.Fatalf("journal attempts = %d, want 3", len(journal.Attempts))
	}
	failed := journal.Attempts[1]
	if failed.Outcome != string(StatusFailed) || failed.Channel != "sqs" || failed.RunID != "run-fixed" || failed.LastError == "" {
		t.Fatalf("journal attempt = %+v", failed)
	}
}

func TestReplayFetchFailureIsFatal(t *testing.T) {
	ledger := auditfakes.NewLedger()
	fetchErr := errors.New("connection refused")
	ledger.ListErr = fetchErr
	deliverer := &recordingDeliverer{}

	_, err := newDispatcher(ledger, deliverer, &sleepRecorder{}).Replay(context.Background(), Request{Limit: 10})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if len(deliverer.calls) != 0 {
		t.Fatal("no delivery may happen after a fetch failure")
	}
}

func TestReplayNoMatches(t *testing.T) {
	sleeper := &sleepRecorder{}
	summary, err := newDispatcher(auditfakes.NewLedger(), &recordingDeliverer{}, sleeper).Replay(context.Background(), Request{Limit: 10})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if summary.Matched != 0 || summary.Attempted != 0 || len(sleeper.calls) != 0 {
		t.Fatalf("summary = %+v, sleeps = %v", summary, sleeper.calls)
	}
}

func TestReplayDryRunDeliversNothing(t *testing.T) {
	ledger := auditfakes.NewLedger()
	seedEntries(ledger, 3)
	sleeper := &sleepRecorder{}

	// No deliverer at all: dry runs must not need one.
	summary, err := newDispatcher(ledger, nil, sleeper).Replay(context.Background(), Request{Limit: 10, DryRun: true, Delay: time.Second})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if summary.Matched != 3 || summary.Attempted != 0 || summary.Delivered != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(sleeper.calls) != 0 {
		t.Fatalf("dry run slept %v", sleeper.calls)
	}
	for i, result := range summary.Results {
		if result.Status != StatusWouldSend || result.Event == nil {
			t.Fatalf("result[%d] = %+v", i, result)
		}
	}
	if summary.Results[0].Event.EventID != "evt-1" || summary.Results[0].Event.Timestamp != "2024-01-15T00:00:00Z" {
		t.Fatalf("event = %+v", summary.Results[0].Event)
	}
}

func TestReplayRejectsInvalidRequests(t *testing.T) {
	d := newDispatcher(auditfakes.NewLedger(), nil, &sleepRecorder{})
	tests := []struct {
		name string
		req  Request
	}{
		{name: "zero limit", req: Request{Limit: 0, DryRun: true}},
		{name: "negative delay", req: Request{Limit: 1, Delay: -time.Second, DryRun: true}},
		{name: "inverted range", req: Request{Limit: 1, DryRun: true, Range: timerange.Range{Start: day.Add(time.Hour), End: day}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := d.Replay(context.Background(), tc.req); !apperrors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	_, err := d.Replay(context.Background(), Request{Limit: 1})
	if apperrors.GetCode(err) != apperrors.CodeChannelUnconfigured {
		t.Fatalf("live replay without channel: %v", err)
	}
}

func TestReplayStopsBetweenItemsOnCancel(t *testing.T) {
	ledger := auditfakes.NewLedger()
	seedEntries(ledger, 3)
	deliverer := &recordingDeliverer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	summary, err := New(ledger, deliverer, WithSleeper(sleep)).Replay(ctx, Request{Limit: 10, Delay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(deliverer.calls) != 1 || summary.Delivered != 1 {
		t.Fatalf("deliveries = %d, summary = %+v", len(deliverer.calls), summary)
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled sleep: %v", err)
	}
}

func TestReplayReportsProgress(t *testing.T) {
	ledger := auditfakes.NewLedger()
	seedEntries(ledger, 3)
	var seen []Progress

	_, err := newDispatcher(ledger, nil, &sleepRecorder{}, WithProgress(func(p Progress) { seen = append(seen, p) })).
		Replay(context.Background(), Request{Limit: 10, DryRun: true})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("progress calls = %d, want 3", len(seen))
	}
	last := seen[2]
	if last.Index != 3 || last.Total != 3 || last.Result.EventID != "evt-3" {
		t.Fatalf("last progress = %+v", last)
	}
}

func TestReplayFlagsSyntheticEntries(t *testing.T) {
	ledger := auditfakes.NewLedger()
	ledger.AddEntries(
		entry("txn-1", "evt-1", day),
		domain.NewSyntheticInitiation(domain.Transaction{ID: "txn-2", State: domain.StateFailed, CreatedAt: day.Add(time.Minute)}, "run-0"),
	)
	deliverer := &recordingDeliverer{}

	summary, err := newDispatcher(ledger, deliverer, &sleepRecorder{}).Replay(context.Background(), Request{Limit: 10})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("results = %+v", summary.Results)
	}
	if summary.Results[0].Synthetic || !summary.Results[1].Synthetic {
		t.Fatalf("synthetic flags = %v, %v", summary.Results[0].Synthetic, summary.Results[1].Synthetic)
	}
	if summary.Results[1].EventID != "BACKFILL-txn-2" {
		t.Fatalf("second result = %+v", summary.Results[1])
	}
}
