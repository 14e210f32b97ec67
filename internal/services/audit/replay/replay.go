// Package replay re-emits stored audit history to a delivery channel in
// authoritative order.
//
// Delivery is at-least-once and strictly sequential. A failing item is
// recorded and the run moves on; only a failure to read the history aborts a
// run, and it does so before anything is sent.
package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/logging"
	"github.com/louisbranch/paysignal/internal/platform/metrics"
	"github.com/louisbranch/paysignal/internal/platform/otel"
	"github.com/louisbranch/paysignal/internal/platform/timeouts"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/channel"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/projection"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultLimit caps a replay when callers do not choose a limit.
	DefaultLimit = 1000
	// DefaultDelay is the pause after each delivery attempt.
	DefaultDelay = 100 * time.Millisecond
)

// Deliverer hands one message to an external channel and returns the
// channel's delivery ID.
type Deliverer interface {
	Deliver(ctx context.Context, msg channel.Message) (string, error)
}

// Request selects history to replay. Zero-valued filters are not applied.
type Request struct {
	TransactionID string
	Range         timerange.Range
	Limit         int
	DryRun        bool
	Delay         time.Duration
}

// Sleeper pauses between deliveries. It returns early with ctx's error when
// ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = recorder }
}

// WithJournal records every delivery attempt in store.
func WithJournal(store storage.AttemptStore) Option {
	return func(d *Dispatcher) { d.journal = store }
}

// WithChannelName labels metrics and journal rows.
func WithChannelName(name string) Option {
	return func(d *Dispatcher) {
		if name = strings.TrimSpace(name); name != "" {
			d.channelName = name
		}
	}
}

// WithSleeper replaces the inter-delivery pause.
func WithSleeper(sleep Sleeper) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithRunID overrides run ID generation.
func WithRunID(next func() string) Option {
	return func(d *Dispatcher) {
		if next != nil {
			d.newRunID = next
		}
	}
}

// Progress reports one finished item.
type Progress struct {
	Index  int
	Total  int
	Result Result
}

// WithProgress registers a hook called after each item, dry or live.
func WithProgress(fn func(Progress)) Option {
	return func(d *Dispatcher) { d.onProgress = fn }
}

// WithDeliveryTimeout bounds each delivery call.
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.deliveryTimeout = timeout
		}
	}
}

// Dispatcher runs replays.
type Dispatcher struct {
	fetcher         storage.AuditLister
	deliverer       Deliverer
	journal         storage.AttemptStore
	channelName     string
	logger          logrus.FieldLogger
	metrics         *metrics.Recorder
	sleep           Sleeper
	newRunID        func() string
	deliveryTimeout time.Duration
	onProgress      func(Progress)
}

// New builds a Dispatcher. deliverer may be nil when only dry runs are made.
func New(fetcher storage.AuditLister, deliverer Deliverer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fetcher:         fetcher,
		deliverer:       deliverer,
		channelName:     channel.KindStdout,
		logger:          logging.Discard(),
		sleep:           SleepContext,
		newRunID:        uuid.NewString,
		deliveryTimeout: timeouts.Delivery,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Dispatcher) validate(req Request) error {
	if d == nil || d.fetcher == nil {
		return fmt.Errorf("replay fetcher is not configured")
	}
	if req.Limit <= 0 {
		return apperrors.New(apperrors.CodeInvalidLimit, "limit must be greater than zero")
	}
	if req.Delay < 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "delay must not be negative")
	}
	if err := req.Range.Validate(); err != nil {
		return err
	}
	if !req.DryRun && d.deliverer == nil {
		return apperrors.New(apperrors.CodeChannelUnconfigured, "delivery channel is required for a live replay")
	}
	return nil
}

// Replay fetches matching entries and delivers them one at a time in
// timestamp order. The returned error is non-nil only for invalid requests,
// fetch failures and cancellation; per-item failures live in the summary.
func (d *Dispatcher) Replay(ctx context.Context, req Request) (summary Summary, err error) {
	if err := d.validate(req); err != nil {
		return Summary{}, err
	}

	runID := d.newRunID()
	summary = Summary{RunID: runID, DryRun: req.DryRun, Channel: d.channelName}
	ctx, span := otel.Tracer().Start(ctx, "audit.replay", trace.WithAttributes(
		attribute.String("audit.run_id", runID),
		attribute.Bool("audit.dry_run", req.DryRun),
		attribute.String("audit.channel", d.channelName),
		attribute.Int("audit.limit", req.Limit),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("audit.matched", summary.Matched),
			attribute.Int("audit.delivered", summary.Delivered),
			attribute.Int("audit.failed", summary.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := d.logger.WithFields(logrus.Fields{"run_id": runID, "dry_run": req.DryRun, "channel": d.channelName})

	entries, err := d.fetcher.ListAuditEntries(ctx, storage.AuditFilter{
		TransactionID: strings.TrimSpace(req.TransactionID),
		Range:         req.Range,
		Limit:         req.Limit,
	})
	if err != nil {
		return summary, fmt.Errorf("fetch audit entries: %w", err)
	}
	summary.Matched = len(entries)
	d.metrics.ReplayMatched(len(entries))
	log.WithField("matched", len(entries)).Info("audit entries fetched")
	if len(entries) == 0 {
		return summary, nil
	}

	summary.Results = make([]Result, 0, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		event := projection.Project(entry)

		if req.DryRun {
			ev := event
			summary.Results = append(summary.Results, Result{
				EventID:       entry.EventID,
				TransactionID: entry.TransactionID,
				EventType:     string(entry.EventType),
				Status:        StatusWouldSend,
				Synthetic:     entry.EventType.Synthetic(),
				Event:         &ev,
			})
			d.progress(i, len(entries), summary.Results[i])
			continue
		}

		result := d.deliver(ctx, runID, entry, event, log)
		summary.Attempted++
		if result.Status == StatusDelivered {
			summary.Delivered++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
		d.progress(i, len(entries), result)

		if err := d.sleep(ctx, req.Delay); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (d *Dispatcher) deliver(ctx context.Context, runID string, entry domain.AuditEntry, event projection.Event, log logrus.FieldLogger) Result {
	result := Result{
		EventID:       entry.EventID,
		TransactionID: entry.TransactionID,
		EventType:     string(entry.EventType),
		Synthetic:     entry.EventType.Synthetic(),
	}
	itemLog := log.WithFields(logrus.Fields{
		"event_id":       entry.EventID,
		"transaction_id": entry.TransactionID,
		"synthetic":      result.Synthetic,
	})

	body, err := projection.Encode(event)
	if err != nil {
		result.fail(err)
		itemLog.WithError(err).Error("replay item could not be encoded")
		d.record(ctx, runID, result)
		d.metrics.Delivery(d.channelName, metrics.OutcomeFailed, 0)
		return result
	}

	// Deliveries outlive run cancellation so an in-flight send is never cut
	// short; cancellation takes effect between items.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deliveryTimeout)
	deliverCtx, span := otel.Tracer().Start(deliverCtx, "audit.deliver", trace.WithAttributes(
		attribute.String("audit.event_id", entry.EventID),
		attribute.String("audit.channel", d.channelName),
	))
	started := time.Now()
	deliveryID, err := d.deliverer.Deliver(deliverCtx, channel.Message{
		Key:       entry.TransactionID,
		EventID:   entry.EventID,
		EventType: string(entry.EventType),
		Body:      body,
	})
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	cancel()

	if err != nil {
		result.fail(err)
		d.metrics.Delivery(d.channelName, metrics.OutcomeFailed, elapsed)
		itemLog.WithError(err).Error("replay delivery failed")
	} else {
		result.Status = StatusDelivered
		result.DeliveryID = deliveryID
		d.metrics.Delivery(d.channelName, metrics.OutcomeDelivered, elapsed)
		itemLog.WithField("delivery_id", deliveryID).Debug("replayed event")
	}
	d.record(ctx, runID, result)
	return result
}

func (d *Dispatcher) progress(i, total int, result Result) {
	if d.onProgress != nil {
		d.onProgress(Progress{Index: i + 1, Total: total, Result: result})
	}
}

func (d *Dispatcher) record(ctx context.Context, runID string, result Result) {
	if d.journal == nil {
		return
	}
	err := d.journal.RecordAttempt(context.WithoutCancel(ctx), storage.DeliveryAttempt{
		RunID:         runID,
		EventID:       result.EventID,
		TransactionID: result.TransactionID,
		EventType:     result.EventType,
		Channel:       d.channelName,
		Outcome:       string(result.Status),
		DeliveryID:    result.DeliveryID,
		LastError:     result.Error,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		d.logger.WithError(err).WithField("event_id", result.EventID).Warn("record delivery attempt")
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
