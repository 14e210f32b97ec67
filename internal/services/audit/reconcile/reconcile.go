// Package reconcile closes audit trail gaps by appending one synthetic
// initiation entry per transaction that has no history.
//
// Writes are grouped into batches. Each item is isolated inside its batch so a
// failing transaction never discards the items written before it, and a batch
// is committed every BatchSize successful inserts.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/logging"
	"github.com/louisbranch/paysignal/internal/platform/metrics"
	"github.com/louisbranch/paysignal/internal/platform/otel"
	"github.com/louisbranch/paysignal/internal/platform/timeouts"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/domain"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBatchSize is the number of inserts per commit when unset by callers.
	DefaultBatchSize = 100
	// PreviewSize caps the gaps listed by a dry run.
	PreviewSize = 10
)

// GapSource lists transactions without audit history.
type GapSource interface {
	Detect(ctx context.Context, r timerange.Range) ([]domain.Transaction, error)
}

// Request describes one backfill run.
type Request struct {
	Range     timerange.Range
	BatchSize int
	DryRun    bool
}

// Progress is emitted after every successful commit.
type Progress struct {
	RunID     string
	Committed int
	Total     int
	Commits   int
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the structured logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(r *Reconciler) { r.metrics = recorder }
}

// WithRunID overrides run ID generation.
func WithRunID(next func() string) Option {
	return func(r *Reconciler) {
		if next != nil {
			r.newRunID = next
		}
	}
}

// WithProgress registers a hook called after each commit.
func WithProgress(fn func(Progress)) Option {
	return func(r *Reconciler) { r.onProgress = fn }
}

// Reconciler runs backfills.
type Reconciler struct {
	gaps       GapSource
	writer     storage.AuditWriter
	logger     logrus.FieldLogger
	metrics    *metrics.Recorder
	newRunID   func() string
	onProgress func(Progress)
}

// New builds a Reconciler.
func New(gaps GapSource, writer storage.AuditWriter, opts ...Option) *Reconciler {
	r := &Reconciler{
		gaps:     gaps,
		writer:   writer,
		logger:   logging.Discard(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Backfill detects gaps in req.Range and, unless req.DryRun, appends one
// synthetic entry per gap. Per-item failures are reported in the summary and
// do not fail the run. Detection, batch and commit failures are returned
// together with the summary accumulated so far.
func (r *Reconciler) Backfill(ctx context.Context, req Request) (summary Summary, err error) {
	if r == nil || r.gaps == nil || r.writer == nil {
		return Summary{}, fmt.Errorf("reconciler is not configured")
	}
	if req.BatchSize <= 0 {
		return Summary{}, apperrors.New(apperrors.CodeInvalidBatchSize, "batch size must be greater than zero")
	}

	runID := r.newRunID()
	summary = Summary{RunID: runID, DryRun: req.DryRun, BatchSize: req.BatchSize}
	ctx, span := otel.Tracer().Start(ctx, "audit.backfill", trace.WithAttributes(
		attribute.String("audit.run_id", runID),
		attribute.Bool("audit.dry_run", req.DryRun),
		attribute.Int("audit.batch_size", req.BatchSize),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("audit.gaps", summary.Gaps),
			attribute.Int("audit.inserted", summary.Inserted),
			attribute.Int("audit.failed", summary.Failed),
			attribute.Int("audit.commits", summary.Commits),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := r.logger.WithFields(logrus.Fields{"run_id": runID, "dry_run": req.DryRun})

	gaps, err := r.gaps.Detect(ctx, req.Range)
	if err != nil {
		return summary, err
	}
	summary.Gaps = len(gaps)
	log.WithField("gaps", len(gaps)).Info("gap detection complete")
	if len(gaps) == 0 {
		return summary, nil
	}

	if req.DryRun {
		summary.Preview = previewOf(gaps)
		return summary, nil
	}

	run := &backfillRun{
		reconciler: r,
		summary:    &summary,
		batchSize:  req.BatchSize,
		log:        log,
	}
	err = run.execute(ctx, gaps)
	return summary, err
}

func previewOf(gaps []domain.Transaction) []PreviewItem {
	n := min(len(gaps), PreviewSize)
	preview := make([]PreviewItem, 0, n)
	for _, txn := range gaps[:n] {
		preview = append(preview, PreviewItem{
			TransactionID: txn.ID,
			MerchantID:    txn.MerchantID,
			Amount:        txn.Amount.String(),
			Currency:      txn.Currency,
			State:         string(txn.State),
			CreatedAt:     txn.CreatedAt.UTC(),
		})
	}
	return preview
}

type backfillRun struct {
	reconciler *Reconciler
	summary    *Summary
	batchSize  int
	log        logrus.FieldLogger

	batch   storage.AuditBatch
	pending []int
}

func (b *backfillRun) execute(ctx context.Context, gaps []domain.Transaction) (err error) {
	defer func() {
		if b.batch != nil {
			if rbErr := b.batch.Rollback(); rbErr != nil {
				b.log.WithError(rbErr).Warn("rollback audit batch")
			}
		}
	}()

	b.summary.Items = make([]Item, 0, len(gaps))
	for _, txn := range gaps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Stop between items but keep what is already written.
			if flushErr := b.flush(); flushErr != nil {
				return errors.Join(ctxErr, flushErr)
			}
			return ctxErr
		}
		if b.batch == nil {
			// The batch outlives run cancellation so pending items can still
			// be flushed when the run stops early.
			batch, beginErr := b.reconciler.writer.BeginBatch(context.WithoutCancel(ctx))
			if beginErr != nil {
				return fmt.Errorf("begin audit batch: %w", beginErr)
			}
			b.batch = batch
		}

		b.appendItem(ctx, txn)

		if len(b.pending) >= b.batchSize {
			if err := b.flush(); err != nil {
				return err
			}
		}
	}
	return b.flush()
}

func (b *backfillRun) appendItem(ctx context.Context, txn domain.Transaction) {
	r := b.reconciler
	entry := domain.NewSyntheticInitiation(txn, b.summary.RunID)
	item := Item{TransactionID: txn.ID, EventID: entry.EventID, State: ItemPending}

	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.ItemWrite)
	appendErr := b.batch.AppendIfAbsent(itemCtx, entry)
	cancel()

	itemLog := b.log.WithField("transaction_id", txn.ID)
	if !txn.State.Known() {
		itemLog.WithField("state", txn.State).Warn("unrecognized transaction state copied verbatim")
	}
	switch {
	case appendErr == nil:
		item.State = ItemInserted
		b.pending = append(b.pending, len(b.summary.Items))
	case errors.Is(appendErr, storage.ErrEntryExists):
		item.State = ItemSkipped
		b.summary.Skipped++
		r.metrics.BackfillItem(metrics.OutcomeSkipped)
		itemLog.Info("audit history appeared before write, skipping")
	default:
		item.fail(appendErr)
		b.summary.Failed++
		r.metrics.BackfillItem(metrics.OutcomeFailed)
		itemLog.WithError(appendErr).Error("backfill item failed")
	}
	b.summary.Items = append(b.summary.Items, item)
}

// flush commits the open batch when it holds inserts and discards it
// otherwise, so every commit carries at least one entry.
func (b *backfillRun) flush() error {
	if b.batch == nil {
		return nil
	}
	batch := b.batch
	b.batch = nil
	if len(b.pending) == 0 {
		return batch.Rollback()
	}

	r := b.reconciler
	pending := b.pending
	b.pending = nil
	if err := batch.Commit(); err != nil {
		for _, idx := range pending {
			b.summary.Items[idx].fail(err)
		}
		b.summary.Failed += len(pending)
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "commit audit batch", err)
	}

	for _, idx := range pending {
		b.summary.Items[idx].State = ItemCommitted
		r.metrics.BackfillItem(metrics.OutcomeInserted)
	}
	b.summary.Inserted += len(pending)
	b.summary.Commits++
	r.metrics.BatchCommitted()

	progress := Progress{
		RunID:     b.summary.RunID,
		Committed: b.summary.Inserted,
		Total:     b.summary.Gaps,
		Commits:   b.summary.Commits,
	}
	b.log.WithFields(logrus.Fields{
		"committed": progress.Committed,
		"total":     progress.Total,
	}).Info("committed audit batch")
	if r.onProgress != nil {
		r.onProgress(progress)
	}
	return nil
}
