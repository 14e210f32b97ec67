package audittrail

import (
	"context"
	"fmt"
	"io"
	"time"

	entrypoint "github.com/louisbranch/paysignal/internal/platform/cmd"
	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/app"
	"github.com/louisbranch/paysignal/internal/services/audit/reconcile"
	"github.com/spf13/cobra"
)

type backfillOptions struct {
	StartDate string
	EndDate   string
	BatchSize int
	DryRun    bool
}

func newBackfillCommand(cfg *Config) *cobra.Command {
	opts := backfillOptions{BatchSize: reconcile.DefaultBatchSize}
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Write synthetic initiation entries for transactions without audit history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackfill(cmd.Context(), *cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.StartDate, "start-date", "", "start of the creation window, inclusive (YYYY-MM-DD or RFC 3339)")
	flags.StringVar(&opts.EndDate, "end-date", "", endDateHelp)
	flags.IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "entries per commit")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "list gaps without writing")
	return cmd
}

func runBackfill(ctx context.Context, cfg Config, opts backfillOptions, out, errOut io.Writer) error {
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return noop(out, err)
	}
	window, err := timerange.ParseBounded(opts.StartDate, opts.EndDate)
	if err != nil {
		return noop(out, err)
	}
	if opts.BatchSize <= 0 {
		return noop(out, apperrors.New(apperrors.CodeInvalidBatchSize, fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize)))
	}

	if opts.DryRun {
		// Dry runs leave the ledger schema untouched too.
		cfg.Migrate = false
	}
	return withRuntime(ctx, cfg, entrypoint.ServiceBackfill, errOut, func(ctx context.Context, rt *app.Runtime) error {
		report := &backfillReport{out: out, text: format == formatText}
		summary, err := rt.Reconciler(report.progress).Backfill(ctx, reconcile.Request{
			Range:     window,
			BatchSize: opts.BatchSize,
			DryRun:    opts.DryRun,
		})
		if err != nil {
			if apperrors.IsValidation(err) {
				return noop(out, err)
			}
			if summary.Gaps > 0 {
				_ = report.write(format, summary)
			}
			return err
		}
		return report.write(format, summary)
	})
}

// backfillReport prints progress as batches commit and the final summary.
type backfillReport struct {
	out       io.Writer
	text      bool
	announced bool
}

func (r *backfillReport) announce(gaps int) {
	if r.announced {
		return
	}
	r.announced = true
	fmt.Fprintf(r.out, "Found %d transactions missing audit logs\n", gaps)
}

func (r *backfillReport) progress(p reconcile.Progress) {
	if !r.text {
		return
	}
	r.announce(p.Total)
	fmt.Fprintf(r.out, "Committed batch %d: %d/%d transactions\n", p.Commits, p.Committed, p.Total)
}

func (r *backfillReport) write(format string, summary reconcile.Summary) error {
	if format != formatText {
		return writeStructured(r.out, format, summary)
	}
	r.announce(summary.Gaps)
	if summary.DryRun {
		fmt.Fprintln(r.out, "DRY RUN: no changes will be made")
		for _, item := range summary.Preview {
			fmt.Fprintf(r.out, "  Would backfill: %s (created %s, state %s, %s %s)\n",
				item.TransactionID, item.CreatedAt.Format(time.RFC3339), item.State, item.Amount, item.Currency)
		}
		if rest := summary.Gaps - len(summary.Preview); rest > 0 {
			fmt.Fprintf(r.out, "  ... and %d more\n", rest)
		}
		return nil
	}
	fmt.Fprintf(r.out, "%d/%d backfilled (skipped %d, failed %d, commits %d)\n",
		summary.Inserted, summary.Gaps, summary.Skipped, summary.Failed, summary.Commits)
	for _, item := range summary.FailedItems() {
		fmt.Fprintf(r.out, "  Failed: %s: %s\n", item.TransactionID, item.Error)
	}
	return nil
}
