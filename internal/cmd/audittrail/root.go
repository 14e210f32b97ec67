// Package audittrail implements the audittrail command: backfill writes
// synthetic history for transactions without an audit trail, and replay
// re-emits stored history to a delivery channel.
package audittrail

import (
	"context"
	"fmt"
	"io"

	entrypoint "github.com/louisbranch/paysignal/internal/platform/cmd"
	"github.com/louisbranch/paysignal/internal/platform/logging"
	"github.com/louisbranch/paysignal/internal/services/audit/app"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// endDateHelp documents the end bound shared by backfill and replay. Operators
// coming from backfill.py and replay.py expect a bare date to stop at its
// midnight.
const endDateHelp = "end of the window (YYYY-MM-DD or RFC 3339). A bare date includes that whole day, " +
	"up to the next midnight; backfill.py and replay.py stopped at the date's own midnight. " +
	"An RFC 3339 end is exclusive"

// NewCommand builds the audittrail command tree. Environment values become
// the flag defaults.
func NewCommand(out, errOut io.Writer) (*cobra.Command, error) {
	cfg := &Config{}
	if err := entrypoint.ParseConfig(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	root := &cobra.Command{
		Use:           "audittrail",
		Short:         "Audit trail consistency and replay for payment transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Format, "format", cfg.Format, "report format: text, json or yaml")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: json or text")
	flags.StringVar(&cfg.Dialect, "db-dialect", cfg.Dialect, "ledger database dialect: sqlite or postgres")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "ledger connection string")
	flags.StringVar(&cfg.LedgerPath, "db-path", cfg.LedgerPath, "ledger SQLite path")
	flags.BoolVar(&cfg.Migrate, "migrate", cfg.Migrate, "create the ledger schema on start; for sandbox ledgers only, ignored on dry runs")
	flags.StringVar(&cfg.JournalPath, "journal-path", cfg.JournalPath, "delivery journal SQLite path (disabled when empty)")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall run timeout (0 disables)")

	root.AddCommand(newBackfillCommand(cfg), newReplayCommand(cfg), newAttemptsCommand(cfg))
	return root, nil
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root, err := NewCommand(out, errOut)
	if err != nil {
		return err
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// withRuntime opens the stores for one run and executes fn inside the
// telemetry lifecycle of service.
func withRuntime(ctx context.Context, cfg Config, service string, errOut io.Writer, fn func(context.Context, *app.Runtime) error) error {
	base, err := logging.New(cfg.Log, errOut)
	if err != nil {
		return err
	}
	logger := base.WithField("service", service)
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	runtimeCfg, err := cfg.runtimeConfig(logger)
	if err != nil {
		return err
	}

	return entrypoint.RunWithTelemetryAndOptions(ctx, service, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		rt, err := app.Open(ctx, runtimeCfg)
		if err != nil {
			return err
		}
		defer closeRuntime(rt, logger)
		defer rt.PushMetrics(context.WithoutCancel(ctx), service)
		return fn(ctx, rt)
	})
}

func closeRuntime(rt *app.Runtime, logger logrus.FieldLogger) {
	if err := rt.Close(); err != nil {
		logger.WithError(err).Warn("close runtime")
	}
}
