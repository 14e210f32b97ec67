// Package app wires the audit engine to its stores, channel, logger and
// metrics for a single command run.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/paysignal/internal/platform/logging"
	"github.com/louisbranch/paysignal/internal/platform/metrics"
	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/services/audit/channel"
	"github.com/louisbranch/paysignal/internal/services/audit/gap"
	"github.com/louisbranch/paysignal/internal/services/audit/reconcile"
	"github.com/louisbranch/paysignal/internal/services/audit/replay"
	"github.com/louisbranch/paysignal/internal/services/audit/storage/journal"
	"github.com/louisbranch/paysignal/internal/services/audit/storage/sqlstore"
	"github.com/sirupsen/logrus"
)

const defaultLedgerPath = "data/ledger.db"

// RuntimeConfig controls which stores a run opens.
type RuntimeConfig struct {
	Dialect sqldialect.Dialect
	DSN     string
	// Migrate applies the embedded ledger schema on open.
	Migrate bool
	// JournalPath enables the replay delivery journal when set.
	JournalPath    string
	PushgatewayURL string
	Logger         logrus.FieldLogger
}

// Runtime holds the dependencies of one command run.
type Runtime struct {
	Store   *sqlstore.Store
	Journal *journal.Store
	Metrics *metrics.Recorder
	Logger  logrus.FieldLogger

	pushgatewayURL string
}

// Open connects the ledger and, when configured, the delivery journal.
func Open(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if cfg.Dialect == "" {
		cfg.Dialect = sqldialect.SQLite
	}
	if dsn == "" && cfg.Dialect == sqldialect.SQLite {
		dsn = defaultLedgerPath
	}
	if cfg.Dialect == sqldialect.SQLite {
		if err := ensureDir(dsn); err != nil {
			return nil, fmt.Errorf("create ledger storage dir: %w", err)
		}
	}

	store, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: cfg.Dialect, DSN: dsn, Migrate: cfg.Migrate})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	rt := &Runtime{
		Store:          store,
		Metrics:        metrics.New(),
		Logger:         logger,
		pushgatewayURL: strings.TrimSpace(cfg.PushgatewayURL),
	}

	if path := strings.TrimSpace(cfg.JournalPath); path != "" {
		if err := ensureDir(path); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create journal storage dir: %w", err)
		}
		journalStore, err := journal.Open(ctx, path)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open delivery journal: %w", err)
		}
		rt.Journal = journalStore
	}
	return rt, nil
}

func ensureDir(path string) error {
	if path == ":memory:" || strings.Contains(path, "?") {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// Reconciler builds a backfill engine over the ledger.
func (r *Runtime) Reconciler(progress func(reconcile.Progress)) *reconcile.Reconciler {
	return reconcile.New(
		gap.NewDetector(r.Store, r.Metrics),
		r.Store,
		reconcile.WithLogger(r.Logger),
		reconcile.WithMetrics(r.Metrics),
		reconcile.WithProgress(progress),
	)
}

// Dispatcher builds a replay engine delivering to ch. ch may be nil for dry
// runs.
func (r *Runtime) Dispatcher(ch channel.Channel, opts ...replay.Option) *replay.Dispatcher {
	base := []replay.Option{
		replay.WithLogger(r.Logger),
		replay.WithMetrics(r.Metrics),
	}
	var deliverer replay.Deliverer
	if ch != nil {
		deliverer = ch
		base = append(base, replay.WithChannelName(ch.Name()))
	}
	if r.Journal != nil {
		base = append(base, replay.WithJournal(r.Journal))
	}
	return replay.New(r.Store, deliverer, append(base, opts...)...)
}

// PushMetrics sends run metrics to the configured Pushgateway, if any.
func (r *Runtime) PushMetrics(ctx context.Context, job string) {
	if r == nil || r.pushgatewayURL == "" {
		return
	}
	if err := r.Metrics.Push(ctx, r.pushgatewayURL, job); err != nil {
		r.Logger.WithError(err).Warn("push metrics")
	}
}

// Close releases every store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Journal != nil {
		if err := r.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close delivery journal: %w", err))
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}
