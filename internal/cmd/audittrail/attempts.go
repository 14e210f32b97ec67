package audittrail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/services/audit/storage"
	"github.com/louisbranch/paysignal/internal/services/audit/storage/journal"
	"github.com/spf13/cobra"
)

const defaultAttemptsLimit = 20

func newAttemptsCommand(cfg *Config) *cobra.Command {
	limit := defaultAttemptsLimit
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List recent replay delivery attempts from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAttempts(cmd.Context(), *cfg, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "maximum attempts to list, newest first")
	return cmd
}

func runAttempts(ctx context.Context, cfg Config, limit int, out io.Writer) error {
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return noop(out, err)
	}
	path := strings.TrimSpace(cfg.JournalPath)
	if path == "" {
		return noop(out, apperrors.New(apperrors.CodeInvalidArgument,
			"journal path is not configured (set PAYSIGNAL_JOURNAL_DB_PATH or --journal-path)"))
	}
	if limit <= 0 {
		return noop(out, apperrors.New(apperrors.CodeInvalidLimit, fmt.Sprintf("limit must be positive, got %d", limit)))
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(out, "No delivery attempts recorded")
			return nil
		}
		return fmt.Errorf("stat journal: %w", err)
	}

	store, err := journal.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	attempts, err := store.ListAttempts(ctx, limit)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	return writeAttempts(out, format, attempts)
}

func writeAttempts(out io.Writer, format string, attempts []storage.DeliveryAttempt) error {
	if format != formatText {
		if attempts == nil {
			attempts = []storage.DeliveryAttempt{}
		}
		return writeStructured(out, format, attempts)
	}
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No delivery attempts recorded")
		return nil
	}
	for _, a := range attempts {
		line := fmt.Sprintf("%s %s %s %s via %s (run %s)",
			a.CreatedAt.Format(time.RFC3339), a.Outcome, a.EventID, a.EventType, a.Channel, a.RunID)
		if a.DeliveryID != "" {
			line += " -> " + a.DeliveryID
		}
		if a.LastError != "" {
			line += ": " + a.LastError
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
