package audittrail

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/paysignal/internal/platform/cmd"
	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
	"github.com/louisbranch/paysignal/internal/platform/timerange"
	"github.com/louisbranch/paysignal/internal/services/audit/app"
	"github.com/louisbranch/paysignal/internal/services/audit/channel"
	"github.com/louisbranch/paysignal/internal/services/audit/projection"
	"github.com/louisbranch/paysignal/internal/services/audit/replay"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	TransactionID string
	StartDate     string
	EndDate       string
	Limit         int
	DryRun        bool
	Delay         delayValue
}

func newReplayCommand(cfg *Config) *cobra.Command {
	opts := replayOptions{Limit: replay.DefaultLimit, Delay: delayValue(replay.DefaultDelay)}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-emit stored audit history to a delivery channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd.Context(), *cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.TransactionID, "transaction-id", "", "replay one transaction only")
	flags.StringVar(&opts.StartDate, "start-date", "", "earliest event timestamp, inclusive (YYYY-MM-DD or RFC 3339)")
	flags.StringVar(&opts.EndDate, "end-date", "", endDateHelp)
	flags.IntVar(&opts.Limit, "limit", opts.Limit, "maximum events to replay")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "print events without delivering")
	flags.Var(&opts.Delay, "delay", "pause after each delivery (seconds or a duration such as 250ms)")
	flags.StringVar(&cfg.Channel.Kind, "channel", cfg.Channel.Kind, "delivery channel: stdout, sqs, kafka, redis or amqp (default sqs when a queue URL is set, else stdout)")
	flags.StringVar(&cfg.Channel.QueueURL, "queue-url", cfg.Channel.QueueURL, "SQS queue URL")
	flags.StringVar(&cfg.Channel.AWSRegion, "region", cfg.Channel.AWSRegion, "AWS region")
	flags.StringSliceVar(&cfg.Channel.KafkaBrokers, "kafka-brokers", cfg.Channel.KafkaBrokers, "Kafka broker addresses")
	flags.StringVar(&cfg.Channel.KafkaTopic, "kafka-topic", cfg.Channel.KafkaTopic, "Kafka topic")
	flags.StringVar(&cfg.Channel.RedisAddr, "redis-addr", cfg.Channel.RedisAddr, "Redis address")
	flags.StringVar(&cfg.Channel.RedisStream, "redis-stream", cfg.Channel.RedisStream, "Redis stream key")
	flags.StringVar(&cfg.Channel.AMQPURL, "amqp-url", cfg.Channel.AMQPURL, "AMQP broker URL")
	flags.StringVar(&cfg.Channel.AMQPExchange, "amqp-exchange", cfg.Channel.AMQPExchange, "AMQP exchange")
	return cmd
}

func runReplay(ctx context.Context, cfg Config, opts replayOptions, out, errOut io.Writer) error {
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return noop(out, err)
	}
	window, err := timerange.Parse(opts.StartDate, opts.EndDate)
	if err != nil {
		return noop(out, err)
	}
	if opts.Limit <= 0 {
		return noop(out, apperrors.New(apperrors.CodeInvalidLimit, fmt.Sprintf("limit must be positive, got %d", opts.Limit)))
	}
	req := replay.Request{
		TransactionID: strings.TrimSpace(opts.TransactionID),
		Range:         window,
		Limit:         opts.Limit,
		DryRun:        opts.DryRun,
		Delay:         time.Duration(opts.Delay),
	}

	// Replay only reads the ledger, so it never touches the schema.
	cfg.Migrate = false

	// Events delivered to stdout own the output stream; the report moves to
	// errOut so stdout stays a clean JSON-lines feed.
	reportOut := out
	live := !opts.DryRun
	if live && cfg.Channel.ResolvedKind() == channel.KindStdout {
		reportOut = errOut
	}

	return withRuntime(ctx, cfg, entrypoint.ServiceReplay, errOut, func(ctx context.Context, rt *app.Runtime) error {
		var ch channel.Channel
		if live {
			opened, err := channel.Open(ctx, cfg.Channel.channelConfig(out))
			if err != nil {
				return noop(reportOut, err)
			}
			defer func() {
				if err := opened.Close(); err != nil {
					rt.Logger.WithError(err).Warn("close delivery channel")
				}
			}()
			ch = opened
		}

		report := &replayReport{out: reportOut, text: format == formatText}
		summary, err := rt.Dispatcher(ch, replay.WithProgress(report.progress)).Replay(ctx, req)
		if err != nil {
			if apperrors.IsValidation(err) {
				return noop(reportOut, err)
			}
			if summary.Attempted > 0 {
				_ = report.write(format, summary)
			}
			return err
		}
		return report.write(format, summary)
	})
}

// replayReport prints one line per replayed event and the final summary.
type replayReport struct {
	out       io.Writer
	text      bool
	announced bool
}

func (r *replayReport) announce(total int) {
	if r.announced {
		return
	}
	r.announced = true
	fmt.Fprintf(r.out, "Found %d events to replay\n", total)
}

func (r *replayReport) progress(p replay.Progress) {
	if !r.text {
		return
	}
	r.announce(p.Total)
	res := p.Result
	switch res.Status {
	case replay.StatusWouldSend:
		fmt.Fprintf(r.out, "[%d/%d] Would send %s (%s)%s\n", p.Index, p.Total, res.EventID, res.EventType, syntheticMark(res))
		if res.Event != nil {
			if body, err := projection.Encode(*res.Event); err == nil {
				fmt.Fprintf(r.out, "  %s\n", body)
			}
		}
	case replay.StatusDelivered:
		fmt.Fprintf(r.out, "[%d/%d] Sent %s -> %s%s\n", p.Index, p.Total, res.EventID, res.DeliveryID, syntheticMark(res))
	case replay.StatusFailed:
		fmt.Fprintf(r.out, "[%d/%d] Failed %s: %s\n", p.Index, p.Total, res.EventID, res.Error)
	}
}

func syntheticMark(res replay.Result) string {
	if res.Synthetic {
		return " [synthetic]"
	}
	return ""
}

func (r *replayReport) write(format string, summary replay.Summary) error {
	if format != formatText {
		return writeStructured(r.out, format, summary)
	}
	if summary.Matched == 0 {
		fmt.Fprintln(r.out, "No events to replay")
		return nil
	}
	r.announce(summary.Matched)
	if summary.DryRun {
		fmt.Fprintf(r.out, "Dry run complete: %d events would be sent\n", summary.Matched)
		return nil
	}
	fmt.Fprintf(r.out, "Replay complete via %s: matched=%d, delivered=%d, failed=%d\n",
		summary.Channel, summary.Matched, summary.Delivered, summary.Failed)
	return nil
}

// delayValue is a pflag.Value accepting plain seconds ("0.1") as well as Go
// durations ("100ms").
type delayValue time.Duration

func (d *delayValue) String() string { return time.Duration(*d).String() }

func (d *delayValue) Set(value string) error {
	value = strings.TrimSpace(value)
	if parsed, err := time.ParseDuration(value); err == nil {
		*d = delayValue(parsed)
		return nil
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid delay %q", value)
	}
	*d = delayValue(time.Duration(seconds * float64(time.Second)))
	return nil
}

func (d *delayValue) Type() string { return "duration" }
