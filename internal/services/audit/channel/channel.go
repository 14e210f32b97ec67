// Package channel delivers replayed audit events to external transports.
//
// Every adapter is synchronous: Deliver returns only after the transport has
// accepted the message, and the returned string is the transport's delivery
// identifier when it has one.
package channel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
)

// Kinds of delivery channel.
const (
	KindStdout = "stdout"
	KindSQS    = "sqs"
	KindKafka  = "kafka"
	KindRedis  = "redis"
	KindAMQP   = "amqp"
)

// Message is one serialized event handed to a channel. Key groups messages
// that must stay ordered relative to each other, the transaction ID.
type Message struct {
	Key       string
	EventID   string
	EventType string
	Body      []byte
}

// Channel is an open delivery transport.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg Message) (string, error)
	Close() error
}

// Config selects and configures a channel.
type Config struct {
	Kind string

	// Out receives stdout channel output; defaults to os.Stdout.
	Out io.Writer

	SQS   SQSConfig
	Kafka KafkaConfig
	Redis RedisConfig
	AMQP  AMQPConfig
}

// Open builds the channel named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindStdout:
		out := cfg.Out
		if out == nil {
			out = os.Stdout
		}
		return NewWriter(out), nil
	case KindSQS:
		return NewSQS(cfg.SQS)
	case KindKafka:
		return NewKafka(cfg.Kafka)
	case KindRedis:
		return NewRedisStream(ctx, cfg.Redis)
	case KindAMQP:
		return NewAMQP(ctx, cfg.AMQP)
	default:
		return nil, apperrors.WithMetadata(
			apperrors.CodeInvalidArgument,
			fmt.Sprintf("unknown delivery channel %q", cfg.Kind),
			map[string]string{"channel": cfg.Kind},
		)
	}
}

func unconfigured(kind, setting string) error {
	return apperrors.WithMetadata(
		apperrors.CodeChannelUnconfigured,
		fmt.Sprintf("%s channel requires %s", kind, setting),
		map[string]string{"channel": kind},
	)
}

func deliveryFailed(kind string, msg Message, err error) error {
	return apperrors.WrapWithMetadata(
		apperrors.CodeDeliveryFailed,
		fmt.Sprintf("deliver %s via %s", msg.EventID, kind),
		map[string]string{"channel": kind, "event_id": msg.EventID},
		err,
	)
}
