package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig targets one exchange.
type AMQPConfig struct {
	URL      string
	Exchange string
}

type confirmPublisher interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// AMQP publishes events to a durable topic exchange with publisher confirms.
// The routing key is the event type.
type AMQP struct {
	conn     *amqp.Connection
	channel  confirmPublisher
	exchange string
}

// NewAMQP dials the broker, declares the exchange and enables confirms.
func NewAMQP(ctx context.Context, cfg AMQPConfig) (*AMQP, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, unconfigured(KindAMQP, "a broker url")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		return nil, unconfigured(KindAMQP, "an exchange")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open amqp channel: %w", err), conn.Close())
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, errors.Join(fmt.Errorf("declare exchange %s: %w", exchange, err), ch.Close(), conn.Close())
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Join(fmt.Errorf("enable publisher confirms: %w", err), ch.Close(), conn.Close())
	}
	return &AMQP{conn: conn, channel: ch, exchange: exchange}, nil
}

func (a *AMQP) Name() string { return KindAMQP }

// Deliver publishes msg and waits for the broker confirm. The delivery tag is
// returned as the delivery ID.
func (a *AMQP) Deliver(ctx context.Context, msg Message) (string, error) {
	confirm, err := a.channel.PublishWithDeferredConfirmWithContext(ctx, a.exchange, routingKey(msg), false, false, publishing(msg))
	if err != nil {
		return "", deliveryFailed(KindAMQP, msg, err)
	}
	if confirm == nil {
		return "", deliveryFailed(KindAMQP, msg, errors.New("channel is not in confirm mode"))
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", deliveryFailed(KindAMQP, msg, err)
	}
	if !acked {
		return "", deliveryFailed(KindAMQP, msg, errors.New("broker nacked message"))
	}
	return strconv.FormatUint(confirm.DeliveryTag, 10), nil
}

func (a *AMQP) Close() error {
	var errs []error
	if a.channel != nil {
		errs = append(errs, a.channel.Close())
	}
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	return errors.Join(errs...)
}

func routingKey(msg Message) string {
	if msg.EventType == "" {
		return "audit.event"
	}
	return "audit." + msg.EventType
}

func publishing(msg Message) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.EventID,
		CorrelationId: msg.Key,
		Type:          msg.EventType,
		Timestamp:     time.Now().UTC(),
		Body:          msg.Body,
	}
}
