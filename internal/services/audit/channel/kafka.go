package channel

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig targets one Kafka topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events keyed by transaction ID so each transaction's
// history lands on one partition in order.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka builds a synchronous writer for cfg.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	var brokers []string
	for _, broker := range cfg.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, unconfigured(KindKafka, "at least one broker")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, unconfigured(KindKafka, "a topic")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
		topic: topic,
	}, nil
}

func (k *Kafka) Name() string { return KindKafka }

// Deliver writes msg and waits for broker acknowledgement. The event ID is
// returned as the delivery ID.
func (k *Kafka) Deliver(ctx context.Context, msg Message) (string, error) {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.EventID)},
			{Key: "event_type", Value: []byte(msg.EventType)},
		},
	})
	if err != nil {
		return "", deliveryFailed(KindKafka, msg, err)
	}
	return msg.EventID, nil
}

func (k *Kafka) Close() error { return k.writer.Close() }
