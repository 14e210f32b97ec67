package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/paysignal/internal/platform/timeouts"
	"github.com/redis/go-redis/v9"
)

// RedisConfig targets one Redis stream.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen trims the stream approximately; zero keeps every entry.
	MaxLen int64
}

type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStream appends events to a Redis stream.
type RedisStream struct {
	client streamClient
	stream string
	maxLen int64
}

// NewRedisStream connects to Redis and verifies it answers PING.
func NewRedisStream(ctx context.Context, cfg RedisConfig) (*RedisStream, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, unconfigured(KindRedis, "an address")
	}
	if strings.TrimSpace(cfg.Stream) == "" {
		return nil, unconfigured(KindRedis, "a stream name")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.StorePing)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStream{client: client, stream: strings.TrimSpace(cfg.Stream), maxLen: cfg.MaxLen}, nil
}

func (r *RedisStream) Name() string { return KindRedis }

// Deliver appends msg and returns the stream entry ID.
func (r *RedisStream) Deliver(ctx context.Context, msg Message) (string, error) {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"event_id":               msg.EventID,
			"event_type":             msg.EventType,
			"payment_transaction_id": msg.Key,
			"payload":                string(msg.Body),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", deliveryFailed(KindRedis, msg, err)
	}
	return id, nil
}

func (r *RedisStream) Close() error { return r.client.Close() }
