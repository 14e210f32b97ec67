package audittrail

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/paysignal/internal/platform/logging"
	"github.com/louisbranch/paysignal/internal/platform/storage/sqldialect"
	"github.com/louisbranch/paysignal/internal/services/audit/app"
	"github.com/louisbranch/paysignal/internal/services/audit/channel"
	"github.com/sirupsen/logrus"
)

// Config holds settings shared by every audittrail subcommand. Environment
// values are loaded first; flags override them.
type Config struct {
	Dialect        string        `env:"PAYSIGNAL_DB_DIALECT" envDefault:"sqlite"`
	DatabaseURL    string        `env:"PAYSIGNAL_DATABASE_URL"`
	LedgerPath     string        `env:"PAYSIGNAL_LEDGER_DB_PATH" envDefault:"data/ledger.db"`
	Migrate        bool          `env:"PAYSIGNAL_LEDGER_MIGRATE" envDefault:"false"`
	JournalPath    string        `env:"PAYSIGNAL_JOURNAL_DB_PATH"`
	PushgatewayURL string        `env:"PAYSIGNAL_PUSHGATEWAY_URL"`
	Timeout        time.Duration `env:"PAYSIGNAL_RUN_TIMEOUT" envDefault:"30m"`
	Format         string        `env:"PAYSIGNAL_OUTPUT_FORMAT" envDefault:"text"`
	Log            logging.Config
	Postgres       PostgresConfig
	Channel        ChannelConfig
}

// PostgresConfig mirrors the libpq-style variables used by the payment
// platform. It is used only when no database URL is given.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	DB       string `env:"POSTGRES_DB" envDefault:"paysignal"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

// DSN renders a postgres:// connection URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.DB,
	}
	if mode := strings.TrimSpace(p.SSLMode); mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String()
}

// ChannelConfig configures replay delivery targets.
type ChannelConfig struct {
	Kind               string   `env:"PAYSIGNAL_REPLAY_CHANNEL"`
	QueueURL           string   `env:"SQS_QUEUE_URL"`
	AWSRegion          string   `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpoint        string   `env:"AWS_ENDPOINT_URL"`
	AWSAccessKeyID     string   `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string   `env:"AWS_SECRET_ACCESS_KEY"`
	KafkaBrokers       []string `env:"PAYSIGNAL_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string   `env:"PAYSIGNAL_KAFKA_TOPIC" envDefault:"payment-audit-events"`
	RedisAddr          string   `env:"PAYSIGNAL_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword      string   `env:"PAYSIGNAL_REDIS_PASSWORD"`
	RedisDB            int      `env:"PAYSIGNAL_REDIS_DB" envDefault:"0"`
	RedisStream        string   `env:"PAYSIGNAL_REDIS_STREAM" envDefault:"payment-audit-events"`
	RedisMaxLen        int64    `env:"PAYSIGNAL_REDIS_STREAM_MAXLEN"`
	AMQPURL            string   `env:"PAYSIGNAL_AMQP_URL"`
	AMQPExchange       string   `env:"PAYSIGNAL_AMQP_EXCHANGE" envDefault:"payment_audit"`
}

// ResolvedKind names the channel a replay delivers to. Without an explicit
// kind a configured SQS queue wins over stdout.
func (c ChannelConfig) ResolvedKind() string {
	if kind := strings.ToLower(strings.TrimSpace(c.Kind)); kind != "" {
		return kind
	}
	if strings.TrimSpace(c.QueueURL) != "" {
		return channel.KindSQS
	}
	return channel.KindStdout
}

func (c ChannelConfig) channelConfig(out io.Writer) channel.Config {
	return channel.Config{
		Kind: c.ResolvedKind(),
		Out:  out,
		SQS: channel.SQSConfig{
			QueueURL:        c.QueueURL,
			Region:          c.AWSRegion,
			Endpoint:        c.AWSEndpoint,
			AccessKeyID:     c.AWSAccessKeyID,
			SecretAccessKey: c.AWSSecretAccessKey,
		},
		Kafka: channel.KafkaConfig{Brokers: c.KafkaBrokers, Topic: c.KafkaTopic},
		Redis: channel.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Stream:   c.RedisStream,
			MaxLen:   c.RedisMaxLen,
		},
		AMQP: channel.AMQPConfig{URL: c.AMQPURL, Exchange: c.AMQPExchange},
	}
}

// runtimeConfig resolves the ledger connection for app.Open.
func (c Config) runtimeConfig(logger logrus.FieldLogger) (app.RuntimeConfig, error) {
	dialect, err := sqldialect.Parse(c.Dialect)
	if err != nil {
		return app.RuntimeConfig{}, fmt.Errorf("db dialect: %w", err)
	}
	dsn := strings.TrimSpace(c.DatabaseURL)
	if dsn == "" {
		if dialect == sqldialect.Postgres {
			dsn = c.Postgres.DSN()
		} else {
			dsn = c.LedgerPath
		}
	}
	return app.RuntimeConfig{
		Dialect:        dialect,
		DSN:            dsn,
		Migrate:        c.Migrate,
		JournalPath:    c.JournalPath,
		PushgatewayURL: c.PushgatewayURL,
		Logger:         logger,
	}, nil
}
