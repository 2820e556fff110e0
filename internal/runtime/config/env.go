package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "COTFLOW_"

// FromEnv loads the configuration from COTFLOW_* variables on top of Default
// and validates it. Malformed numbers, booleans and durations are reported
// instead of being silently replaced by defaults.
func FromEnv() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv over an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	e := envReader{lookup: lookup}
	d := Default()

	cfg := &Config{
		ServiceName:  e.str("SERVICE_NAME", d.ServiceName),
		PubSubSystem: strings.ToLower(e.str("PUBSUB", d.PubSubSystem)),

		KafkaBrokers:       e.list("KAFKA_BROKERS"),
		KafkaConsumerGroup: e.str("KAFKA_CONSUMER_GROUP", ""),
		RabbitMQURL:        e.str("RABBITMQ_URL", ""),
		NATSURL:            e.str("NATS_URL", ""),
		NATSClientName:     e.str("NATS_CLIENT_NAME", ""),
		NATSJetStream:      e.boolean("NATS_JETSTREAM", false),
		HTTPServerAddress:  e.str("HTTP_SERVER_ADDRESS", ""),
		HTTPPublisherURL:   e.str("HTTP_PUBLISHER_URL", ""),
		IOFile:             e.str("IO_FILE", ""),

		AWSRegion:          e.str("AWS_REGION", ""),
		AWSAccountID:       e.str("AWS_ACCOUNT_ID", ""),
		AWSAccessKeyID:     e.str("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: e.str("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:        e.str("AWS_ENDPOINT", ""),

		InputTopic:      e.str("INPUT_TOPIC", d.InputTopic),
		OutputTopic:     e.str("OUTPUT_TOPIC", d.OutputTopic),
		RouteByCategory: e.boolean("ROUTE_BY_CATEGORY", false),
		PoisonQueue:     e.str("POISON_QUEUE", d.PoisonQueue),

		RetryMaxRetries:      e.integer("RETRY_MAX_RETRIES", 0),
		RetryInitialInterval: e.duration("RETRY_INITIAL_INTERVAL", 0),
		RetryMaxInterval:     e.duration("RETRY_MAX_INTERVAL", 0),

		MetricsEnabled:           e.boolean("METRICS_ENABLED", false),
		MetricsPort:              e.integer("METRICS_PORT", 0),
		StatusEnabled:            e.boolean("STATUS_ENABLED", false),
		StatusPort:               e.integer("STATUS_PORT", d.StatusPort),
		StatusCORSAllowedOrigins: e.list("STATUS_CORS_ALLOWED_ORIGINS"),

		ArchiveBackend: strings.ToLower(e.str("ARCHIVE", "")),
		PostgresURL:    e.str("POSTGRES_URL", ""),

		LogLevel:        e.str("LOG_LEVEL", d.LogLevel),
		LogFormat:       e.str("LOG_FORMAT", d.LogFormat),
		ReplayDir:       e.str("REPLAY_DIR", ""),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return fallback
}

func (e *envReader) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) integer(key string, fallback int) int {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return fallback
	}
	return i
}

func (e *envReader) boolean(key string, fallback bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, key, v))
		return fallback
	}
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return fallback
	}
	return d
}
