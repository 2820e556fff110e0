package runtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/cotflow/internal/runtime/archive"
	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
	idspkg "github.com/drblury/cotflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
)

// MiddlewareBuilder constructs a handler middleware using the provided service instance.
// Returning a nil middleware skips the registration.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour. Zero
// values fall back to the service configuration, then to the defaults.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = ce.IsRetryable
	}
	return cfg
}

// DefaultMiddlewares returns the standard middleware chain used by the
// Service constructor, outermost first.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		ArchiveMiddleware(),
		TracerMiddleware(),
		MetricsMiddleware(),
		RetryMiddleware(RetryMiddlewareConfig{}),
		PoisonQueueMiddleware(nil),
		OutcomeMiddleware(),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds the Watermill Prometheus router metrics and serves
// /metrics on MetricsPort.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				s.registerer,
				metricsNamespace(s.Conf),
				s.Conf.PubSubSystem,
			)
			metricsBuilder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", s.metricsHandler())
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each processed message carries a correlation identifier.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return correlationIDMiddleware, nil
		},
	}
}

// LogMessagesMiddleware logs the payload and metadata of handled messages at debug level.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// ArchiveMiddleware stores every successfully handled CoT document in the
// service archive. It is skipped when no archive is configured.
func ArchiveMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "archive",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if s.archive == nil {
				return nil, nil
			}
			return s.archiveMiddleware(), nil
		},
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return s.tracerMiddleware(), nil
		},
	}
}

// RetryMiddleware retries handler execution with exponential backoff.
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return retryMiddleware(s.retryConfig(cfg)), nil
		},
	}
}

// PoisonQueueMiddleware publishes messages whose error matches filter to the
// configured poison queue and acknowledges them. A nil filter selects
// errors that should be dead lettered.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			f := filter
			if f == nil {
				f = ce.ShouldDeadLetter
			}
			return s.poisonMiddlewareWithFilter(f)
		},
	}
}

// OutcomeMiddleware acknowledges messages whose handler asked to skip them.
func OutcomeMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "outcome",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return s.outcomeMiddleware(), nil
		},
	}
}

// RecovererMiddleware converts panics into handler errors so they can be retried.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.router.AddMiddleware(mw)
	return nil
}

// correlationIDMiddleware injects a correlation ID into the message metadata when missing.
func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(handlerpkg.MetadataKeyCorrelationID) == "" {
			msg.Metadata.Set(handlerpkg.MetadataKeyCorrelationID, idspkg.CreateULID())
		}
		return h(msg)
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing message", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

func (s *Service) archiveMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			produced, err := h(msg)
			if err != nil {
				return nil, err
			}

			rec, ok := archiveRecord(msg)
			if !ok {
				return produced, nil
			}
			if err := s.archive.Save(msg.Context(), rec); err != nil {
				if errors.Is(err, errspkg.ErrDuplicateRecord) {
					s.Logger.Debug("Document already archived", loggingpkg.LogFields{"message_uuid": msg.UUID})
					return produced, nil
				}
				return nil, err
			}
			return produced, nil
		}
	}
}

// archiveRecord builds the record for msg from the CoT headers its handler
// stamped. Messages without a uid header and filtered documents are not
// archived.
func archiveRecord(msg *message.Message) (archive.Record, bool) {
	uid := msg.Metadata.Get(handlerpkg.MetadataKeyCoTUID)
	if uid == "" || msg.Metadata.Get(handlerpkg.MetadataKeyCoTFiltered) != "" {
		return archive.Record{}, false
	}
	return archive.Record{
		ID:         msg.UUID,
		UID:        uid,
		Type:       msg.Metadata.Get(handlerpkg.MetadataKeyCoTType),
		Category:   msg.Metadata.Get(handlerpkg.MetadataKeyCoTCategory),
		How:        msg.Metadata.Get(handlerpkg.MetadataKeyCoTHow),
		Payload:    string(msg.Payload),
		ReceivedAt: time.Now().UTC(),
	}, true
}

func (s *Service) retryConfig(cfg RetryMiddlewareConfig) RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = s.Conf.RetryMaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = s.Conf.RetryInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = s.Conf.RetryMaxInterval
	}
	return cfg.withDefaults()
}

func retryMiddleware(cfg RetryMiddlewareConfig) message.HandlerMiddleware {
	normalized := cfg.withDefaults()
	return middleware.Retry{
		MaxRetries:      normalized.MaxRetries,
		InitialInterval: normalized.InitialInterval,
		MaxInterval:     normalized.MaxInterval,
		ShouldRetry: func(params middleware.RetryParams) bool {
			return normalized.RetryIf(params.Err)
		},
	}.Middleware
}

func (s *Service) poisonMiddlewareWithFilter(filter func(err error) bool) (message.HandlerMiddleware, error) {
	if s.publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}

	counted := func(err error) bool {
		if !filter(err) {
			return false
		}
		s.metrics.poisoned.WithLabelValues(poisonReason(err)).Inc()
		return true
	}

	return middleware.PoisonQueueWithFilter(s.publisher, s.Conf.PoisonQueue, counted)
}

func poisonReason(err error) string {
	if errors.Is(err, ce.ErrUnprocessable) {
		return "unprocessable"
	}
	return "dead_letter"
}

func (s *Service) outcomeMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			produced, err := h(msg)
			if err != nil && ce.ClassifyError(err) == ce.ResultSkip {
				s.Logger.Debug("Skipping message", loggingpkg.LogFields{
					"message_uuid": msg.UUID,
					"reason":       err.Error(),
				})
				return nil, nil
			}
			return produced, err
		}
	}
}

// tracerMiddleware wraps message handling with an OpenTelemetry span carrying
// the CoT identity of the message once its handler has decoded it.
func (s *Service) tracerMiddleware() message.HandlerMiddleware {
	tracer := otel.Tracer(s.Conf.ServiceName)
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := tracer.Start(msg.Context(), "ProcessMessage", trace.WithSpanKind(trace.SpanKindConsumer))
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("message.correlation_id", msg.Metadata.Get(handlerpkg.MetadataKeyCorrelationID)),
			)

			produced, err := h(msg)

			for attr, key := range map[string]string{
				"cot.uid":      handlerpkg.MetadataKeyCoTUID,
				"cot.type":     handlerpkg.MetadataKeyCoTType,
				"cot.category": handlerpkg.MetadataKeyCoTCategory,
			} {
				if value := msg.Metadata.Get(key); value != "" {
					span.SetAttributes(attribute.String(attr, value))
				}
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, ce.ClassifyError(err).String())
			}
			return produced, err
		}
	}
}

func (s *Service) metricsHandler() http.Handler {
	if gatherer, ok := s.registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
