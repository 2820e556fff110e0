/*
Package runtime runs the CoT relay on top of a Watermill router.

# Service

Service wires the router, the transport built from the configuration, the
middleware chain and the optional archive. Handlers are registered before
Start:

  - RegisterRelayHandler: parses raw CoT documents, classifies them and
    publishes one CloudEvent per document to the output topic
  - RegisterCoTHandler, RegisterTypedHandler: typed CoT handlers decoding the
    detail region into a caller-supplied type
  - RegisterEventHandler: consumers of relay events
  - RegisterMessageHandler: raw Watermill handlers

# Middleware

The default chain, outermost first:

  - correlation_id: ensures every message carries a correlation id
  - log_messages: debug logging of payloads
  - archive: stores handled documents when an archive is configured
  - tracer: OpenTelemetry span per message
  - metrics: Watermill Prometheus router metrics when enabled
  - retry: exponential backoff for retryable errors
  - poison_queue: moves unprocessable and dead-lettered messages aside
  - outcome: acknowledges skipped messages
  - recoverer: turns panics into errors

# Status

With StatusEnabled the service serves /healthz and a JSON API under /api/
listing handlers with their statistics and the archived documents.

# Sub-packages

  - archive/: in-memory and Postgres document archive
  - cloudevents/: relay event envelope and handler outcome errors
  - config/: relay configuration, validation and environment loading
  - errors/: sentinel errors
  - handlers/: typed handler builders and message contexts
  - ids/: ULID generation for message ids
  - jsoncodec/: JSON marshaling
  - logging/: logger interface and adapters
  - metadata/: message header maps
  - transport/: pub/sub transports (channel, io, Kafka, RabbitMQ, NATS, HTTP, AWS)
*/
package runtime
