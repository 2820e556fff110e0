// Package cotflow reads, writes and relays Cursor-on-Target (CoT) events.
//
// The event model is generic over its detail region: Event[RawDetail]
// (Message) keeps every <detail> child as a raw XML fragment in document
// order, duplicates included, while Event[D] for a caller-supplied D decodes
// the region into a typed schema such as MarkerDetail. Parse combines a
// streaming pass that extracts the fragments with a strict decode of the
// envelope, and Classify infers a coarse Category (marker, geofence, route,
// range and bearing, shape) from the fragments and the event type.
//
// Service relays documents over Watermill. RegisterRelayHandler consumes raw
// CoT from the input topic, classifies each document and publishes a
// CloudEvent with the parsed envelope and fragments to the output topic of
// its category. The transport (Go channels, I/O, Kafka, RabbitMQ, NATS,
// HTTP, AWS SNS/SQS) is chosen from Config, and documents that cannot be
// parsed are moved to the poison queue instead of being retried.
//
// # Middleware
//
// The default chain injects correlation ids, logs payloads, archives handled
// documents, opens an OpenTelemetry span, records Prometheus metrics, retries
// with exponential backoff, forwards poison messages and recovers panics.
// Custom middleware can be added via ServiceDependencies.Middlewares.
//
// # Archive
//
// With an ArchiveStore (in memory or PostgreSQL) every relayed document is
// kept and can be listed by uid or category through the status API.
package cotflow
