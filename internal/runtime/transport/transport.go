// Package transport builds the Watermill publisher/subscriber pair the relay
// runs on. Builders are looked up by name in a Registry; the built-ins cover
// channel, io, kafka, rabbitmq, nats, http and aws.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the subscriber, then the publisher. When both share one
// implementation it is closed once.
func (t Transport) Close() error {
	var subErr error
	if t.Subscriber != nil {
		subErr = t.Subscriber.Close()
	}
	if t.Publisher == nil || any(t.Publisher) == any(t.Subscriber) {
		return subErr
	}
	if err := t.Publisher.Close(); err != nil {
		return err
	}
	return subErr
}

// Builder creates a transport from configuration.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the subset of the relay configuration transports read.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string
	GetNATSClientName() string
	GetNATSJetStream() bool

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetIOFile() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// Capabilities describes delivery guarantees of a transport.
type Capabilities struct {
	Name string

	// SupportsOrdering is set when messages of one topic arrive in publish
	// order.
	SupportsOrdering bool
	SupportsAck      bool
	SupportsNack     bool
	// Durable transports keep messages across relay restarts.
	Durable bool

	// MaxMessageSize is in bytes, 0 when unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		Durable:          true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1 << 20,
	}

	// NATSJetStreamCapabilities apply when the nats transport runs with
	// JetStream enabled.
	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		SupportsAck:    true,
		SupportsNack:   true,
		Durable:        true,
		MaxMessageSize: 256 << 10,
	}
)
