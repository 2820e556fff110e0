package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
)

// NATSReconnectWait is the pause between reconnect attempts.
const NATSReconnectWait = 2 * time.Second

var (
	NATSPublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return wmnats.NewPublisher(cfg, logger)
	}
	NATSSubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return wmnats.NewSubscriber(cfg, logger)
	}
)

// natsOptions are the client options shared by publisher and subscriber.
func natsOptions(conf Config) []nats.Option {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(NATSReconnectWait),
	}
	if name := conf.GetNATSClientName(); name != "" {
		opts = append(opts, nats.Name(name))
	}
	return opts
}

func natsJetStreamConfig(conf Config) wmnats.JetStreamConfig {
	if !conf.GetNATSJetStream() {
		return wmnats.JetStreamConfig{Disabled: true}
	}
	return wmnats.JetStreamConfig{
		AutoProvision: true,
		TrackMsgId:    true,
		AckAsync:      false,
		DurablePrefix: "cotflow",
	}
}

func natsTransport(_ context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error) {
	marshaler := &wmnats.NATSMarshaler{}
	opts := natsOptions(conf)
	jsConfig := natsJetStreamConfig(conf)

	publisher, err := NATSPublisherFactory(
		wmnats.PublisherConfig{
			URL:         conf.GetNATSURL(),
			NatsOptions: opts,
			Marshaler:   marshaler,
			JetStream:   jsConfig,
		},
		logger,
	)
	if err != nil {
		return Transport{}, err
	}

	subscriber, err := NATSSubscriberFactory(
		wmnats.SubscriberConfig{
			URL:         conf.GetNATSURL(),
			NatsOptions: opts,
			Unmarshaler: marshaler,
			JetStream:   jsConfig,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, err
	}

	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
