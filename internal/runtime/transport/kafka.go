package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	KafkaPublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	KafkaSubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

func kafkaTransport(_ context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error) {
	publisher, err := KafkaPublisherFactory(
		kafka.PublisherConfig{
			Brokers:   conf.GetKafkaBrokers(),
			Marshaler: kafka.DefaultMarshaler{},
		},
		logger,
	)
	if err != nil {
		return Transport{}, err
	}

	subscriber, err := KafkaSubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:       conf.GetKafkaBrokers(),
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: conf.GetKafkaConsumerGroup(),
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, err
	}

	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
