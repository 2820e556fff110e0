package transport

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

type testConfig struct {
	pubSub        string
	kafkaBrokers  []string
	kafkaGroup    string
	rabbitURL     string
	natsURL       string
	natsName      string
	natsJetStream bool
	httpAddr      string
	httpURL       string
	ioFile        string
	awsRegion     string
	awsAccount    string
	awsKey        string
	awsSecret     string
	awsEndpoint   string
}

func (c testConfig) GetPubSubSystem() string       { return c.pubSub }
func (c testConfig) GetKafkaBrokers() []string     { return c.kafkaBrokers }
func (c testConfig) GetKafkaConsumerGroup() string { return c.kafkaGroup }
func (c testConfig) GetRabbitMQURL() string        { return c.rabbitURL }
func (c testConfig) GetNATSURL() string            { return c.natsURL }
func (c testConfig) GetNATSClientName() string     { return c.natsName }
func (c testConfig) GetNATSJetStream() bool        { return c.natsJetStream }
func (c testConfig) GetHTTPServerAddress() string  { return c.httpAddr }
func (c testConfig) GetHTTPPublisherURL() string   { return c.httpURL }
func (c testConfig) GetIOFile() string             { return c.ioFile }
func (c testConfig) GetAWSRegion() string          { return c.awsRegion }
func (c testConfig) GetAWSAccountID() string       { return c.awsAccount }
func (c testConfig) GetAWSAccessKeyID() string     { return c.awsKey }
func (c testConfig) GetAWSSecretAccessKey() string { return c.awsSecret }
func (c testConfig) GetAWSEndpoint() string        { return c.awsEndpoint }

type testPublisher struct {
	mu     sync.Mutex
	closed int
}

func (p *testPublisher) Publish(string, ...*message.Message) error { return nil }

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

type testSubscriber struct {
	mu     sync.Mutex
	closed int
}

func (s *testSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type testPubSub struct {
	testPublisher
	testSubscriber
}

func (p *testPubSub) Close() error { return p.testPublisher.Close() }
