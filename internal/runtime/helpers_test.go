package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/cotflow/internal/runtime/config"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
	transportpkg "github.com/drblury/cotflow/internal/runtime/transport"
)

const testTimeout = 5 * time.Second

type publishedMessage struct {
	topic string
	msg   *message.Message
}

type testPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.published = append(p.published, publishedMessage{topic: topic, msg: msg})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]publishedMessage, len(p.published))
	copy(clone, p.published)
	return clone
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func testConfig() *configpkg.Config {
	conf := configpkg.Default()
	conf.RetryMaxRetries = 1
	conf.RetryInitialInterval = time.Millisecond
	conf.RetryMaxInterval = time.Millisecond
	conf.ShutdownTimeout = time.Second
	return conf
}

// newTestService builds a service over transport with its own registry.
func newTestService(t *testing.T, conf *configpkg.Config, transport transportpkg.Transport, deps ServiceDependencies) *Service {
	t.Helper()
	if conf == nil {
		conf = testConfig()
	}
	deps.TransportFactory = transportpkg.Static(transport)
	if deps.Registerer == nil {
		deps.Registerer = prometheus.NewRegistry()
	}
	svc, err := NewService(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)
	return svc
}

// newChannelService builds a service on a fresh in-memory pub/sub and
// returns the pub/sub so tests can publish and subscribe around it.
func newChannelService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) (*Service, *gochannel.GoChannel) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	svc := newTestService(t, conf, transportpkg.Transport{Publisher: pubSub, Subscriber: pubSub}, deps)
	return svc, pubSub
}

// runService starts svc and waits until every handler is subscribed. The
// service is stopped when the test ends.
func runService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	select {
	case <-svc.Running():
	case err := <-done:
		cancel()
		t.Fatalf("service stopped before running: %v", err)
	case <-time.After(testTimeout):
		cancel()
		t.Fatal("service did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(testTimeout):
			t.Error("service did not stop")
		}
		_ = svc.Close()
	})
}

func subscribe(t *testing.T, sub message.Subscriber, topic string) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := sub.Subscribe(ctx, topic)
	require.NoError(t, err)
	return ch
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		require.NotNil(t, msg)
		msg.Ack()
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for message")
		return nil
	}
}
