package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/cotflow/internal/runtime/archive"
	configpkg "github.com/drblury/cotflow/internal/runtime/config"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	transportpkg "github.com/drblury/cotflow/internal/runtime/transport"
)

func TestNewService_RequiresConfigAndLogger(t *testing.T) {
	_, err := NewService(nil, newTestLogger(), context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewService(testConfig(), nil, context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestNewService_UsesFactoryTransport(t *testing.T) {
	pub := &testPublisher{}
	sub := &testSubscriber{}
	svc := newTestService(t, nil, transportpkg.Transport{Publisher: pub, Subscriber: sub}, ServiceDependencies{})

	assert.Same(t, pub, svc.publisher)
	assert.Same(t, sub, svc.subscriber)
	assert.Nil(t, svc.Archive())
	assert.Equal(t, "channel", svc.Capabilities().Name)
	assert.True(t, svc.Capabilities().SupportsAck)
}

func TestNewService_FactoryError(t *testing.T) {
	boom := errors.New("no broker")
	factory := transportpkg.FactoryFunc(func(context.Context, transportpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, boom
	})

	_, err := NewService(testConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory: factory,
		Registerer:       prometheus.NewRegistry(),
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"channel"`)
}

func TestNewService_MiddlewareError(t *testing.T) {
	boom := errors.New("bad middleware")
	_, err := NewService(testConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory: transportpkg.Static(transportpkg.Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}),
		Registerer:       prometheus.NewRegistry(),
		Middlewares: []MiddlewareRegistration{{
			Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, boom },
		}},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "anonymous_middleware")
}

func TestNewService_PoisonQueueNeedsPublisher(t *testing.T) {
	_, err := NewService(testConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory: transportpkg.Static(transportpkg.Transport{Subscriber: &testSubscriber{}}),
		Registerer:       prometheus.NewRegistry(),
	})
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)
}

func TestNewService_SharedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	transport := transportpkg.Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}

	first := newTestService(t, nil, transport, ServiceDependencies{Registerer: registry})
	second := newTestService(t, nil, transport, ServiceDependencies{Registerer: registry})
	assert.Same(t, first.metrics.classified, second.metrics.classified)
}

func TestService_StartAndClose(t *testing.T) {
	store := archive.NewMemoryStore()
	svc, _ := newChannelService(t, nil, ServiceDependencies{Archive: store})
	require.NoError(t, RegisterRelayHandler(svc, RelayRegistration{}))

	runService(t, svc)
	assert.Same(t, store, svc.Archive())
}

func TestService_RouterErrorIsReturned(t *testing.T) {
	orig := routerRun
	t.Cleanup(func() { routerRun = orig })

	boom := errors.New("router failed")
	routerRun = func(*message.Router, context.Context) error { return boom }

	svc := newTestService(t, nil, transportpkg.Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}, ServiceDependencies{})
	assert.ErrorIs(t, svc.Start(context.Background()), boom)
}

func TestService_ShutdownTimeout(t *testing.T) {
	svc := newTestService(t, nil, transportpkg.Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}, ServiceDependencies{})
	assert.Equal(t, svc.Conf.ShutdownTimeout, svc.shutdownTimeout())

	svc.Conf.ShutdownTimeout = 0
	assert.Equal(t, configpkg.DefaultShutdown, svc.shutdownTimeout())
}

func TestMetricsNamespace(t *testing.T) {
	assert.Equal(t, "cotflow", metricsNamespace(&configpkg.Config{}))
	assert.Equal(t, "edge_relay_1", metricsNamespace(&configpkg.Config{ServiceName: "edge-relay.1"}))
}
