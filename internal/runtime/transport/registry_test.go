package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
)

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	assert.Equal(t,
		[]string{"aws", "channel", "gochannel", "http", "io", "kafka", "nats", "rabbitmq"},
		DefaultRegistry.Names(),
	)
	assert.Equal(t, KafkaCapabilities, GetCapabilities("kafka"))
	assert.True(t, GetCapabilities("rabbitmq").SupportsReliableDelivery())
	assert.False(t, GetCapabilities("nats").SupportsReliableDelivery())
	assert.Equal(t, Capabilities{Name: "carrier-pigeon"}, GetCapabilities("carrier-pigeon"))
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	want := Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}
	var gotLogger watermill.LoggerAdapter
	r.Register("custom", func(_ context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		gotLogger = logger
		return want, nil
	})

	assert.True(t, r.Has("custom"))
	got, err := r.Build(context.Background(), testConfig{pubSub: "custom"}, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.IsType(t, watermill.NopLogger{}, gotLogger)
}

func TestRegistryBuildErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build(context.Background(), nil, watermill.NopLogger{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = r.Build(context.Background(), testConfig{pubSub: "missing"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, errspkg.ErrUnknownTransport)
	assert.Contains(t, err.Error(), `"missing"`)

	boom := errors.New("boom")
	r.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, boom
	})
	_, err = r.Build(context.Background(), testConfig{pubSub: "broken"}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestDefaultFactoryBuildsChannel(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), testConfig{pubSub: "channel"}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NotNil(t, tr.Publisher)
	assert.NoError(t, tr.Close())
}

func TestStaticFactory(t *testing.T) {
	want := Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}
	got, err := Static(want).Build(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTransportClose(t *testing.T) {
	pub, sub := &testPublisher{}, &testSubscriber{}
	require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, 1, sub.closed)

	shared := &testPubSub{}
	require.NoError(t, Transport{Publisher: shared, Subscriber: shared}.Close())
	assert.Equal(t, 1, shared.testPublisher.closed)

	assert.NoError(t, Transport{}.Close())
}
