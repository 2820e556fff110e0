package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/cotflow/internal/cot"
	"github.com/drblury/cotflow/internal/cot/tak"
	"github.com/drblury/cotflow/internal/runtime/archive"
	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
	transportpkg "github.com/drblury/cotflow/internal/runtime/transport"
)

func TestRegisterMessageHandler_Validation(t *testing.T) {
	noop := func(*message.Message) ([]*message.Message, error) { return nil, nil }

	assert.ErrorIs(t, RegisterMessageHandler(nil, MessageHandlerRegistration{}), errspkg.ErrServiceRequired)

	svc := newTestService(t, nil, transportpkg.Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}, ServiceDependencies{})
	tests := []struct {
		name string
		cfg  MessageHandlerRegistration
		want error
	}{
		{name: "handler", cfg: MessageHandlerRegistration{Name: "h", ConsumeQueue: "in"}, want: errspkg.ErrHandlerRequired},
		{name: "name", cfg: MessageHandlerRegistration{ConsumeQueue: "in", Handler: noop}, want: errspkg.ErrHandlerNameRequired},
		{name: "queue", cfg: MessageHandlerRegistration{Name: "h", Handler: noop}, want: errspkg.ErrConsumeQueueRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, RegisterMessageHandler(svc, tt.cfg), tt.want)
		})
	}

	require.NoError(t, RegisterMessageHandler(svc, MessageHandlerRegistration{Name: "h", ConsumeQueue: "in", PublishQueue: "out", Handler: noop}))
	require.Len(t, svc.Handlers(), 1)
	assert.Equal(t, "out", svc.Handlers()[0].PublishQueue)
}

func TestRegisterMessageHandler_RecordsStats(t *testing.T) {
	svc, pubSub := newChannelService(t, nil, ServiceDependencies{})

	calls := 0
	require.NoError(t, RegisterMessageHandler(svc, MessageHandlerRegistration{
		Name:         "echo",
		ConsumeQueue: "echo.in",
		PublishQueue: "echo.out",
		Handler: func(msg *message.Message) ([]*message.Message, error) {
			calls++
			if string(msg.Payload) == "skip" {
				return nil, ce.ErrSkip
			}
			return []*message.Message{message.NewMessage("reply-"+msg.UUID, msg.Payload)}, nil
		},
	}))

	out := subscribe(t, pubSub, "echo.out")
	runService(t, svc)

	require.NoError(t, pubSub.Publish("echo.in", message.NewMessage("1", []byte("skip"))))
	require.NoError(t, pubSub.Publish("echo.in", message.NewMessage("2", []byte("hello"))))

	reply := receive(t, out)
	assert.Equal(t, "reply-2", reply.UUID)

	stats := svc.Handlers()[0].Stats
	require.Eventually(t, func() bool { return stats.Snapshot().MessagesProcessed == 2 }, testTimeout, 10*time.Millisecond)
	snapshot := stats.Snapshot()
	assert.Equal(t, OutcomeCounts{Ack: 1, Skip: 1}, snapshot.Outcomes)
	assert.Zero(t, snapshot.MessagesFailed)
	assert.Equal(t, 2, calls)
}

func TestRegisterCoTHandler_EndToEnd(t *testing.T) {
	store := archive.NewMemoryStore()
	svc, pubSub := newChannelService(t, nil, ServiceDependencies{Archive: store})

	require.NoError(t, RegisterCoTHandler(svc, CoTHandlerRegistration[tak.MarkerDetail, tak.MarkerDetail]{
		Name:         "relabel",
		ConsumeQueue: "markers.in",
		PublishQueue: "markers.out",
		Handler: func(_ context.Context, msg CoTMessageContext[tak.MarkerDetail]) ([]CoTMessageOutput[tak.MarkerDetail], error) {
			out := msg.Event
			out.UID = msg.Event.UID + "-copy"
			out.Detail.Contact.Callsign = "RELAY"
			return []CoTMessageOutput[tak.MarkerDetail]{{Event: out}}, nil
		},
	}))

	out := subscribe(t, pubSub, "markers.out")
	runService(t, svc)

	require.NoError(t, svc.PublishCoT(context.Background(), "markers.in", fixtureText(t, "marker-2525"), nil))

	reply := receive(t, out)
	marker, err := tak.DecodeMarker(string(reply.Payload))
	require.NoError(t, err)
	assert.Equal(t, "9405e320-9356-41c4-8449-f46990aa17f8-copy", marker.UID)
	assert.Equal(t, "RELAY", marker.Detail.Contact.Callsign)
	assert.Equal(t, marker.UID, reply.Metadata.Get(handlerpkg.MetadataKeyCoTUID))

	require.Eventually(t, func() bool {
		records, err := store.List(context.Background(), archive.Query{UID: "9405e320-9356-41c4-8449-f46990aa17f8"})
		return err == nil && len(records) == 1
	}, testTimeout, 10*time.Millisecond)
}

func TestRegisterCoTHandler_Validation(t *testing.T) {
	handler := func(context.Context, CoTMessageContext[cot.RawDetail]) ([]CoTMessageOutput[cot.RawDetail], error) {
		return nil, nil
	}
	assert.ErrorIs(t, RegisterCoTHandler(nil, CoTHandlerRegistration[cot.RawDetail, cot.RawDetail]{}), errspkg.ErrServiceRequired)

	svc := newTestService(t, nil, transportpkg.Transport{Publisher: &testPublisher{}, Subscriber: &testSubscriber{}}, ServiceDependencies{})
	assert.ErrorIs(t, RegisterCoTHandler(svc, CoTHandlerRegistration[cot.RawDetail, cot.RawDetail]{
		Name: "h", ConsumeQueue: "in", Handler: handler,
	}), errspkg.ErrPublishQueueRequired)
	assert.ErrorIs(t, RegisterCoTHandler(svc, CoTHandlerRegistration[cot.RawDetail, cot.RawDetail]{
		Name: "h", ConsumeQueue: "in", PublishQueue: "out",
	}), errspkg.ErrHandlerRequired)
}

func TestRegisterTypedHandler(t *testing.T) {
	assert.ErrorIs(t, RegisterTypedHandler(nil, TypedHandlerRegistration[cot.RawDetail]{}), errspkg.ErrServiceRequired)

	svc, _ := newChannelService(t, nil, ServiceDependencies{})
	assert.ErrorIs(t, RegisterTypedHandler(svc, TypedHandlerRegistration[cot.RawDetail]{Name: "h", ConsumeQueue: "in"}), errspkg.ErrHandlerRequired)

	seen := make(chan CoTMessageContext[cot.RawDetail], 1)
	require.NoError(t, RegisterTypedHandler(svc, TypedHandlerRegistration[cot.RawDetail]{
		Name:         "tracks",
		ConsumeQueue: "tracks.in",
		Handler: func(_ context.Context, msg CoTMessageContext[cot.RawDetail]) error {
			seen <- msg
			return nil
		},
	}))
	runService(t, svc)

	require.NoError(t, svc.PublishCoT(context.Background(), "tracks.in", fixtureText(t, "track"), nil))

	select {
	case msg := <-seen:
		assert.Equal(t, "1228717", msg.Event.UID)
		assert.Len(t, msg.Event.Detail, 3)
		assert.Equal(t, "1228717", msg.CoTUID())
		assert.NotEmpty(t, msg.CorrelationID())
	case <-time.After(testTimeout):
		t.Fatal("typed handler not called")
	}
}

func TestRegisterTypedHandler_DecodeFailureIsPoisoned(t *testing.T) {
	svc, pubSub := newChannelService(t, nil, ServiceDependencies{})
	require.NoError(t, RegisterTypedHandler(svc, TypedHandlerRegistration[tak.MarkerDetail]{
		Name:         "markers",
		ConsumeQueue: "markers.in",
		Handler: func(context.Context, CoTMessageContext[tak.MarkerDetail]) error {
			return errors.New("unreachable")
		},
	}))

	poison := subscribe(t, pubSub, svc.Conf.PoisonQueue)
	runService(t, svc)

	// No uid, times or point.
	require.NoError(t, pubSub.Publish("markers.in", message.NewMessage("bad", []byte("<event version='2.0'/>"))))

	out := receive(t, poison)
	assert.Equal(t, "bad", out.UUID)
}
