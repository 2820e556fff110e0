package handlers

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
	"github.com/drblury/cotflow/internal/fixtures"
	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
)

func fixtureMessage(t *testing.T, name string) *message.Message {
	t.Helper()
	fx, err := fixtures.Examples().Get(name)
	require.NoError(t, err)
	msg := message.NewMessage("msg-"+name, []byte(fx.Text))
	msg.Metadata.Set(MetadataKeyCorrelationID, "corr-1")
	return msg
}

func TestBuildCoTHandler_RequiresHandlerAndLogger(t *testing.T) {
	_, err := BuildCoTHandler[cot.RawDetail, cot.RawDetail](nil, discardLogger())
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)

	noop := func(context.Context, CoTMessageContext[cot.RawDetail]) ([]CoTMessageOutput[cot.RawDetail], error) {
		return nil, nil
	}
	_, err = BuildCoTHandler(noop, nil)
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestBuildCoTHandler_RawDetail(t *testing.T) {
	var got CoTMessageContext[cot.RawDetail]
	handler, err := BuildCoTHandler(func(_ context.Context, msg CoTMessageContext[cot.RawDetail]) ([]CoTMessageOutput[cot.RawDetail], error) {
		got = msg
		out := cot.FromBase(msg.Event)
		out.Detail = append(out.Detail, `<remarks>seen</remarks>`)
		return []CoTMessageOutput[cot.RawDetail]{{Event: out}}, nil
	}, discardLogger())
	require.NoError(t, err)

	produced, err := handler(fixtureMessage(t, "track"))
	require.NoError(t, err)
	require.Len(t, produced, 1)

	assert.Equal(t, "1228717", got.Event.UID)
	assert.Len(t, got.Event.Detail, 3)
	assert.Equal(t, "corr-1", got.CorrelationID())
	assert.Contains(t, got.Raw, `uid="1228717"`)

	out := produced[0]
	assert.Equal(t, "corr-1", out.Metadata.Get(MetadataKeyCorrelationID))
	assert.Equal(t, "1228717", out.Metadata.Get(MetadataKeyCoTUID))
	assert.Equal(t, "m-g", out.Metadata.Get(MetadataKeyCoTHow))
	assert.NotEmpty(t, out.UUID)

	back, err := cot.Parse(string(out.Payload))
	require.NoError(t, err)
	assert.Equal(t, cot.RawDetail{`<remarks>seen</remarks>`}, back.Detail)
}

func TestBuildCoTHandler_TypedDetail(t *testing.T) {
	handler, err := BuildCoTHandler(func(_ context.Context, msg CoTMessageContext[tak.MarkerDetail]) ([]CoTMessageOutput[tak.MarkerDetail], error) {
		marker := tak.NewMarker(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
		marker.Detail.Contact.Callsign = msg.Event.Detail.Contact.Callsign
		return []CoTMessageOutput[tak.MarkerDetail]{{Event: marker, Metadata: msg.CloneMetadata().With("copy", "yes")}}, nil
	}, discardLogger())
	require.NoError(t, err)

	produced, err := handler(fixtureMessage(t, "marker-2525"))
	require.NoError(t, err)
	require.Len(t, produced, 1)
	assert.Equal(t, "yes", produced[0].Metadata.Get("copy"))
	assert.Equal(t, tak.DefaultMarkerType, produced[0].Metadata.Get(MetadataKeyCoTType))
	assert.Empty(t, produced[0].Metadata.Get(MetadataKeyCoTHow))

	marker, err := tak.DecodeMarker(string(produced[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, "H.1", marker.Detail.Contact.Callsign)
}

func TestBuildCoTHandler_Unprocessable(t *testing.T) {
	called := false
	handler, err := BuildCoTHandler(func(context.Context, CoTMessageContext[cot.RawDetail]) ([]CoTMessageOutput[cot.RawDetail], error) {
		called = true
		return nil, nil
	}, discardLogger())
	require.NoError(t, err)

	for _, payload := range []string{"", "   ", "<event", `<event version="2.0"/>`} {
		_, err := handler(message.NewMessage("bad", []byte(payload)))
		require.Error(t, err, payload)
		assert.ErrorIs(t, err, ce.ErrUnprocessable, payload)
		assert.True(t, ce.ShouldDeadLetter(err), payload)

		var unprocessable *UnprocessableEventError
		require.True(t, errors.As(err, &unprocessable))
		assert.Equal(t, "bad", unprocessable.MessageUUID)
	}
	assert.False(t, called)

	_, err = handler(message.NewMessage("empty", nil))
	assert.ErrorIs(t, err, errspkg.ErrDocumentRequired)

	_, err = handler(message.NewMessage("broken", []byte("<event")))
	assert.ErrorIs(t, err, cot.ErrParse)
}

func TestBuildCoTHandler_HandlerErrorPassesThrough(t *testing.T) {
	boom := errors.New("downstream unavailable")
	handler, err := BuildCoTHandler(func(context.Context, CoTMessageContext[cot.NoDetail]) ([]CoTMessageOutput[cot.NoDetail], error) {
		return nil, boom
	}, discardLogger())
	require.NoError(t, err)

	_, err = handler(fixtureMessage(t, "base"))
	assert.ErrorIs(t, err, boom)
	assert.True(t, ce.IsRetryable(err))
}

func TestBuildCoTHandler_RejectsIncompleteOutput(t *testing.T) {
	handler, err := BuildCoTHandler(func(context.Context, CoTMessageContext[cot.NoDetail]) ([]CoTMessageOutput[cot.NoDetail], error) {
		return []CoTMessageOutput[cot.NoDetail]{{}}, nil
	}, discardLogger())
	require.NoError(t, err)

	_, err = handler(fixtureMessage(t, "base"))
	assert.Error(t, err)
}

func TestCoTHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"cot_uid": "u", "cot_type": "a-f-G"}, map[string]string(CoTHeaders("u", "a-f-G", "")))
	assert.Equal(t, "h-e", CoTHeaders("u", "a-f-G", "h-e")[MetadataKeyCoTHow])
}

func TestBuildCoTHandler_StampsIncomingHeaders(t *testing.T) {
	handler, err := BuildCoTHandler(func(_ context.Context, msg CoTMessageContext[cot.NoDetail]) ([]CoTMessageOutput[cot.NoDetail], error) {
		assert.Equal(t, "1228717", msg.CoTUID())
		out := cot.NewEvent("copy", "a-f-G", cot.NoDetail{}, time.Now())
		return []CoTMessageOutput[cot.NoDetail]{{Event: out}}, nil
	}, discardLogger())
	require.NoError(t, err)

	in := fixtureMessage(t, "track")
	produced, err := handler(in)
	require.NoError(t, err)

	assert.Equal(t, "1228717", in.Metadata.Get(MetadataKeyCoTUID))
	assert.Equal(t, "m-g", in.Metadata.Get(MetadataKeyCoTHow))
	require.Len(t, produced, 1)
	assert.Equal(t, "copy", produced[0].Metadata.Get(MetadataKeyCoTUID))
	assert.Empty(t, produced[0].Metadata.Get(MetadataKeyCoTHow))
}
