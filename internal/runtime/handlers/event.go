package handlers

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/cotflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/cotflow/internal/runtime/metadata"
)

// EventHandlerRegistration wires a consumer of relay output events.
type EventHandlerRegistration[T any] struct {
	Name         string
	ConsumeQueue string
	Handler      EventMessageHandler[T]
}

// EventMessageContext carries a CloudEvents envelope and its decoded data.
type EventMessageContext[T any] struct {
	MessageContextBase
	Event ce.Event
	Data  T
}

// EventMessageHandler consumes one event. The returned error is classified
// with cloudevents.ClassifyError.
type EventMessageHandler[T any] func(ctx context.Context, msg EventMessageContext[T]) error

// DecodeEvent reads a CloudEvents JSON payload and validates it.
func DecodeEvent(msg *message.Message) (ce.Event, error) {
	var evt ce.Event
	if err := jsoncodec.Unmarshal(msg.Payload, &evt); err != nil {
		return ce.Event{}, Unprocessable(msg, fmt.Errorf("decode cloudevent: %w", err))
	}
	if err := evt.Validate(); err != nil {
		return ce.Event{}, Unprocessable(msg, err)
	}
	return evt, nil
}

// BuildEventHandler converts a typed event handler into a Watermill handler
// that publishes nothing. Skipped events are acknowledged.
func BuildEventHandler[T any](handler EventMessageHandler[T], logger loggingpkg.ServiceLogger) (message.NoPublishHandlerFunc, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	return func(msg *message.Message) error {
		evt, err := DecodeEvent(msg)
		if err != nil {
			return err
		}

		var data T
		if err := evt.DecodeData(&data); err != nil {
			return Unprocessable(msg, err)
		}

		ctx := EventMessageContext[T]{
			MessageContextBase: MessageContextBase{
				Metadata: metadatapkg.FromWatermill(msg.Metadata),
				Logger:   logger.With(loggingpkg.LogFields{"event_id": evt.ID, "event_type": evt.Type}),
			},
			Event: evt,
			Data:  data,
		}

		err = handler(msg.Context(), ctx)
		if ce.ClassifyError(err) == ce.ResultSkip {
			ctx.Logger.Debug("Skipping event", nil)
			return nil
		}
		return err
	}, nil
}
