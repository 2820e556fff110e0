package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
	"github.com/drblury/cotflow/internal/runtime/jsoncodec"
)

// Metadata keys mirroring the context attributes of an event, so consumers
// can route on them without decoding the payload.
const (
	MetadataKeyEventID     = "ce_id"
	MetadataKeyEventType   = "ce_type"
	MetadataKeyEventSource = "ce_source"
	MetadataKeyEventSpec   = "ce_specversion"
)

// EventHandlerRegistration describes a consumer of relay events whose data
// decodes into T.
type EventHandlerRegistration[T any] = handlerpkg.EventHandlerRegistration[T]

// EventMessageContext is passed to event handlers.
type EventMessageContext[T any] = handlerpkg.EventMessageContext[T]

// PublishEvent validates evt and publishes it to topic in structured JSON mode.
func (s *Service) PublishEvent(ctx context.Context, topic string, evt ce.Event) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if s.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := toWatermillMessage(evt)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	if id := ce.CorrelationID(evt); id != "" {
		msg.Metadata.Set(handlerpkg.MetadataKeyCorrelationID, id)
	}
	return s.publisher.Publish(topic, msg)
}

// RegisterEventHandler registers a consumer of CloudEvents. Events that fail
// to decode are moved to the poison queue; ErrSkip acknowledges the event.
func RegisterEventHandler[T any](svc *Service, cfg EventHandlerRegistration[T]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	handler, err := handlerpkg.BuildEventHandler(cfg.Handler, svc.Logger)
	if err != nil {
		return err
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		Handler: func(msg *message.Message) ([]*message.Message, error) {
			return nil, handler(msg)
		},
	})
}

// toWatermillMessage encodes evt as the payload of a new message. The
// message UUID is the event id.
func toWatermillMessage(evt ce.Event) (*message.Message, error) {
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cloudevent: %w", err)
	}

	payload, err := jsoncodec.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode cloudevent: %w", err)
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(MetadataKeyEventID, evt.ID)
	msg.Metadata.Set(MetadataKeyEventType, evt.Type)
	msg.Metadata.Set(MetadataKeyEventSource, evt.Source)
	msg.Metadata.Set(MetadataKeyEventSpec, evt.SpecVersion)
	for key, value := range evt.Extensions {
		msg.Metadata.Set("ce_"+key, value)
	}
	return msg, nil
}
