package handlers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/cotflow/internal/cot"
	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	idspkg "github.com/drblury/cotflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/cotflow/internal/runtime/metadata"
)

// UnprocessableEventError wraps payloads that failed to decode. Such messages
// are dead lettered without retry.
type UnprocessableEventError struct {
	MessageUUID string
	Err         error
}

func (e *UnprocessableEventError) Error() string {
	return fmt.Sprintf("unprocessable event %s: %v", e.MessageUUID, e.Err)
}

func (e *UnprocessableEventError) Unwrap() error { return e.Err }

func (e *UnprocessableEventError) Is(target error) bool {
	return target == ce.ErrUnprocessable
}

// Unprocessable wraps err for the message msg.
func Unprocessable(msg *message.Message, err error) error {
	uuid := ""
	if msg != nil {
		uuid = msg.UUID
	}
	return &UnprocessableEventError{MessageUUID: uuid, Err: err}
}

// CoTHandlerRegistration wires a typed CoT handler to the router.
type CoTHandlerRegistration[D any, O any] struct {
	Name         string
	ConsumeQueue string
	PublishQueue string
	Handler      CoTMessageHandler[D, O]
}

// CoTMessageContext exposes the decoded event, the raw document and the
// metadata of an incoming CoT message.
type CoTMessageContext[D any] struct {
	MessageContextBase
	Event cot.Event[D]
	Raw   string
}

// CoTMessageOutput is an event emitted by a CoT handler. Nil Metadata
// inherits the headers of the incoming message.
type CoTMessageOutput[O any] struct {
	Event    cot.Event[O]
	Metadata metadatapkg.Metadata
}

// CoTMessageHandler processes one decoded CoT event and returns the events to
// publish.
type CoTMessageHandler[D any, O any] func(ctx context.Context, msg CoTMessageContext[D]) ([]CoTMessageOutput[O], error)

// DecodePayload decodes a message body as a CoT document with detail D.
// Empty bodies and decode failures are unprocessable.
func DecodePayload[D any](msg *message.Message) (cot.Event[D], error) {
	if len(bytes.TrimSpace(msg.Payload)) == 0 {
		return cot.Event[D]{}, Unprocessable(msg, errspkg.ErrDocumentRequired)
	}
	evt, err := cot.Decode[D](string(msg.Payload))
	if err != nil {
		return cot.Event[D]{}, Unprocessable(msg, err)
	}
	return evt, nil
}

// BuildCoTHandler converts a typed CoT handler into a Watermill handler.
// Use cot.RawDetail as D to receive the detail region as raw fragments.
func BuildCoTHandler[D any, O any](handler CoTMessageHandler[D, O], logger loggingpkg.ServiceLogger) (message.HandlerFunc, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		evt, err := DecodePayload[D](msg)
		if err != nil {
			return nil, err
		}

		for key, value := range CoTHeaders(evt.UID, evt.Type, evt.How) {
			msg.Metadata.Set(key, value)
		}

		md := metadatapkg.FromWatermill(msg.Metadata)
		ctx := CoTMessageContext[D]{
			MessageContextBase: MessageContextBase{
				Metadata: md,
				Logger:   logger.With(loggingpkg.LogFields{"cot_uid": evt.UID, "cot_type": evt.Type}),
			},
			Event: evt,
			Raw:   string(msg.Payload),
		}

		outgoing, err := handler(msg.Context(), ctx)
		if err != nil {
			return nil, err
		}
		return convertCoTOutputs(outgoing, md)
	}, nil
}

func convertCoTOutputs[O any](outputs []CoTMessageOutput[O], fallback metadatapkg.Metadata) ([]*message.Message, error) {
	if len(outputs) == 0 {
		return nil, nil
	}

	result := make([]*message.Message, len(outputs))
	for i, out := range outputs {
		if out.Event.UID == "" || out.Event.Type == "" {
			return nil, fmt.Errorf("cot handler emitted event %d without uid or type", i)
		}

		payload, err := cot.Encode(out.Event)
		if err != nil {
			return nil, fmt.Errorf("encode cot output: %w", err)
		}

		md := out.Metadata
		if md == nil {
			md = fallback
		}
		md = md.Clone()
		delete(md, MetadataKeyCoTHow)
		md = md.WithAll(CoTHeaders(out.Event.UID, out.Event.Type, out.Event.How))

		msg := message.NewMessage(idspkg.CreateULID(), []byte(payload))
		msg.Metadata = metadatapkg.ToWatermill(md)
		result[i] = msg
	}
	return result, nil
}

// CoTHeaders returns the identifying headers of a CoT message. An empty how
// is left out.
func CoTHeaders(uid, cotType, how string) metadatapkg.Metadata {
	md := metadatapkg.New(MetadataKeyCoTUID, uid, MetadataKeyCoTType, cotType)
	if how != "" {
		md[MetadataKeyCoTHow] = how
	}
	return md
}
