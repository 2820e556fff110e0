package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/cotflow/internal/cot"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
	idspkg "github.com/drblury/cotflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/cotflow/internal/runtime/metadata"
)

// Producer emits raw CoT documents onto the configured transport.
type Producer interface {
	PublishCoT(ctx context.Context, topic string, text string, metadata metadatapkg.Metadata) error
}

var _ Producer = (*Service)(nil)

// NewMessageFromCoT wraps a CoT document in a Watermill message carrying the
// uid and type headers. Only the event element is inspected; the document is
// fully parsed by whichever handler consumes it.
func NewMessageFromCoT(text string, metadata metadatapkg.Metadata) (*message.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errspkg.ErrDocumentRequired
	}

	uid, err := cot.FirstElementAttr(text, cot.ElementEvent, cot.AttrUID)
	if err != nil {
		return nil, fmt.Errorf("read event uid: %w", err)
	}
	cotType, err := cot.ParseType(text)
	if err != nil {
		return nil, fmt.Errorf("read event type: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), []byte(text))
	msg.Metadata = metadatapkg.ToWatermill(metadata.WithAll(handlerpkg.CoTHeaders(uid, cotType, "")))
	return msg, nil
}

// PublishCoT publishes a raw CoT document to topic.
func PublishCoT(ctx context.Context, publisher message.Publisher, topic string, text string, metadata metadatapkg.Metadata) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := NewMessageFromCoT(text, metadata)
	if err != nil {
		return err
	}

	if ctx != nil {
		msg.SetContext(ctx)
	}

	return publisher.Publish(topic, msg)
}

// PublishCoT emits the document using the Service publisher.
func (s *Service) PublishCoT(ctx context.Context, topic string, text string, metadata metadatapkg.Metadata) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	return PublishCoT(ctx, s.publisher, topic, text, metadata)
}

// PublishCoTEvent encodes evt and publishes it through svc.
func PublishCoTEvent[D any](ctx context.Context, svc *Service, topic string, evt cot.Event[D], metadata metadatapkg.Metadata) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	text, err := cot.Encode(evt)
	if err != nil {
		return fmt.Errorf("encode cot event: %w", err)
	}
	return svc.PublishCoT(ctx, topic, text, metadata)
}
