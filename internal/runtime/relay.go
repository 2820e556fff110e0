package runtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/cotflow/internal/cot"
	ce "github.com/drblury/cotflow/internal/runtime/cloudevents"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
)

const (
	// EventTypePrefix prefixes the category name in relay event types.
	EventTypePrefix = "cot."
	// SourcePrefix prefixes the CoT uid in relay event sources.
	SourcePrefix = "cot/"
	// DefaultRelayHandlerName names the relay handler when none is given.
	DefaultRelayHandlerName = "cot-relay"
)

// PointData is the JSON form of a CoT point.
type PointData struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	HAE float32 `json:"hae"`
	CE  float32 `json:"ce"`
	LE  float32 `json:"le"`
}

// RelayData is the data of a relay event: the envelope of the classified
// document and its detail fragments in document order.
type RelayData struct {
	UID      string    `json:"uid"`
	Type     string    `json:"type"`
	How      string    `json:"how,omitempty"`
	Time     time.Time `json:"time"`
	Start    time.Time `json:"start"`
	Stale    time.Time `json:"stale"`
	Point    PointData `json:"point"`
	Category string    `json:"category"`
	Detail   []string  `json:"detail"`
}

// NewRelayData converts a classified message into event data.
func NewRelayData(c cot.Classified) RelayData {
	msg := c.Message
	detail := make([]string, len(msg.Detail))
	copy(detail, msg.Detail)
	return RelayData{
		UID:   msg.UID,
		Type:  msg.Type,
		How:   msg.How,
		Time:  msg.Time,
		Start: msg.Start,
		Stale: msg.Stale,
		Point: PointData{
			Lat: msg.Point.Lat,
			Lon: msg.Point.Lon,
			HAE: msg.Point.HAE,
			CE:  msg.Point.CE,
			LE:  msg.Point.LE,
		},
		Category: c.Category.String(),
		Detail:   detail,
	}
}

// NewRelayEvent builds the CloudEvent published for a classified message.
func NewRelayEvent(c cot.Classified, correlationID string) (ce.Event, error) {
	msg := c.Message
	evt := ce.New(EventTypePrefix+c.Category.String(), SourcePrefix+msg.UID).
		WithSubject(msg.Type).
		WithTime(msg.Time).
		WithExtension(ce.ExtCoTUID, msg.UID).
		WithExtension(ce.ExtCoTCategory, c.Category.String()).
		WithExtension(ce.ExtCoTStale, cot.FormatTime(msg.Stale))
	if msg.How != "" {
		evt = evt.WithExtension(ce.ExtCoTHow, msg.How)
	}
	if correlationID != "" {
		evt = evt.WithExtension(ce.ExtCorrelationID, correlationID)
	}
	return evt.WithJSONData(NewRelayData(c))
}

// RelayRegistration configures the relay handler.
type RelayRegistration struct {
	// Name defaults to DefaultRelayHandlerName.
	Name string
	// ConsumeQueue defaults to the configured input topic.
	ConsumeQueue string
	// Filter drops documents it returns false for. They are acknowledged
	// and neither published nor archived.
	Filter func(cot.Classified) bool
}

// RegisterRelayHandler registers the handler that classifies raw CoT
// documents and publishes one CloudEvent per document to the output topic
// of its category.
func RegisterRelayHandler(svc *Service, cfg RelayRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Name == "" {
		cfg.Name = DefaultRelayHandlerName
	}
	if cfg.ConsumeQueue == "" {
		cfg.ConsumeQueue = svc.Conf.InputTopic
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		Handler:      svc.relayHandler(cfg.Filter),
	})
}

func (s *Service) relayHandler(filter func(cot.Classified) bool) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if strings.TrimSpace(string(msg.Payload)) == "" {
			return nil, handlerpkg.Unprocessable(msg, errspkg.ErrDocumentRequired)
		}

		classified, err := cot.Detect(string(msg.Payload))
		if err != nil {
			return nil, handlerpkg.Unprocessable(msg, err)
		}
		if filter != nil && !filter(classified) {
			msg.Metadata.Set(handlerpkg.MetadataKeyCoTFiltered, "true")
			s.Logger.Debug("Document filtered out", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"cot_uid":      classified.Message.UID,
			})
			return nil, nil
		}

		category := classified.Category.String()
		headers := handlerpkg.CoTHeaders(classified.Message.UID, classified.Message.Type, classified.Message.How).
			With(handlerpkg.MetadataKeyCoTCategory, category)
		for key, value := range headers {
			msg.Metadata.Set(key, value)
		}

		correlationID := msg.Metadata.Get(handlerpkg.MetadataKeyCorrelationID)
		evt, err := NewRelayEvent(classified, correlationID)
		if err != nil {
			return nil, handlerpkg.Unprocessable(msg, err)
		}

		out, err := toWatermillMessage(evt)
		if err != nil {
			return nil, handlerpkg.Unprocessable(msg, err)
		}
		for key, value := range headers {
			out.Metadata.Set(key, value)
		}
		if correlationID != "" {
			out.Metadata.Set(handlerpkg.MetadataKeyCorrelationID, correlationID)
		}
		out.SetContext(msg.Context())

		topic := s.Conf.OutputTopicFor(category)
		if err := s.publisher.Publish(topic, out); err != nil {
			return nil, fmt.Errorf("publish %s event to %s: %w", category, topic, err)
		}

		s.metrics.classified.WithLabelValues(category).Inc()
		s.Logger.Debug("Relayed document", loggingpkg.LogFields{
			"cot_uid":      classified.Message.UID,
			"cot_category": category,
			"topic":        topic,
		})
		return nil, nil
	}
}
