package runtime

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
)

type handlerRegistration struct {
	Name         string
	ConsumeQueue string
	PublishQueue string
	Handler      message.HandlerFunc
	Subscriber   message.Subscriber
	Publisher    message.Publisher
}

// MessageHandlerRegistration wires a raw Watermill handler without typed helpers.
// Messages returned by a handler without PublishQueue are dropped.
type MessageHandlerRegistration struct {
	Name         string
	ConsumeQueue string
	PublishQueue string
	Handler      message.HandlerFunc
	Subscriber   message.Subscriber
	Publisher    message.Publisher
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	return svc.registerHandler(handlerRegistration(cfg))
}

// Handlers returns the registered handlers in registration order.
func (s *Service) Handlers() []*HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()

	out := make([]*HandlerInfo, len(s.handlers))
	copy(out, s.handlers)
	return out
}

func (s *Service) registerHandler(cfg handlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}
	if cfg.Publisher == nil {
		cfg.Publisher = s.publisher
	}

	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	for _, existing := range s.handlers {
		if existing.Name == cfg.Name {
			return fmt.Errorf("handler %q is already registered", cfg.Name)
		}
	}

	stats := newHandlerStats()
	s.handlers = append(s.handlers, &HandlerInfo{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.PublishQueue,
		Stats:        stats,
	})

	handler := wrapHandlerWithStats(cfg.Handler, stats)

	if cfg.PublishQueue == "" {
		s.router.AddNoPublisherHandler(cfg.Name, cfg.ConsumeQueue, cfg.Subscriber, func(msg *message.Message) error {
			_, err := handler(msg)
			return err
		})
		return nil
	}

	s.router.AddHandler(
		cfg.Name,
		cfg.ConsumeQueue,
		cfg.Subscriber,
		cfg.PublishQueue,
		cfg.Publisher,
		handler,
	)
	return nil
}
