package runtime

import (
	"context"

	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/cotflow/internal/runtime/handlers"
)

// CoTHandlerRegistration describes a handler that consumes CoT documents with
// detail type D and publishes CoT documents with detail type O.
type CoTHandlerRegistration[D any, O any] = handlerpkg.CoTHandlerRegistration[D, O]

// CoTMessageContext is passed to typed CoT handlers.
type CoTMessageContext[D any] = handlerpkg.CoTMessageContext[D]

// CoTMessageOutput is one document emitted by a typed CoT handler.
type CoTMessageOutput[O any] = handlerpkg.CoTMessageOutput[O]

// TypedHandlerRegistration describes a consume-only CoT handler.
type TypedHandlerRegistration[D any] struct {
	Name         string
	ConsumeQueue string
	Handler      func(ctx context.Context, msg CoTMessageContext[D]) error
}

// RegisterCoTHandler registers a typed CoT handler. Documents that do not
// decode into D are moved to the poison queue.
func RegisterCoTHandler[D any, O any](svc *Service, cfg CoTHandlerRegistration[D, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.PublishQueue == "" {
		return errspkg.ErrPublishQueueRequired
	}

	handler, err := handlerpkg.BuildCoTHandler(cfg.Handler, svc.Logger)
	if err != nil {
		return err
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.PublishQueue,
		Handler:      handler,
	})
}

// RegisterTypedHandler registers a CoT handler that publishes nothing.
func RegisterTypedHandler[D any](svc *Service, cfg TypedHandlerRegistration[D]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}

	handler, err := handlerpkg.BuildCoTHandler(
		func(ctx context.Context, msg CoTMessageContext[D]) ([]CoTMessageOutput[D], error) {
			return nil, cfg.Handler(ctx, msg)
		},
		svc.Logger,
	)
	if err != nil {
		return err
	}

	return svc.registerHandler(handlerRegistration{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		Handler:      handler,
	})
}
