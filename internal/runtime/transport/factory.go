package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
)

// Factory abstracts how the relay obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds transports from DefaultRegistry.
func DefaultFactory() Factory {
	return DefaultRegistry
}

// Static returns a factory that always hands out t, for tests and for
// embedding the relay next to an existing Watermill setup.
func Static(t Transport) Factory {
	return FactoryFunc(func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return t, nil
	})
}
