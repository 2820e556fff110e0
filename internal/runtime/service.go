package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/cotflow/internal/runtime/archive"
	configpkg "github.com/drblury/cotflow/internal/runtime/config"
	errspkg "github.com/drblury/cotflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
	transportpkg "github.com/drblury/cotflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// httpReadHeaderTimeout bounds header reads on the metrics and status servers.
const httpReadHeaderTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to skip the related middleware.
type ServiceDependencies struct {
	// Archive stores every classified document. Nil disables archiving.
	Archive                   archive.Store
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	// Registerer receives the relay collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Service wires a Watermill router, the transport and the middleware chain.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport  transportpkg.Transport
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	archive    archive.Store
	registerer prometheus.Registerer
	metrics    *relayMetrics

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration. Register
// handlers on the returned Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating relay service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	relayMetrics, err := newRelayMetrics(registerer, metricsNamespace(conf))
	if err != nil {
		return nil, err
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %q transport: %w", conf.PubSubSystem, err)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.ShutdownTimeout}, wmLogger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	router.AddPlugin(plugin.SignalsHandler)

	s := &Service{
		Conf:       conf,
		Logger:     log,
		transport:  transport,
		publisher:  transport.Publisher,
		subscriber: transport.Subscriber,
		router:     router,
		archive:    deps.Archive,
		registerer: registerer,
		metrics:    relayMetrics,
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = transport.Close()
		return nil, err
	}
	return s, nil
}

// Start runs the underlying Watermill router until the provided context is
// cancelled. The metrics and status servers run alongside it and are shut
// down when it returns.
func (s *Service) Start(ctx context.Context) error {
	s.StartStatusServer()
	stop := s.startHTTPServers()
	defer stop()

	go s.startTransportServer(ctx)
	return routerRun(s.router, ctx)
}

// Running is closed once every handler is subscribed.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and releases the transport and the archive.
func (s *Service) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	errs = append(errs, s.transport.Close())
	if s.archive != nil {
		errs = append(errs, s.archive.Close())
	}
	return errors.Join(errs...)
}

// Archive returns the configured archive store, or nil.
func (s *Service) Archive() archive.Store {
	return s.archive
}

// Capabilities describes the configured transport.
func (s *Service) Capabilities() transportpkg.Capabilities {
	return transportpkg.GetCapabilities(s.Conf.PubSubSystem)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// startTransportServer starts push-based subscribers, like the http
// transport, once the router has subscribed every handler.
func (s *Service) startTransportServer(ctx context.Context) {
	server, ok := s.subscriber.(transportpkg.Server)
	if !ok {
		return
	}
	select {
	case <-s.router.Running():
	case <-ctx.Done():
		return
	}
	s.Logger.Info("Starting transport HTTP server", loggingpkg.LogFields{"address": s.Conf.HTTPServerAddress})
	if err := server.StartHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Logger.Error("Transport HTTP server stopped", err, nil)
	}
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// are started by Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() (stop func()) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: httpReadHeaderTimeout,
		}
		servers = append(servers, srv)

		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(ctx); err != nil {
				s.Logger.Error("HTTP server shutdown failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}
	}
}

func (s *Service) shutdownTimeout() time.Duration {
	if s.Conf.ShutdownTimeout > 0 {
		return s.Conf.ShutdownTimeout
	}
	return configpkg.DefaultShutdown
}
