// Command cotrelay classifies raw CoT documents from the input topic and
// publishes one CloudEvent per document. It is configured through COTFLOW_*
// environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/cotflow/internal/fixtures"
	runtimepkg "github.com/drblury/cotflow/internal/runtime"
	"github.com/drblury/cotflow/internal/runtime/archive"
	configpkg "github.com/drblury/cotflow/internal/runtime/config"
	loggingpkg "github.com/drblury/cotflow/internal/runtime/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		log.Fatalf("cotrelay: %v", err)
	}
}

func run(ctx context.Context) error {
	conf, err := configpkg.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	level, err := loggingpkg.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logger := loggingpkg.NewSlogServiceLogger(loggingpkg.NewSlogLogger(os.Stderr, level, conf.LogFormat))

	store, err := archive.Open(ctx, conf.ArchiveBackend, conf.PostgresURL)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	svc, err := runtimepkg.NewService(conf, logger, ctx, runtimepkg.ServiceDependencies{Archive: store})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Shutdown failed", err, nil)
		}
	}()

	if err := runtimepkg.RegisterRelayHandler(svc, runtimepkg.RelayRegistration{}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Start(gctx)
	})
	if conf.ReplayDir != "" {
		g.Go(func() error {
			return replay(gctx, svc, conf, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// replay publishes every .cot file of ReplayDir to the input topic once the
// relay is subscribed. Unreadable or malformed files are logged and skipped.
func replay(ctx context.Context, svc *runtimepkg.Service, conf *configpkg.Config, logger loggingpkg.ServiceLogger) error {
	select {
	case <-svc.Running():
	case <-ctx.Done():
		return nil
	}

	published := 0
	for fx, err := range fixtures.NewSet(os.DirFS(conf.ReplayDir), ".").All() {
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Error("Skipping replay file", err, loggingpkg.LogFields{"name": fx.Name})
			continue
		}
		if err := svc.PublishCoT(ctx, conf.InputTopic, fx.Text, nil); err != nil {
			logger.Error("Skipping replay file", err, loggingpkg.LogFields{"name": fx.Name})
			continue
		}
		published++
	}

	logger.Info("Replay finished", loggingpkg.LogFields{"dir": conf.ReplayDir, "published": published})
	return nil
}
