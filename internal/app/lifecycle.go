package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"koinonia.app/notifier/internal/pkg/logger"
	"koinonia.app/notifier/internal/pkg/worker"
)

// Start starts background services. The Pub/Sub receive loop runs on the
// events pool and stops when the pools shut down.
func (a *Application) Start(ctx context.Context) error {
	if a.Source == nil {
		return nil
	}
	if a.Pools == nil {
		return fmt.Errorf("pubsub source requires worker pools")
	}

	source := a.Source
	if err := a.Pools.SubmitDetached(worker.PoolEvents, func(ctx context.Context) {
		if err := source.Run(ctx); err != nil {
			logger.Error("Pub/Sub receive stopped", zap.Error(err))
			return
		}
		logger.Info("Pub/Sub receive stopped")
	}); err != nil {
		return fmt.Errorf("start pubsub source: %w", err)
	}
	logger.Info("Pub/Sub source started, entity events will now be consumed")
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(shutdownCtx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	// Pools first: cancelling the service context ends the receive loop.
	if a.Infra != nil {
		a.Infra.Close()
	} else if a.Pools != nil {
		a.Pools.Shutdown()
	}

	if a.Source != nil {
		if err := a.Source.Close(); err != nil {
			logger.Warn("failed to close pubsub client", zap.Error(err))
		}
	}
}
