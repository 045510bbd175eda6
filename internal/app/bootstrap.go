// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"koinonia.app/notifier/internal/api/handlers"
	"koinonia.app/notifier/internal/app/modules"
	"koinonia.app/notifier/internal/config"
	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/eventsource"
	"koinonia.app/notifier/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config     *config.Config
	Router     *gin.Engine
	Infra      *modules.Infrastructure
	Pools      *worker.Pools
	Dispatcher *domain.EntityDispatcher
	Modules    []modules.Module
	// Source is the Pub/Sub pull source; nil when pubsub is disabled.
	Source *eventsource.PubSubSource
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	application := Compose(cfg, infra)

	if cfg.PubSub.Enabled {
		source, err := eventsource.NewPubSubSource(ctx, eventsource.Config{
			ProjectID:              cfg.PubSub.ProjectID,
			Subscription:           cfg.PubSub.Subscription,
			MaxOutstandingMessages: cfg.PubSub.MaxOutstandingMessages,
		}, application.Dispatcher)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("init pubsub source: %w", err)
		}
		application.Source = source
	}

	return application, nil
}

// Compose assembles modules, dispatcher and router on prepared infrastructure.
func Compose(cfg *config.Config, infra *modules.Infrastructure) *Application {
	allModules := []modules.Module{
		modules.NewNotificationModule(infra),
		modules.NewFeedModule(infra),
	}
	dispatcher := modules.NewDispatcher(allModules)
	server := handlers.NewServer(modules.NewServerDeps(infra, dispatcher, allModules))

	return &Application{
		Config:     cfg,
		Router:     newRouter(cfg, server, modules.JWTConfig(cfg), infra.Registry),
		Infra:      infra,
		Pools:      infra.Pools,
		Dispatcher: dispatcher,
		Modules:    allModules,
	}
}
