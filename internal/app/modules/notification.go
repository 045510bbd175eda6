package modules

import (
	"context"

	"koinonia.app/notifier/internal/api/handlers"
	"koinonia.app/notifier/internal/domain"
	"koinonia.app/notifier/internal/notification"
)

// NotificationModule owns the delivery engine and the trigger adapters.
type NotificationModule struct {
	engine   *notification.Engine
	triggers *notification.Triggers
}

// NewNotificationModule wires resolver, preference filter, engine and triggers.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	cfg := infra.Config.Delivery
	st := infra.Store

	engine := notification.NewEngine(
		st,
		st,
		notification.NewPreferenceFilter(st),
		infra.Sender,
		infra.Pools.Delivery,
		infra.Metrics,
		notification.EngineConfig{
			Concurrency:  cfg.Concurrency,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			SendTimeout:  cfg.SendTimeout,
		},
	)
	triggers := notification.NewTriggers(st, st, notification.NewResolver(st, st), engine)

	return &NotificationModule{engine: engine, triggers: triggers}
}

func (m *NotificationModule) Name() string { return "notification" }

// Triggers exposes the trigger adapters.
func (m *NotificationModule) Triggers() *notification.Triggers { return m.triggers }

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Broadcaster = m.triggers
}

func (m *NotificationModule) RegisterEventHandlers(d *domain.EntityDispatcher) {
	m.triggers.Register(d)
}

func (m *NotificationModule) Shutdown(context.Context) error { return nil }
