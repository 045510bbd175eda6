package modules

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"koinonia.app/notifier/internal/config"
	"koinonia.app/notifier/internal/infrastructure"
	"koinonia.app/notifier/internal/pkg/metrics"
	"koinonia.app/notifier/internal/pkg/worker"
	"koinonia.app/notifier/internal/push"
	"koinonia.app/notifier/internal/store"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config   *config.Config
	Firebase *infrastructure.FirebaseClients
	Store    store.Store
	Sender   push.Sender
	Pools    *worker.Pools
	Registry *prometheus.Registry
	Metrics  *metrics.DeliveryMetrics
}

// NewInfrastructure connects to Firebase and builds the worker pools.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	fb, err := infrastructure.NewFirebaseClients(ctx, cfg.Firebase)
	if err != nil {
		return nil, fmt.Errorf("init firebase: %w", err)
	}

	infra, err := NewInfrastructureWith(ctx, cfg, store.NewFirestoreStore(fb.Firestore), push.NewFCMSender(fb.Messaging))
	if err != nil {
		fb.Close()
		return nil, err
	}
	infra.Firebase = fb
	return infra, nil
}

// NewInfrastructureWith builds pools and metrics around an existing store
// and sender. Local runs and tests use it with in-memory implementations.
func NewInfrastructureWith(ctx context.Context, cfg *config.Config, st store.Store, sender push.Sender) (*Infrastructure, error) {
	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		DeliveryPoolSize: cfg.Worker.DeliveryPoolSize,
		EventsPoolSize:   cfg.Worker.EventsPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := pools.RegisterMetrics(reg); err != nil {
		pools.Shutdown()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	return &Infrastructure{
		Config:   cfg,
		Store:    st,
		Sender:   sender,
		Pools:    pools,
		Registry: reg,
		Metrics:  metrics.NewDeliveryMetrics(reg),
	}, nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Firebase != nil {
		i.Firebase.Close()
	}
}
