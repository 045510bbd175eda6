// Package worker runs push fan-out and detached event handling on bounded
// ants pools. Code outside cmd/ does not start naked goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"koinonia.app/notifier/internal/pkg/logger"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrUnknownPool is returned by SubmitDetached for an unregistered name.
	ErrUnknownPool = errors.New("unknown worker pool")
)

// Pool names.
const (
	PoolDelivery = "delivery"
	PoolEvents   = "events"
)

const shutdownTimeout = 30 * time.Second

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools holds the service's worker pools.
type Pools struct {
	// Delivery runs per-recipient push fan-out.
	Delivery *Pool
	// Events runs entity-created handlers and the Pub/Sub receive loop.
	Events *Pool

	byName        map[string]*Pool
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig sizes the pools.
type PoolConfig struct {
	DeliveryPoolSize int
	EventsPoolSize   int
}

// PoolStats is a point-in-time view of one pool.
type PoolStats struct {
	Name     string `json:"name"`
	Running  int    `json:"running"`
	Free     int    `json:"free"`
	Capacity int    `json:"capacity"`
}

// NewPools creates the delivery and events pools. Detached tasks receive a
// context derived from ctx that is cancelled by Shutdown.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	delivery, err := newPool(PoolDelivery, cfg.DeliveryPoolSize, 10*time.Second)
	if err != nil {
		serviceCancel()
		return nil, err
	}
	// Event handlers wait on whole fan-outs, so their workers idle longer.
	events, err := newPool(PoolEvents, cfg.EventsPoolSize, 30*time.Second)
	if err != nil {
		delivery.pool.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		Delivery:      delivery,
		Events:        events,
		byName:        map[string]*Pool{PoolDelivery: delivery, PoolEvents: events},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

func newPool(name string, size int, idle time.Duration) (*Pool, error) {
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("Worker panic recovered",
				zap.String("pool", name),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(idle),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", name, err)
	}
	return &Pool{pool: p, name: name}, nil
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string {
	return p.name
}

// Submit runs task on the pool with ctx. A cancelled ctx is returned as an
// error without submitting. An accepted task always runs, so a WaitGroup
// around Submit never hangs; the task checks ctx itself.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.submit(func() { task(ctx) })
}

func (p *Pool) submit(fn func()) error {
	err := p.pool.Submit(fn)
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

func (p *Pool) stats() PoolStats {
	return PoolStats{
		Name:     p.name,
		Running:  p.pool.Running(),
		Free:     p.pool.Free(),
		Capacity: p.pool.Cap(),
	}
}

// SubmitDetached runs task on the named pool with the service context
// instead of a request context. Tasks still queued when Shutdown starts are
// skipped.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	pool, ok := p.byName[poolName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPool, poolName)
	}
	return pool.submit(func() {
		if p.serviceCtx.Err() != nil {
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", pool.name),
			)
			return
		}
		task(p.serviceCtx)
	})
}

// Stats reports every pool, delivery first.
func (p *Pools) Stats() []PoolStats {
	return []PoolStats{p.Delivery.stats(), p.Events.stats()}
}

// RegisterMetrics exports pool occupancy as gauges labelled by pool.
func (p *Pools) RegisterMetrics(reg prometheus.Registerer) error {
	for _, pool := range []*Pool{p.Delivery, p.Events} {
		labels := prometheus.Labels{"pool": pool.name}
		running := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "notifier",
			Name:        "worker_pool_running",
			Help:        "Workers currently running a task.",
			ConstLabels: labels,
		}, func() float64 { return float64(pool.pool.Running()) })
		capacity := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "notifier",
			Name:        "worker_pool_capacity",
			Help:        "Maximum concurrent workers.",
			ConstLabels: labels,
		}, func() float64 { return float64(pool.pool.Cap()) })
		for _, c := range []prometheus.Collector{running, capacity} {
			if err := reg.Register(c); err != nil {
				return fmt.Errorf("register %s pool metrics: %w", pool.name, err)
			}
		}
	}
	return nil
}

// Shutdown cancels detached work, then waits for running tasks. Events
// drains first because its handlers feed the delivery pool.
func (p *Pools) Shutdown() {
	p.serviceCancel()
	for _, pool := range []*Pool{p.Events, p.Delivery} {
		if err := pool.pool.ReleaseTimeout(shutdownTimeout); err != nil {
			logger.Warn("Worker pool shutdown timeout",
				zap.String("pool", pool.name),
				zap.Error(err),
			)
		}
	}
}
