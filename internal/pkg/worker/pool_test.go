package worker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"koinonia.app/notifier/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

var smallPools = PoolConfig{DeliveryPoolSize: 8, EventsPoolSize: 2}

func TestNewPools(t *testing.T) {
	pools, err := NewPools(context.Background(), smallPools)
	require.NoError(t, err)
	defer pools.Shutdown()

	assert.NotNil(t, pools.Delivery)
	assert.NotNil(t, pools.Events)
	assert.Equal(t, PoolDelivery, pools.Delivery.Name())
	assert.Equal(t, PoolEvents, pools.Events.Name())
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()
	pools, err := NewPools(ctx, PoolConfig{DeliveryPoolSize: 4, EventsPoolSize: 2})
	require.NoError(t, err)
	defer pools.Shutdown()

	var executed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pools.Delivery.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			executed.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(20), executed.Load())
}

func TestPool_Submit_CancelledContext(t *testing.T) {
	pools, err := NewPools(context.Background(), smallPools)
	require.NoError(t, err)
	defer pools.Shutdown()

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pools.Delivery.Submit(cancelledCtx, func(ctx context.Context) {
		t.Error("task should not execute with cancelled context")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_Submit_AcceptedTaskAlwaysRuns(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{DeliveryPoolSize: 1, EventsPoolSize: 1})
	require.NoError(t, err)
	defer pools.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, pools.Delivery.Submit(ctx, func(ctx context.Context) {
		defer wg.Done()
		cancel()
		<-ctx.Done()
	}))
	wg.Wait()
}

func TestPool_Submit_AfterShutdown(t *testing.T) {
	pools, err := NewPools(context.Background(), smallPools)
	require.NoError(t, err)
	pools.Shutdown()

	err = pools.Delivery.Submit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPools_SubmitDetached(t *testing.T) {
	for _, name := range []string{PoolEvents, PoolDelivery} {
		t.Run(name, func(t *testing.T) {
			pools, err := NewPools(context.Background(), smallPools)
			require.NoError(t, err)

			var executed atomic.Bool
			var wg sync.WaitGroup
			wg.Add(1)

			require.NoError(t, pools.SubmitDetached(name, func(ctx context.Context) {
				executed.Store(ctx.Err() == nil)
				wg.Done()
			}))

			wg.Wait()
			pools.Shutdown()
			assert.True(t, executed.Load())
		})
	}
}

func TestPools_SubmitDetached_UnknownPool(t *testing.T) {
	pools, err := NewPools(context.Background(), smallPools)
	require.NoError(t, err)
	defer pools.Shutdown()

	err = pools.SubmitDetached("k8s", func(ctx context.Context) {
		t.Error("task must not run")
	})
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestPools_SubmitDetached_CancelledByShutdown(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{DeliveryPoolSize: 1, EventsPoolSize: 1})
	require.NoError(t, err)

	started := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, pools.SubmitDetached(PoolEvents, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
	}))
	<-started
	pools.Shutdown()

	assert.True(t, sawCancel.Load())
}

func TestPools_Stats(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{DeliveryPoolSize: 10, EventsPoolSize: 5})
	require.NoError(t, err)
	defer pools.Shutdown()

	assert.Equal(t, []PoolStats{
		{Name: PoolDelivery, Free: 10, Capacity: 10},
		{Name: PoolEvents, Free: 5, Capacity: 5},
	}, pools.Stats())
}

func TestPools_RegisterMetrics(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{DeliveryPoolSize: 10, EventsPoolSize: 5})
	require.NoError(t, err)
	defer pools.Shutdown()

	reg := prometheus.NewRegistry()
	require.NoError(t, pools.RegisterMetrics(reg))

	expected := `
# HELP notifier_worker_pool_capacity Maximum concurrent workers.
# TYPE notifier_worker_pool_capacity gauge
notifier_worker_pool_capacity{pool="delivery"} 10
notifier_worker_pool_capacity{pool="events"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "notifier_worker_pool_capacity"))
	assert.Error(t, pools.RegisterMetrics(reg), "second registration must conflict")
}
