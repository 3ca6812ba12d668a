package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_WorkerPool_RunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4)

	var done int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&done, 1)
			return nil
		}))
	}

	assert.Empty(t, pool.Wait())
	assert.Equal(t, int64(20), atomic.LoadInt64(&done))
}

func Test_WorkerPool_FirstErrorStopsNewWork(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1)

	boom := errors.New("boom")
	_ = pool.Submit(func(ctx context.Context) error { return boom })
	for i := 0; i < 5; i++ {
		if err := pool.Submit(func(ctx context.Context) error {
			return nil
		}); err != nil {
			break
		}
	}

	errs := pool.Wait()
	require.NotEmpty(t, errs)
	assert.Equal(t, boom, errs[0])
}

func Test_WorkerPool_ShutdownCancelsInFlight(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2)

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}))

	<-started
	finished := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not drain the pool")
	}
}
