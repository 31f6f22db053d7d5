package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcore/internal/kernel"
)

func startKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(kernel.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(k.Stop)
	return k
}

func settle(t *testing.T, k *kernel.Kernel, ticks int) {
	t.Helper()
	for i := 0; i <= ticks; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, k.WaitIdle(ctx))
		cancel()
		if i < ticks {
			k.Tick()
		}
	}
}

func TestProducerFeedsConsumer(t *testing.T) {
	k := startKernel(t)
	sem, err := k.SemCreate(kernel.SemQPriority, 0)
	require.NoError(t, err)
	wd, err := k.WdCreate()
	require.NoError(t, err)

	var mu sync.Mutex
	var outcomes []error
	_, err = k.Spawn("consumer", 10, Consumer(sem, 3, 4, func(_ kernel.TaskID, err error) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, err)
	}))
	require.NoError(t, err)

	k.Interrupt(func(c *kernel.Context) {
		require.NoError(t, c.WdStart(wd, 2, Producer(wd, sem, 2, func(err error) {
			t.Errorf("producer stopped: %v", err)
		}), nil))
	})
	require.NoError(t, k.Start())
	settle(t, k, 8)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []error{nil, nil, nil, nil}, outcomes)

	// the producer keeps counting once the consumer is done
	info, err := k.SemInfo(sem, 1)
	require.NoError(t, err)
	assert.Zero(t, info.Count)
	settle(t, k, 4)
	info, err = k.SemInfo(sem, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), info.Count)
}

func TestProducerStopsWhenRearmFails(t *testing.T) {
	k := startKernel(t)
	sem, err := k.SemCreate(kernel.SemQFIFO, 0)
	require.NoError(t, err)
	wd, err := k.WdCreate()
	require.NoError(t, err)
	gone, err := k.WdCreate()
	require.NoError(t, err)

	_, err = k.Spawn("deleter", 10, func(c *kernel.Context) {
		assert.NoError(t, c.WdDelete(gone))
	})
	require.NoError(t, err)
	require.NoError(t, k.Start())
	settle(t, k, 0)

	var stops []error
	k.Interrupt(func(c *kernel.Context) {
		require.NoError(t, c.WdStart(wd, 1, Producer(gone, sem, 1, func(err error) {
			stops = append(stops, err)
		}), nil))
	})
	settle(t, k, 3)

	require.Len(t, stops, 1)
	assert.ErrorIs(t, stops[0], kernel.ErrInvalidID)
	info, err := k.SemInfo(sem, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.Count, "the give before the failed re-arm counts")
}

func TestConsumerReportsTimeouts(t *testing.T) {
	k := startKernel(t)
	sem, err := k.SemCreate(kernel.SemQFIFO, 0)
	require.NoError(t, err)

	var mu sync.Mutex
	var outcomes []error
	_, err = k.Spawn("consumer", 10, Consumer(sem, 2, 2, func(_ kernel.TaskID, err error) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, err)
	}))
	require.NoError(t, err)
	require.NoError(t, k.Start())
	settle(t, k, 4)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 2)
	for _, err := range outcomes {
		assert.ErrorIs(t, err, kernel.ErrTimeout)
	}
}

func TestSleeper(t *testing.T) {
	k := startKernel(t)
	var mu sync.Mutex
	var woke []uint64
	_, err := k.Spawn("sleeper", 20, Sleeper(3, 3, func(_ kernel.TaskID, at uint64) {
		mu.Lock()
		defer mu.Unlock()
		woke = append(woke, at)
	}))
	require.NoError(t, err)
	require.NoError(t, k.Start())
	settle(t, k, 12)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{3, 6, 9}, woke)
}
