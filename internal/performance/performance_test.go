package performance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsEveryTask(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4)
	pool.Start()

	var counter int64
	for i := 0; i < 100; i++ {
		require.True(t, pool.Submit(func(context.Context) {
			atomic.AddInt64(&counter, 1)
		}))
	}
	pool.Wait()

	assert.Equal(t, int64(100), counter)
	assert.False(t, pool.Submit(func(context.Context) {}), "stopped pool rejects tasks")
}

func TestMapKeepsInputOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got, done := Map(context.Background(), 3, items, func(_ context.Context, _ int, v int) int {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10
	})
	assert.Equal(t, []int{50, 10, 40, 20, 30}, got)
	assert.Equal(t, []bool{true, true, true, true, true}, done)
}

func TestMapStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := make([]int, 50)
	var ran int64
	_, done := Map(ctx, 1, items, func(_ context.Context, i int, _ int) int {
		if atomic.AddInt64(&ran, 1) == 3 {
			cancel()
		}
		return i
	})

	finished := 0
	for _, d := range done {
		if d {
			finished++
		}
	}
	assert.Less(t, finished, len(items))
	assert.GreaterOrEqual(t, finished, 3)
}

func TestBatchProcessorFunctionality(t *testing.T) {
	var batches [][]int

	processor := NewBatchProcessor(5, func(items []int) error {
		batches = append(batches, items)
		return nil
	})

	for i := 0; i < 12; i++ {
		require.NoError(t, processor.Add(i))
	}
	require.NoError(t, processor.Flush())

	require.Len(t, batches, 3)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, batches[0])
	assert.Equal(t, []int{10, 11}, batches[2])
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))
}
