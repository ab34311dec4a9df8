// Package performance provides the bounded worker pool and batching helpers
// used by the catalog walkers.
package performance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// WorkerPool runs tasks on a fixed number of goroutines. Submit blocks
// while the queue is full, so no task is ever dropped.
type WorkerPool struct {
	workers   int
	taskQueue chan func(context.Context)
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   atomic.Bool
}

// NewWorkerPool creates a pool bound to ctx. Fewer than one worker means one.
func NewWorkerPool(ctx context.Context, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(context.Context), workers*4),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the workers.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		task(p.ctx)
	}
}

// Submit queues a task. It returns false when the pool is stopped or its
// context is done; the task is then not run.
func (p *WorkerPool) Submit(task func(context.Context)) bool {
	if !p.running.Load() {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		return true
	}
}

// Wait closes the queue and blocks until every queued task has finished.
func (p *WorkerPool) Wait() {
	if !p.running.Swap(false) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
}

// Map applies fn to every item on a pool of workers and returns the results
// in input order. Items not started before ctx is done are left as the zero
// value and reported false in the done slice.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, int, T) R) ([]R, []bool) {
	results := make([]R, len(items))
	done := make([]bool, len(items))

	pool := NewWorkerPool(ctx, workers)
	pool.Start()
	for i, item := range items {
		i, item := i, item
		if ctx.Err() != nil {
			break
		}
		ok := pool.Submit(func(ctx context.Context) {
			if ctx.Err() != nil {
				return
			}
			results[i] = fn(ctx, i, item)
			done[i] = true
		})
		if !ok {
			break
		}
	}
	pool.Wait()
	return results, done
}

// BatchProcessor collects items and hands them to processor in batches.
type BatchProcessor[T any] struct {
	batchSize int
	processor func([]T) error
	items     []T
	mu        sync.Mutex
}

// NewBatchProcessor creates a new batch processor. A size below one means one.
func NewBatchProcessor[T any](batchSize int, processor func([]T) error) *BatchProcessor[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchProcessor[T]{
		batchSize: batchSize,
		processor: processor,
		items:     make([]T, 0, batchSize),
	}
}

// Add adds an item to the batch. If the batch is full, it's processed.
func (b *BatchProcessor[T]) Add(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, item)
	if len(b.items) >= b.batchSize {
		return b.flush()
	}
	return nil
}

// Flush processes any remaining items in the batch.
func (b *BatchProcessor[T]) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush()
}

func (b *BatchProcessor[T]) flush() error {
	if len(b.items) == 0 {
		return nil
	}
	batch := make([]T, len(b.items))
	copy(batch, b.items)
	b.items = b.items[:0]
	return b.processor(batch)
}

// FormatBytes formats bytes into human-readable format.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
