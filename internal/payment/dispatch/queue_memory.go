package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// MemoryQueue is a bounded channel drained by a fixed worker pool. Tasks still
// buffered when the process exits are lost.
type MemoryQueue struct {
	log     *zap.Logger
	workers int
	tasks   chan Task

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewMemoryQueue(workers, size int, log *zap.Logger) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		log:     log,
		workers: workers,
		tasks:   make(chan Task, size),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Start(handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return errors.New("dispatch queue already started")
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(handler)
	}
	return nil
}

func (q *MemoryQueue) work(handler Handler) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(handler, task)
	}
}

func (q *MemoryQueue) run(handler Handler, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("dispatch task panicked", zap.String("task_id", task.ID), zap.Any("panic", r))
		}
	}()
	_ = handler(context.Background(), task)
}

// Stop refuses new tasks and waits for the workers to drain the buffer.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.log.Warn("dispatch queue stopped before drain", zap.Int("remaining", len(q.tasks)))
		return ctx.Err()
	}
}

func (q *MemoryQueue) Depth() int {
	return len(q.tasks)
}
