// Package inmemory is a channel-backed implementation of the task queue
// and task store. It is suitable for single-instance deployments and
// tests; multi-instance deployments should swap in an external broker
// behind the same interfaces.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mzharov/finrecon/internal/jobs"
)

const defaultMaxRetries = 3

// Queue is an in-memory task queue. Safe for concurrent use.
type Queue struct {
	taskChan  chan *jobs.Task
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.Store
	workers   int
	closed    bool
}

// NewQueue creates a queue. bufferSize bounds how many tasks can wait
// before Publish blocks; workers is the consumer pool size.
func NewQueue(bufferSize, workers int, store jobs.Store) *Queue {
	if workers <= 0 {
		workers = 4
	}
	return &Queue{
		taskChan:  make(chan *jobs.Task, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
	}
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, task *jobs.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("Publish: queue is closed")
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = jobs.TaskPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("Publish: save task: %w", err)
		}
	}

	select {
	case q.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("Publish: queue is closed")
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("Start: queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case task := <-q.taskChan:
			if task == nil {
				return
			}
			q.process(ctx, task, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, task *jobs.Task, handler jobs.Handler) {
	now := time.Now()
	task.Status = jobs.TaskRunning
	task.StartedAt = &now
	if q.store != nil {
		_ = q.store.SaveTask(ctx, task)
	}

	err := handler(ctx, task)

	completedAt := time.Now()
	task.CompletedAt = &completedAt

	if err != nil {
		task.Error = err.Error()
		if task.RetryCount < task.MaxRetries {
			task.RetryCount++
			task.Status = jobs.TaskRetrying

			backoff := time.Duration(task.RetryCount) * time.Second
			time.AfterFunc(backoff, func() {
				task.Status = jobs.TaskPending
				task.StartedAt = nil
				task.CompletedAt = nil
				_ = q.Publish(ctx, task)
			})
		} else {
			task.Status = jobs.TaskFailed
		}
	} else {
		task.Status = jobs.TaskCompleted
		task.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveTask(ctx, task)
	}
}

// Stop implements the Consumer interface. It waits for in-flight tasks
// up to the context deadline.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
