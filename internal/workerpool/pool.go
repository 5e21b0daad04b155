// Package workerpool runs tasks on a fixed number of goroutines. Submissions
// never block: tasks beyond the pool size wait in an unbounded FIFO queue.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"

	"github.com/mcoot/wordquizzle/internal/middleware"
)

// ErrClosed is returned by Submit after Shutdown was called
var ErrClosed = errors.New("worker pool is shut down")

// Task is a unit of work. The context is cancelled only if Shutdown gives up
// waiting for queued tasks.
type Task func(ctx context.Context)

// Pool is a bounded set of workers fed by a FIFO queue
type Pool struct {
	size   int
	pool   pond.Pool
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Submit against Shutdown so no task reaches a stopped pool
	mu      sync.RWMutex
	closed  bool
	stopped pond.Task

	pending atomic.Int64
	active  atomic.Int64
}

// New starts a pool of size workers
func New(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   size,
		pool:   pond.NewPool(size, pond.WithContext(ctx)),
		logger: logger.With(slog.String("component", "workerpool")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Submit queues a task
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.pending.Add(1)
	p.pool.Submit(func() { p.run(task) })
	return nil
}

// Pending returns the number of queued tasks not yet picked up
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Active returns the number of tasks currently running
func (p *Pool) Active() int {
	return int(p.active.Load())
}

func (p *Pool) run(task Task) {
	p.pending.Add(-1)
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			middleware.LogPanic(p.logger, "task panicked", r)
		}
	}()
	task(p.ctx)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. If ctx expires first, running tasks see their context cancelled,
// queued ones are discarded and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.stopped = p.pool.Stop()
	}
	stopped := p.stopped
	p.mu.Unlock()

	select {
	case <-stopped.Done():
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
