package order

import (
	"context"
	"sync"
	"sync/atomic"

	"mmkeeper/pkg/exception"
)

// Job is one unit of venue work: a single placement or cancellation.
type Job func(ctx context.Context)

// Pool executes jobs on a fixed number of workers fed by a bounded queue.
// Handle never blocks the caller.
type Pool struct {
	running atomic.Bool
	closed  atomic.Bool
	worker  int
	queue   chan Job
	wg      sync.WaitGroup
}

func NewPool(workerCount, workerCap int) (*Pool, error) {
	if workerCount <= 0 || workerCap <= 0 {
		return nil, exception.ErrOrderInvalidPoolConfig
	}

	return &Pool{
		worker: workerCount,
		queue:  make(chan Job, workerCap),
	}, nil
}

// Handle enqueues job, failing fast when the queue is full or closed.
func (p *Pool) Handle(job Job) error {
	if p == nil {
		return exception.ErrOrderNilWorkerPool
	}

	if job == nil {
		return exception.ErrOrderInvalidRequest
	}

	if p.closed.Load() {
		return exception.ErrOrderPoolClosed
	}

	select {
	case p.queue <- job:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Run starts the workers once. They stop when ctx is done.
func (p *Pool) Run(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}

	for range p.worker {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			workerExecuteJob(ctx, p.queue)
		}()
	}
}

// Close stops accepting jobs. Queued jobs still run while workers are alive.
func (p *Pool) Close() {
	p.closed.Store(true)
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Pending is the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

func workerExecuteJob(ctx context.Context, ch chan Job) {
	for {
		select {
		case job := <-ch:
			job(ctx)
		case <-ctx.Done():
			return
		}
	}
}
