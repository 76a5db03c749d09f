// Package parallel provides the worker pool that runs tile decode tasks off
// the owning goroutine.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs submitted functions on a fixed set of goroutines.
//
// Work is queued in FIFO order on an unbounded queue, so Submit never blocks
// the caller. This matters for the tile scheduler: it submits decode tasks
// while holding the view lock and must not wait on busy workers.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	mu    sync.Mutex
	cond  *sync.Cond
	queue []func()

	// closed is set once Close starts.
	closed bool

	wg sync.WaitGroup

	// active counts functions currently executing.
	active atomic.Int64
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{workers: workers}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		work := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.active.Add(1)
		work()
		p.active.Add(-1)
	}
}

// Submit queues fn for execution. It never blocks.
// If the pool is closed, this is a no-op.
func (p *WorkerPool) Submit(fn func()) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, fn)
	p.mu.Unlock()
	p.cond.Signal()
}

// Close stops accepting work, lets workers finish everything already queued
// and waits for them to exit. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Pending returns the number of queued plus executing functions.
// This is an approximation as the queue can change while reading.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	n := len(p.queue)
	p.mu.Unlock()
	return n + int(p.active.Load())
}
