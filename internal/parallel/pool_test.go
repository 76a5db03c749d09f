package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewWorkerPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

func TestWorkerPool_SubmitRunsEverything(t *testing.T) {
	pool := NewWorkerPool(3)

	var counter atomic.Int64
	var wg sync.WaitGroup
	const numTasks = 200
	wg.Add(numTasks)
	for range numTasks {
		pool.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
	}
	wg.Wait()
	pool.Close()

	if counter.Load() != numTasks {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_SubmitDoesNotBlock(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	release := make(chan struct{})
	pool.Submit(func() { <-release })

	done := make(chan struct{})
	go func() {
		// Far more work than any bounded queue would hold.
		for range 10_000 {
			pool.Submit(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked while the only worker was busy")
	}
	close(release)
}

func TestWorkerPool_CloseDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(2)

	var counter atomic.Int64
	for range 50 {
		pool.Submit(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}
	pool.Close()

	if counter.Load() != 50 {
		t.Errorf("queued work lost on Close: ran %d of 50", counter.Load())
	}
	if pool.Pending() != 0 {
		t.Errorf("Pending() = %d after Close, want 0", pool.Pending())
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close() // idempotent

	var ran atomic.Bool
	pool.Submit(func() { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Error("work submitted after Close was executed")
	}
}

func TestWorkerPool_NilSubmit(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()
	pool.Submit(nil)
	if pool.Pending() != 0 {
		t.Errorf("Pending() = %d after nil submit", pool.Pending())
	}
}
