// Package workerpool runs background jobs off the request goroutine with a
// bounded queue. Jobs receive a context that is cancelled when a shutdown
// drain runs out of time.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/renderhost/chrome-installer/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work submitted to the pool.
type Task func(ctx context.Context)

type job struct {
	name string
	task Task
}

// Pool is a bounded goroutine pool with a fixed-size job queue.
type Pool struct {
	queue  chan job
	wg     sync.WaitGroup
	active atomic.Int32

	// mu orders Submit's send against Shutdown's close of queue.
	mu        sync.RWMutex
	accepting bool
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool with workers goroutines and a queue of queueSize jobs.
func New(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:     make(chan job, queueSize),
		accepting: true,
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < workers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", workers, "queueSize", queueSize)
	return p
}

// Submit enqueues a named job. Returns false if the pool is shutting down
// or the queue is full.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.accepting {
		return false
	}

	// Add before enqueueing so Shutdown cannot miss the job.
	p.wg.Add(1)
	select {
	case p.queue <- job{name: name, task: task}:
		return true
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, job rejected", "job", name)
		return false
	}
}

// Active returns the number of jobs currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Shutdown stops accepting jobs and waits for queued and running ones. When
// ctx expires first, running jobs are cancelled and Shutdown returns false.
func (p *Pool) Shutdown(ctx context.Context) bool {
	p.mu.Lock()
	p.accepting = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	drained := true
	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out, cancelling running jobs", "active", p.Active())
		drained = false
	}

	p.cancel()
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	return drained
}

func (p *Pool) worker() {
	for j := range p.queue {
		p.run(j)
	}
}

// run executes one job with panic recovery. wg.Done matches the Add in Submit.
func (p *Pool) run(j job) {
	defer p.wg.Done()
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "job", j.name, "panic", r, "stack", string(debug.Stack()))
			return
		}
		log.Debug("job finished", "job", j.name, logging.KeyDurationMs, time.Since(start).Milliseconds())
	}()
	j.task(p.ctx)
}
