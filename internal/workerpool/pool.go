// Package workerpool runs post-recording jobs (archive uploads) on a small
// bounded set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omnicapture/agent/internal/logging"
)

var log = logging.L("workerpool")

var (
	// ErrClosed is returned by Submit after Shutdown began.
	ErrClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("worker pool queue full")
)

// Job is a named unit of work. Run receives a context that is cancelled when
// the pool gives up waiting during Shutdown and that carries a job-tagged
// logger (logging.FromContext).
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool is a bounded goroutine pool with a fixed-size job queue.
type Pool struct {
	queue     chan Job
	wg        sync.WaitGroup
	accepting atomic.Bool
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	failed atomic.Uint64
}

// New creates a pool with maxWorkers goroutines and a job queue of queueSize.
func New(maxWorkers, queueSize int) *Pool {
	maxWorkers = max(maxWorkers, 1)
	queueSize = max(queueSize, 1)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.accepting.Store(true)

	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Submit enqueues a job without blocking.
// wg.Add happens before enqueue so Shutdown never misses a job.
func (p *Pool) Submit(job Job) error {
	if !p.accepting.Load() {
		return ErrClosed
	}

	p.wg.Add(1)
	select {
	case p.queue <- job:
		return nil
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, job rejected", "job", job.Name)
		return ErrQueueFull
	}
}

// Failed is the number of jobs that returned an error or panicked.
func (p *Pool) Failed() uint64 {
	return p.failed.Load()
}

// Shutdown stops accepting jobs and waits for queued and running ones. When
// ctx ends first, running jobs see their context cancelled and queued jobs
// are skipped.
func (p *Pool) Shutdown(ctx context.Context) {
	p.accepting.Store(false)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out, cancelling jobs")
		p.cancel()
		<-done
	}

	p.cancel()
	p.closeOnce.Do(func() {
		close(p.queue)
	})
}

func (p *Pool) worker() {
	for job := range p.queue {
		p.runJob(job)
	}
}

// runJob executes a single job with panic recovery. wg.Done matches the
// wg.Add in Submit.
func (p *Pool) runJob(job Job) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			log.Error("job panicked", "job", job.Name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if p.ctx.Err() != nil {
		log.Warn("job skipped, pool shutting down", "job", job.Name)
		return
	}

	logger := log.With("job", job.Name)
	start := time.Now()
	if err := job.Run(logging.NewContext(p.ctx, logger)); err != nil {
		p.failed.Add(1)
		logger.Error("job failed", logging.KeyError, err,
			logging.KeyDurationMs, time.Since(start).Milliseconds())
		return
	}
	logger.Debug("job finished", logging.KeyDurationMs, time.Since(start).Milliseconds())
}
