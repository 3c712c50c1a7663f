// Package dispatch runs page agent requests on a single worker so that at
// most one interaction touches the live page at any time.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"invoicescraper/pkg/logger"
)

// ErrStopped is returned by Submit after Stop
var ErrStopped = errors.New("dispatch queue is stopped")

// Handler processes one job
type Handler[J, R any] func(ctx context.Context, job J) R

// envelope carries a job and the channel its result is delivered on
type envelope[J, R any] struct {
	ctx   context.Context
	job   J
	reply chan R
}

// Queue serializes jobs through one worker goroutine
type Queue[J, R any] struct {
	handler   Handler[J, R]
	jobs      chan envelope[J, R]
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	processed atomic.Int64
	startOnce sync.Once
	stopOnce  sync.Once
	logger    logger.Logger
}

// New creates a queue. buffer is how many submitted jobs may wait behind
// the one in progress.
func New[J, R any](handler Handler[J, R], buffer int, log logger.Logger) *Queue[J, R] {
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue[J, R]{
		handler: handler,
		jobs:    make(chan envelope[J, R], buffer),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log,
	}
}

// Start launches the worker
func (q *Queue[J, R]) Start() {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.worker()
	})
}

// Stop rejects new jobs and waits for the job in progress to finish
func (q *Queue[J, R]) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
		q.logger.DebugWithFields("Dispatch queue stopped", map[string]interface{}{
			"processed": q.processed.Load(),
		})
	})
}

// Submit enqueues job and blocks until its result is ready or ctx ends.
// A job whose caller gave up is still drained by the worker; its result
// is discarded.
func (q *Queue[J, R]) Submit(ctx context.Context, job J) (R, error) {
	var zero R
	env := envelope[J, R]{ctx: ctx, job: job, reply: make(chan R, 1)}

	select {
	case q.jobs <- env:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.ctx.Done():
		return zero, ErrStopped
	}

	select {
	case r := <-env.reply:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.ctx.Done():
		return zero, ErrStopped
	}
}

// Processed returns how many jobs the worker has completed
func (q *Queue[J, R]) Processed() int64 {
	return q.processed.Load()
}

// Pending returns the number of jobs waiting behind the current one
func (q *Queue[J, R]) Pending() int {
	return len(q.jobs)
}

func (q *Queue[J, R]) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case env := <-q.jobs:
			if env.ctx.Err() != nil {
				q.logger.Debug("Dropping job whose caller already gave up")
				continue
			}
			start := time.Now()
			r := q.handler(env.ctx, env.job)
			q.processed.Add(1)
			env.reply <- r
			q.logger.DebugWithFields("Job processed", map[string]interface{}{
				"duration": time.Since(start),
			})
		}
	}
}
