// Package queue implements the bounded execution queue a strategy uses
// to dispatch runnable tasks: a fixed pool of workers pulling from a
// channel, giving strict submission-order execution at concurrency 1
// and a bounded worker pool otherwise. Per the design note, this is a
// channel plus a worker pool of fixed size; draining closes the intake
// gate and waits for every job already submitted, queued or in flight.
package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of dispatchable work. TaskID is carried purely for
// logging; the queue itself is agnostic to what a job does.
type Job struct {
	TaskID string
	Run    func(ctx context.Context) error
}

const submitBuffer = 1024

// Queue bounds how many jobs run concurrently. A Queue is single-use:
// once Drain has returned, submit no further jobs.
type Queue struct {
	jobs    chan Job
	pending sync.WaitGroup
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	draining bool
}

// New constructs a Queue with concurrency workers. A strategy's own
// dispatch logic may submit a follow-up job from inside a job's Run
// (the reactive ripple when one task's completion unblocks the next);
// Submit only ever enqueues onto the channel, so it never blocks
// waiting on a worker that is itself the caller.
func New(parent context.Context, concurrency int) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)

	q := &Queue{
		jobs:   make(chan Job, submitBuffer),
		group:  group,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-q.jobs:
					err := job.Run(gctx)
					q.pending.Done()
					if err != nil {
						return err
					}
				}
			}
		})
	}
	return q
}

// Submit enqueues job. After Drain has been called, Submit is a no-op:
// draining stops accepting new work so Stop can converge.
func (q *Queue) Submit(job Job) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	q.pending.Add(1)
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-q.ctx.Done():
		q.pending.Done()
		return q.ctx.Err()
	}
}

// Drain stops accepting new submissions, waits for every already
// queued or in-flight job to finish, then stops the worker pool.
func (q *Queue) Drain() error {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()

	q.pending.Wait()
	q.cancel()
	return q.group.Wait()
}

// Wait blocks until every submitted job completes, without preventing
// further submissions first.
func (q *Queue) Wait() error {
	q.pending.Wait()
	return nil
}
