package workerpool

import (
	"context"
	"fmt"
	"sync"

	"clipharvest/pkg/logger"
)

// Handler processes one job. It must always return a result; failures are
// expressed in R, never by dropping the job.
type Handler[T, R any] func(ctx context.Context, workerID int, job T) R

// Pool runs a fixed number of workers over a job queue
type Pool[T, R any] struct {
	name        string
	numWorkers  int
	jobQueue    chan T
	resultQueue chan R
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	handler     Handler[T, R]
	logger      logger.Logger
	stopOnce    sync.Once
}

type options struct {
	name   string
	logger logger.Logger
}

// Option configures a Pool
type Option func(*options)

// WithName labels the pool in log output
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the pool logger
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a pool bound to ctx. numWorkers below 1 is treated as 1.
func New[T, R any](ctx context.Context, numWorkers int, handler Handler[T, R], opts ...Option) *Pool[T, R] {
	o := options{name: "pool"}
	for _, opt := range opts {
		opt(&o)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Pool[T, R]{
		name:        o.name,
		numWorkers:  numWorkers,
		jobQueue:    make(chan T, numWorkers*2),
		resultQueue: make(chan R, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		handler:     handler,
		logger:      logger.Or(o.logger).WithField("pool", o.name),
	}
}

// Start launches the workers
func (p *Pool[T, R]) Start() {
	p.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, waits for in-flight jobs and closes Results.
// Results must be drained concurrently or Stop can block.
func (p *Pool[T, R]) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobQueue)
		p.wg.Wait()
		close(p.resultQueue)
		p.cancel()
		p.logger.Debug("worker pool stopped")
	})
}

// Submit queues a job, blocking while the queue is full
func (p *Pool[T, R]) Submit(job T) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("%s: not accepting jobs: %w", p.name, p.ctx.Err())
	default:
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("%s: not accepting jobs: %w", p.name, p.ctx.Err())
	}
}

// Results returns the result channel
func (p *Pool[T, R]) Results() <-chan R {
	return p.resultQueue
}

// Workers returns the worker count
func (p *Pool[T, R]) Workers() int {
	return p.numWorkers
}

func (p *Pool[T, R]) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobQueue {
		p.resultQueue <- p.handler(p.ctx, id, job)
	}
}

type indexed[V any] struct {
	index int
	value V
}

// Run processes jobs with up to numWorkers concurrent workers and returns
// results in input order. Jobs not submitted because ctx ended keep the
// zero value of R.
func Run[T, R any](ctx context.Context, numWorkers int, jobs []T, fn func(ctx context.Context, job T) R, opts ...Option) []R {
	results := make([]R, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	p := New(ctx, numWorkers, func(ctx context.Context, _ int, j indexed[T]) indexed[R] {
		return indexed[R]{index: j.index, value: fn(ctx, j.value)}
	}, opts...)
	p.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range p.Results() {
			results[r.index] = r.value
		}
	}()

	for i, job := range jobs {
		if err := p.Submit(indexed[T]{index: i, value: job}); err != nil {
			p.logger.WarnWithFields("stopped submitting jobs", map[string]interface{}{
				"submitted": i,
				"total":     len(jobs),
				"error":     err.Error(),
			})
			break
		}
	}

	p.Stop()
	<-done
	return results
}
