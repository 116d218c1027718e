// Package worker runs point copy jobs from a queue on a bounded set of
// goroutines.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/histsync/internal/adapters/mq/queue"
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/metrics"
)

// Processor handles one job. A returned error is fatal for the whole pool;
// per-job failures that the run survives must be recorded by the processor
// and reported as nil.
type Processor interface {
	Process(ctx context.Context, job queue.Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job queue.Job) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job queue.Job) error {
	return f(ctx, job)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker takes jobs off a queue until it is drained or the context
// ends.
type InMemoryWorker struct {
	queue  Queue
	proc   Processor
	name   string
	logger logger.Logger

	// fail receives fatal processing errors
	fail func(error)

	done chan struct{}
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, proc Processor, opts ...Option) *InMemoryWorker {
	s := settings{name: "worker", logger: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return &InMemoryWorker{
		queue:  q,
		proc:   proc,
		name:   s.name,
		logger: s.logger.Named(s.name),
		fail:   func(error) {},
		done:   make(chan struct{}),
	}
}

// Run processes jobs until the queue is closed and drained, ctx is done, or
// a job fails fatally.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.fail(err)
				return
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.proc.Process(ctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "fatal")
		w.logger.Error(ctx, "job failed",
			logger.Int("seq", j.Seq),
			logger.String("point", j.Pair.Source),
			logger.Error(err))
		return fmt.Errorf("%s: %w", w.name, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue. The first fatal error
// cancels the remaining workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger

	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// NewPool creates a pool of workerCount workers (at least one).
func NewPool(workerCount int, q Queue, proc Processor, opts ...Option) *Pool {
	workerCount = max(workerCount, 1)
	s := settings{name: "worker", logger: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  s.logger.Named("worker-pool"),
	}
	for i := range workerCount {
		w := NewInMemoryWorker(q, proc, append(opts, WithName(s.name+"-"+strconv.Itoa(i)))...)
		w.fail = p.setErr
		p.workers[i] = w
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has stopped and returns the first fatal
// job error, if any.
func (p *Pool) Wait() error {
	for _, w := range p.workers {
		<-w.done
	}
	metrics.UpdateWorkerActiveCount(0)
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Shutdown closes the queue, if it can be closed, cancels the workers and
// waits for them until ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if p.cancel != nil {
		p.cancel()
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	}
	return nil
}

func (p *Pool) setErr(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	p.cancel()
}
