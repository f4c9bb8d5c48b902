package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job hands back
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers. Results are delivered on
// Results() in completion order; callers that need input order carry an
// index in their Result.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	startOnce  sync.Once
	closeOnce  sync.Once
}

// NewPool creates a pool bound to ctx; cancelling ctx stops the workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
		go func() {
			p.wg.Wait()
			close(p.results)
		}()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It returns false once the pool is shutting down.
func (p *Pool) Submit(job Job) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Close signals that no more jobs will be submitted. Results() is closed
// once every queued job has finished.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Results streams job results until the pool drains
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown cancels in-flight work and waits for the workers to exit
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
}

// Run executes jobs and returns every result. Submission runs alongside
// collection so a full result buffer never stalls the submitter.
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	pool := NewPool(ctx, workers)
	pool.Start()
	defer pool.Shutdown()

	go func() {
		defer pool.Close()
		for _, job := range jobs {
			if !pool.Submit(job) {
				return
			}
		}
	}()

	results := make([]Result, 0, len(jobs))
	for result := range pool.Results() {
		results = append(results, result)
	}
	return results
}
