package runner

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

type Job func(ctx context.Context) error

// Pool runs jobs with at most maxWorkers concurrently. The first job error
// cancels the context handed to the others.
type Pool struct {
	p *pool.ContextPool
}

func NewPool(ctx context.Context, maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pool{
		p: pool.New().
			WithMaxGoroutines(maxWorkers).
			WithContext(ctx).
			WithCancelOnError().
			WithFirstError(),
	}
}

// Go blocks until a worker is free.
func (p *Pool) Go(job Job) {
	p.p.Go(job)
}

// Wait blocks until every submitted job has returned and reports the first
// error.
func (p *Pool) Wait() error {
	return p.p.Wait()
}
