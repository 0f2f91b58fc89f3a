package util

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
)

// WorkerPool runs submitted jobs in background routines.
type WorkerPool interface {
	// Submit queues a job. Implementations return an error if the job
	// can't be queued, callers may then run it themselves.
	Submit(func()) error

	// Release stops accepting jobs, subsequent Submit calls fail with
	// ErrPoolClosed. Jobs already queued are not waited for.
	Release()
}

// ErrPoolClosed is returned when submitting a job to a released pool.
var ErrPoolClosed = ants.ErrPoolClosed

// NewWorkerPool returns non-blocking pool of size routines. Submit fails
// with ants.ErrPoolOverload when all of them are busy.
func NewWorkerPool(size int) (WorkerPool, error) {
	p, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool of size %d: %w", size, err)
	}
	return p, nil
}

// pseudoWorkerPool runs jobs in the caller's routine.
type pseudoWorkerPool struct {
	closed atomic.Bool
}

// NewPseudoWorkerPool returns pool running every job synchronously inside
// Submit.
func NewPseudoWorkerPool() WorkerPool {
	return &pseudoWorkerPool{}
}

// Submit runs fn and returns nil unless the pool is released.
func (p *pseudoWorkerPool) Submit(fn func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	fn()

	return nil
}

// Release implements WorkerPool.
func (p *pseudoWorkerPool) Release() {
	p.closed.Store(true)
}
