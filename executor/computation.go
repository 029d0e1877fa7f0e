package executor

import "sync/atomic"

// computationExecutor approximates a fixed-size thread pool with a fixed
// set of long-lived single-threaded workers handed out round-robin. Each
// individual Worker stays single-threaded and FIFO as required by §5;
// the approximation is that a caller asking for N+1 workers from an
// N-worker pool shares one of the existing goroutines rather than
// growing the pool, trading perfect isolation for a bounded goroutine
// count.
type computationExecutor struct {
	workers []*fifoWorker
	next    atomic.Uint64
}

// NewComputation returns the Computation executor backed by a pool of
// size goroutines. size is clamped to at least 1.
func NewComputation(size int) Executor {
	if size < 1 {
		size = 1
	}
	workers := make([]*fifoWorker, size)
	for i := range workers {
		workers[i] = newFifoWorker()
	}
	return &computationExecutor{workers: workers}
}

func (c *computationExecutor) Worker() Worker {
	idx := c.next.Add(1) % uint64(len(c.workers))
	return c.workers[idx]
}
