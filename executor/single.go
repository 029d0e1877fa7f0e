package executor

// singleExecutor hands out one shared worker backed by one goroutine, the
// way a "single" scheduler is shared across an entire process in the
// libraries this catalog follows.
type singleExecutor struct {
	worker *fifoWorker
}

// NewSingle returns the Single executor: one goroutine, shared by every
// caller of Worker().
func NewSingle() Executor {
	return &singleExecutor{worker: newFifoWorker()}
}

func (s *singleExecutor) Worker() Worker {
	return s.worker
}
