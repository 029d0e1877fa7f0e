package executor

import (
	"context"
	"time"
)

// Future is a one-shot result handed back by work submitted to a Worker.
// It is awaited directly and is not a Publisher: nothing in this module
// wraps a Future as a one-item stream source. Grounded on the teacher's
// message.go/ref.go
// reply-channel request pattern (Msg.Reply, Ref.RequestWithContext),
// generalized from actor replies to arbitrary worker results.
type Future struct {
	result chan futureResult
}

type futureResult struct {
	val interface{}
	err error
}

// NewFuture creates an uncompleted Future.
func NewFuture() *Future {
	return &Future{result: make(chan futureResult, 1)}
}

func (f *Future) complete(v interface{}, err error) {
	select {
	case f.result <- futureResult{v, err}:
	default:
	}
}

// Await blocks until the Future completes or ctx is done.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case r := <-f.result:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitTimeout blocks until the Future completes or timeout elapses.
func (f *Future) AwaitTimeout(timeout time.Duration) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.Await(ctx)
}

// Submit schedules fn on w and completes the returned Future with its result.
func Submit(w Worker, fn func() (interface{}, error)) *Future {
	f := NewFuture()
	w.Schedule(func() {
		v, err := fn()
		f.complete(v, err)
	})
	return f
}
