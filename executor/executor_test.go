package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoWorkerRunsInOrder(t *testing.T) {
	w := newFifoWorker()
	defer w.Dispose()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)

	for i := 0; i < 5; i++ {
		i := i
		w.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}

	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFifoWorkerDisposeCancelsPending(t *testing.T) {
	w := newFifoWorker()

	ran := make(chan struct{}, 1)
	w.Schedule(func() {
		<-ran // block the single thread so later tasks stay pending
	})
	w.Schedule(func() {
		t.Error("pending task must not run after Dispose")
	})

	w.Dispose()
	close(ran)
	time.Sleep(10 * time.Millisecond)
	assert.True(t, w.Disposed())
}

func TestFifoWorkerScheduleDelayed(t *testing.T) {
	w := newFifoWorker()
	defer w.Dispose()

	start := time.Now()
	done := make(chan struct{})
	w.ScheduleDelayed(func() {
		close(done)
	}, 30*time.Millisecond)

	<-done
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestFifoWorkerScheduleDelayedDisposeSuppressesRun(t *testing.T) {
	w := newFifoWorker()
	defer w.Dispose()

	ran := false
	d := w.ScheduleDelayed(func() {
		ran = true
	}, 20*time.Millisecond)
	d.Dispose()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran)
}

func TestFifoWorkerSchedulePeriodic(t *testing.T) {
	w := newFifoWorker()
	defer w.Dispose()

	var count int32
	var mu sync.Mutex
	d := w.SchedulePeriodic(func() {
		mu.Lock()
		count++
		mu.Unlock()
	}, 5*time.Millisecond, 10*time.Millisecond)

	time.Sleep(55 * time.Millisecond)
	d.Dispose()

	mu.Lock()
	got := count
	mu.Unlock()
	assert.GreaterOrEqual(t, got, int32(3))
}

func TestImmediateRunsSynchronously(t *testing.T) {
	w := NewImmediate().Worker()
	ran := false
	w.Schedule(func() { ran = true })
	assert.True(t, ran)
}

func TestSingleSharesOneWorker(t *testing.T) {
	ex := NewSingle()
	w1 := ex.Worker()
	w2 := ex.Worker()
	assert.Same(t, w1, w2)
	w1.Dispose()
}

func TestComputationPoolRoundRobins(t *testing.T) {
	ex := NewComputation(3).(*computationExecutor)
	defer func() {
		for _, w := range ex.workers {
			w.Dispose()
		}
	}()
	seen := map[Worker]bool{}
	for i := 0; i < 6; i++ {
		seen[ex.Worker()] = true
	}
	assert.LessOrEqual(t, len(seen), 3)
}

func TestSubmitFuture(t *testing.T) {
	w := newFifoWorker()
	defer w.Dispose()

	f := Submit(w, func() (interface{}, error) {
		return 42, nil
	})

	v, err := f.AwaitTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFutureAwaitContextCancelled(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRuntimeTerminate(t *testing.T) {
	rt := NewRuntime()
	rt.Terminate()
	rt.Terminate() // idempotent

	select {
	case <-rt.Terminated():
	case <-time.After(time.Second):
		t.Fatal("runtime did not terminate")
	}
}
