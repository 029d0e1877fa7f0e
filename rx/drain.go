package rx

// drainController is the reusable §4.3 skeleton: a queue Q, a request
// counter R, a work-in-progress counter W, a terminal latch T and a
// cancelled flag, wired to a single emit callback. ObserveOn embeds one
// directly, since it drains exactly one queue for exactly one
// downstream. The N-source coordinators (Merge, FlatMap, ConcatEager,
// CombineLatest, Zip) can't embed the struct itself — they drain
// several per-source queues into one downstream counter — so they
// reuse its primitives (ringQueue, requestCounter, workInProgress)
// directly in their own drain loops instead.
//
// Grounded on the teacher's pipe.go dispatch loop (a goroutine draining
// a command channel until told to stop) generalized to the request-
// counted, queue-backed drain the design calls for.
type drainController[T any] struct {
	queue     *ringQueue[T]
	requested requestCounter
	wip       workInProgress
	terminal  terminalLatch
	cancelled func() bool

	emit     func(T)
	fail     func(error)
	complete func()

	emitted     int64
	prefetch    int64
	replenish   func(int64)
	lowWater    int64

	sinceReplenish int64
}

// newDrainController wires a drain over a fixed-capacity queue of the
// given prefetch size. replenish is invoked (on the draining thread)
// whenever consumption crosses the 75% mark of the prefetch window, per
// §4.3's replenishment rule.
func newDrainController[T any](prefetch int, emit func(T), fail func(error), complete func(), replenish func(int64), cancelled func() bool) *drainController[T] {
	if prefetch < 1 {
		prefetch = 1
	}
	d := &drainController[T]{
		queue:     newRingQueue[T](prefetch),
		emit:      emit,
		fail:      fail,
		complete:  complete,
		replenish: replenish,
		cancelled: cancelled,
		prefetch:  int64(prefetch),
	}
	d.lowWater = (d.prefetch * 3) / 4
	if d.lowWater < 1 {
		d.lowWater = 1
	}
	return d
}

// offer stages v for delivery and schedules a drain pass. Returns false
// if the internal queue is full (caller's fusion/backpressure policy
// decides what happens then).
func (d *drainController[T]) offer(v T) bool {
	if !d.queue.Offer(v) {
		return false
	}
	d.drain()
	return true
}

func (d *drainController[T]) request(n int64) {
	d.requested.add(n)
	d.drain()
}

func (d *drainController[T]) signalComplete() {
	d.terminal.setComplete()
	d.drain()
}

func (d *drainController[T]) signalError(err error) {
	d.terminal.setError(err)
	d.drain()
}

// drain runs the enter-or-mark-missed trampoline of §4.3.
func (d *drainController[T]) drain() {
	d.wip.trampoline(func() {
		d.drainLoop()
	})
}

func (d *drainController[T]) drainLoop() {
	if d.cancelled != nil && d.cancelled() {
		d.queue.Clear()
		return
	}

	r := d.requested.get()
	for (r == MaxRequest || d.emitted < r) && !d.queue.IsEmpty() {
		if d.cancelled != nil && d.cancelled() {
			d.queue.Clear()
			return
		}
		v, ok := d.queue.Poll()
		if !ok {
			break
		}
		d.emit(v)
		d.emitted++
		d.sinceReplenish++
		if r != MaxRequest {
			d.requested.produced(1)
		}
		if d.sinceReplenish >= d.lowWater && d.replenish != nil {
			d.replenish(d.sinceReplenish)
			d.sinceReplenish = 0
		}
		r = d.requested.get()
	}

	if d.cancelled != nil && d.cancelled() {
		d.queue.Clear()
		return
	}

	if d.queue.IsEmpty() {
		if kind, err := d.terminal.get(); kind != terminalNone {
			switch kind {
			case terminalComplete:
				if d.complete != nil {
					d.complete()
				}
			case terminalError:
				if d.fail != nil {
					d.fail(err)
				}
			}
		}
	}
}
