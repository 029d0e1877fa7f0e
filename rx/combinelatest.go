package rx

import (
	"sync"

	"github.com/7vars/reactor"
)

// CombineLatest holds the latest value of every source and, once all
// have produced at least one, invokes combiner on any subsequent update
// from any source. Completes when any source completes before ever
// emitting, or when all sources have completed. Each source is
// prefetched with bufferSize and replenished by one slot each time its
// value is superseded, per §4.4; emission to downstream is bounded by a
// request counter rather than pushed unconditionally.
func CombineLatest[T any](combiner func([]T) T, sources ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		c := newCombineLatestCoordinator(down, combiner, len(sources))
		c.start(sources)
	})
}

type combineLatestCoordinator[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	combiner  func([]T) T
	values    []T
	has       []bool
	haveCount int
	remaining int
	requested requestCounter
	wip       workInProgress
	emitted   int64
	queue     *ringQueue[[]T]
	done      bool
	subs      []Subscription
}

func newCombineLatestCoordinator[T any](down Subscriber[T], combiner func([]T) T, n int) *combineLatestCoordinator[T] {
	return &combineLatestCoordinator[T]{
		down:      down,
		combiner:  combiner,
		values:    make([]T, n),
		has:       make([]bool, n),
		remaining: n,
		queue:     newRingQueue[[]T](reactor.DefaultBufferSize()),
	}
}

func (c *combineLatestCoordinator[T]) start(sources []Publisher[T]) {
	c.down.OnSubscribe(newBaseSubscription(c.onRequest, c.onCancel))
	if len(sources) == 0 {
		c.down.OnComplete()
		return
	}
	prefetch := int64(reactor.DefaultBufferSize())
	for idx, src := range sources {
		src.Subscribe(&combineLatestInner[T]{parent: c, idx: idx, prefetch: prefetch})
	}
}

func (c *combineLatestCoordinator[T]) onRequest(n int64) {
	c.requested.add(n)
	c.drain()
}

func (c *combineLatestCoordinator[T]) onCancel() {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
	c.cancelAll()
}

func (c *combineLatestCoordinator[T]) addSub(s Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
}

func (c *combineLatestCoordinator[T]) cancelAll() {
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

func (c *combineLatestCoordinator[T]) onNext(idx int, v T, sub Subscription) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	supersededSlot := c.has[idx]
	if !supersededSlot {
		c.has[idx] = true
		c.haveCount++
	}
	c.values[idx] = v
	ready := c.haveCount == len(c.values)
	var snapshot []T
	if ready {
		snapshot = make([]T, len(c.values))
		copy(snapshot, c.values)
	}
	c.mu.Unlock()
	if supersededSlot && sub != nil {
		sub.Request(1)
	}
	if ready {
		c.queue.Offer(snapshot)
		c.drain()
	}
}

func (c *combineLatestCoordinator[T]) drain() {
	c.wip.trampoline(c.drainLoop)
}

func (c *combineLatestCoordinator[T]) drainLoop() {
	for {
		c.mu.Lock()
		done := c.done
		c.mu.Unlock()
		if done {
			c.queue.Clear()
			return
		}
		r := c.requested.get()
		if r != MaxRequest && c.emitted >= r {
			return
		}
		snapshot, ok := c.queue.Poll()
		if !ok {
			return
		}
		c.down.OnNext(c.combiner(snapshot))
		c.emitted++
		if r != MaxRequest {
			c.requested.produced(1)
		}
	}
}

func (c *combineLatestCoordinator[T]) onError(err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()
	c.cancelAll()
	c.down.OnError(err)
}

func (c *combineLatestCoordinator[T]) onComplete(idx int) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	emittedThis := c.has[idx]
	c.remaining--
	remaining := c.remaining
	c.mu.Unlock()
	if !emittedThis || remaining == 0 {
		c.mu.Lock()
		if c.done {
			c.mu.Unlock()
			return
		}
		c.done = true
		c.mu.Unlock()
		c.cancelAll()
		c.down.OnComplete()
	}
}

type combineLatestInner[T any] struct {
	parent   *combineLatestCoordinator[T]
	idx      int
	prefetch int64
	sub      Subscription
}

func (i *combineLatestInner[T]) OnSubscribe(sub Subscription) {
	i.sub = sub
	i.parent.addSub(sub)
	sub.Request(i.prefetch)
}

func (i *combineLatestInner[T]) OnNext(v T)        { i.parent.onNext(i.idx, v, i.sub) }
func (i *combineLatestInner[T]) OnError(err error) { i.parent.onError(err) }
func (i *combineLatestInner[T]) OnComplete()       { i.parent.onComplete(i.idx) }
