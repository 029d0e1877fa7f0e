package rx

import (
	"sync"

	"github.com/7vars/reactor"
)

// Concat subscribes to sources one at a time, in order: the next source
// is subscribed only after the current one completes. Errors terminate
// immediately unless delayErrors is set, in which case they are
// collected and surfaced once every source has run.
func Concat[T any](delayErrors bool, sources ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		c := &concatCoordinator[T]{down: down, sources: sources, delayErrors: delayErrors}
		c.start()
	})
}

type concatCoordinator[T any] struct {
	mu          sync.Mutex
	down        Subscriber[T]
	sources     []Publisher[T]
	idx         int
	delayErrors bool
	errs        []error
	requested   int64
	curSub      Subscription
	cancelled   bool
	done        bool
}

func (c *concatCoordinator[T]) start() {
	c.down.OnSubscribe(newBaseSubscription(c.onRequest, c.onCancel))
	c.subscribeNext()
}

func (c *concatCoordinator[T]) onRequest(n int64) {
	c.mu.Lock()
	c.requested = AddRequest(c.requested, n)
	sub := c.curSub
	c.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

func (c *concatCoordinator[T]) onCancel() {
	c.mu.Lock()
	c.cancelled = true
	sub := c.curSub
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (c *concatCoordinator[T]) subscribeNext() {
	c.mu.Lock()
	if c.cancelled || c.done {
		c.mu.Unlock()
		return
	}
	if c.idx >= len(c.sources) {
		c.done = true
		errs := c.errs
		c.mu.Unlock()
		if len(errs) > 0 {
			c.down.OnError(reactor.NewCompositeError(errs...))
		} else {
			c.down.OnComplete()
		}
		return
	}
	src := c.sources[c.idx]
	c.idx++
	c.mu.Unlock()
	src.Subscribe(&concatInner[T]{parent: c})
}

type concatInner[T any] struct {
	parent *concatCoordinator[T]
}

func (i *concatInner[T]) OnSubscribe(sub Subscription) {
	i.parent.mu.Lock()
	i.parent.curSub = sub
	requested := i.parent.requested
	i.parent.mu.Unlock()
	if requested > 0 {
		sub.Request(requested)
	}
}

func (i *concatInner[T]) OnNext(v T) {
	i.parent.mu.Lock()
	i.parent.requested = ProducedRequest(i.parent.requested, 1)
	i.parent.mu.Unlock()
	i.parent.down.OnNext(v)
}

func (i *concatInner[T]) OnError(err error) {
	i.parent.mu.Lock()
	delay := i.parent.delayErrors
	if delay {
		i.parent.errs = append(i.parent.errs, err)
	}
	i.parent.mu.Unlock()
	if delay {
		i.parent.subscribeNext()
		return
	}
	i.parent.mu.Lock()
	i.parent.done = true
	i.parent.mu.Unlock()
	i.parent.down.OnError(err)
}

func (i *concatInner[T]) OnComplete() { i.parent.subscribeNext() }

// ConcatEager subscribes up to maxConcurrency inner publishers
// immediately, each staged in its own bufferSize-capacity queue, but
// drains them strictly in arrival order: the head inner's queue must
// empty and complete before the next inner's buffered items are
// relayed downstream. Emission is bounded by a single downstream
// request counter, the same drain-loop shape Merge uses for its
// per-inner queues.
func ConcatEager[T any](maxConcurrency int, sources ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		ce := newConcatEagerCoordinator(down, maxConcurrency, sources)
		ce.start()
	})
}

type eagerSlot[T any] struct {
	queue *ringQueue[T]
	sub   Subscription
	done  bool
	err   error
}

type concatEagerCoordinator[T any] struct {
	mu             sync.Mutex
	down           Subscriber[T]
	sources        []Publisher[T]
	maxConcurrency int
	nextSubscribe  int
	slots          []*eagerSlot[T]
	headIdx        int
	requested      requestCounter
	wip            workInProgress
	emitted        int64
	cancelled      bool
	finished       bool
}

func newConcatEagerCoordinator[T any](down Subscriber[T], maxConcurrency int, sources []Publisher[T]) *concatEagerCoordinator[T] {
	if maxConcurrency <= 0 {
		maxConcurrency = len(sources)
	}
	bufferSize := reactor.DefaultBufferSize()
	slots := make([]*eagerSlot[T], len(sources))
	for i := range slots {
		slots[i] = &eagerSlot[T]{queue: newRingQueue[T](bufferSize)}
	}
	return &concatEagerCoordinator[T]{down: down, sources: sources, maxConcurrency: maxConcurrency, slots: slots}
}

func (c *concatEagerCoordinator[T]) start() {
	c.down.OnSubscribe(newBaseSubscription(c.onRequest, c.onCancel))
	if len(c.sources) == 0 {
		c.down.OnComplete()
		return
	}
	c.mu.Lock()
	for c.nextSubscribe < len(c.sources) && c.nextSubscribe < c.maxConcurrency {
		idx := c.nextSubscribe
		c.nextSubscribe++
		c.mu.Unlock()
		c.sources[idx].Subscribe(&concatEagerInner[T]{parent: c, idx: idx})
		c.mu.Lock()
	}
	c.mu.Unlock()
}

func (c *concatEagerCoordinator[T]) onRequest(n int64) {
	c.requested.add(n)
	c.drain()
}

func (c *concatEagerCoordinator[T]) onCancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	slots := append([]*eagerSlot[T](nil), c.slots...)
	c.mu.Unlock()
	for _, s := range slots {
		if s.sub != nil {
			s.sub.Cancel()
		}
	}
	c.drain()
}

func (c *concatEagerCoordinator[T]) onInnerError(idx int, err error) {
	c.mu.Lock()
	c.slots[idx].err = err
	c.slots[idx].done = true
	c.mu.Unlock()
	c.drain()
}

func (c *concatEagerCoordinator[T]) onInnerComplete(idx int) {
	c.mu.Lock()
	c.slots[idx].done = true
	subscribeIdx := -1
	if c.nextSubscribe < len(c.sources) {
		subscribeIdx = c.nextSubscribe
		c.nextSubscribe++
	}
	c.mu.Unlock()
	if subscribeIdx >= 0 {
		c.sources[subscribeIdx].Subscribe(&concatEagerInner[T]{parent: c, idx: subscribeIdx})
	}
	c.drain()
}

func (c *concatEagerCoordinator[T]) fail(err error) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.cancelled = true
	slots := append([]*eagerSlot[T](nil), c.slots...)
	c.mu.Unlock()
	for _, s := range slots {
		if s.sub != nil {
			s.sub.Cancel()
		}
	}
	c.down.OnError(err)
}

func (c *concatEagerCoordinator[T]) drain() {
	c.wip.trampoline(c.drainLoop)
}

func (c *concatEagerCoordinator[T]) drainLoop() {
	for {
		c.mu.Lock()
		if c.cancelled || c.finished {
			slots := append([]*eagerSlot[T](nil), c.slots...)
			c.mu.Unlock()
			for _, s := range slots {
				s.queue.Clear()
			}
			return
		}
		if c.headIdx >= len(c.slots) {
			c.finished = true
			c.mu.Unlock()
			c.down.OnComplete()
			return
		}
		slot := c.slots[c.headIdx]
		r := c.requested.get()
		if r != MaxRequest && c.emitted >= r {
			c.mu.Unlock()
			return
		}
		v, ok := slot.queue.Poll()
		if ok {
			c.mu.Unlock()
			c.down.OnNext(v)
			c.emitted++
			if r != MaxRequest {
				c.requested.produced(1)
			}
			if slot.sub != nil {
				slot.sub.Request(1)
			}
			continue
		}
		err := slot.err
		done := slot.done
		c.mu.Unlock()
		if err != nil {
			c.fail(err)
			return
		}
		if done {
			c.mu.Lock()
			c.headIdx++
			c.mu.Unlock()
			continue
		}
		return
	}
}

type concatEagerInner[T any] struct {
	parent *concatEagerCoordinator[T]
	idx    int
}

func (i *concatEagerInner[T]) OnSubscribe(sub Subscription) {
	i.parent.mu.Lock()
	slot := i.parent.slots[i.idx]
	slot.sub = sub
	cancelled := i.parent.cancelled
	i.parent.mu.Unlock()
	if cancelled {
		sub.Cancel()
		return
	}
	sub.Request(int64(slot.queue.Capacity()))
}

func (i *concatEagerInner[T]) OnNext(v T) {
	slot := i.parent.slots[i.idx]
	if !slot.queue.Offer(v) {
		i.parent.fail(reactor.NewOverflowError(i.parent.requested.get(), i.parent.emitted+1))
		return
	}
	i.parent.drain()
}

func (i *concatEagerInner[T]) OnError(err error) { i.parent.onInnerError(i.idx, err) }
func (i *concatEagerInner[T]) OnComplete()        { i.parent.onInnerComplete(i.idx) }
