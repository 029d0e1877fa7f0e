package rx

import "sync"

// Zip pairs up the n-th item of every source into one combined value,
// per §4.4: each source is staged in its own unbounded queue, prefetched
// initially with prefetch items and replenished by one item per source
// each time a combined tuple is emitted. Downstream demand bounds
// emission through a request counter rather than draining the moment
// every queue holds an entry. Completes when any source completes and
// its queue has drained.
func Zip[T any](combiner func([]T) T, prefetch int, sources ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		z := newZipCoordinator(down, combiner, prefetch, len(sources))
		z.start(sources)
	})
}

type zipCoordinator[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	combiner  func([]T) T
	prefetch  int64
	queues    []*linkedQueue[T]
	sourceSub []Subscription
	completed []bool
	requested requestCounter
	wip       workInProgress
	emitted   int64
	done      bool
}

func newZipCoordinator[T any](down Subscriber[T], combiner func([]T) T, prefetch, n int) *zipCoordinator[T] {
	if prefetch < 1 {
		prefetch = 1
	}
	z := &zipCoordinator[T]{
		down:      down,
		combiner:  combiner,
		prefetch:  int64(prefetch),
		queues:    make([]*linkedQueue[T], n),
		sourceSub: make([]Subscription, n),
		completed: make([]bool, n),
	}
	for i := range z.queues {
		z.queues[i] = newLinkedQueue[T]()
	}
	return z
}

func (z *zipCoordinator[T]) start(sources []Publisher[T]) {
	z.down.OnSubscribe(newBaseSubscription(z.onRequest, z.cancelAll))
	if len(sources) == 0 {
		z.down.OnComplete()
		return
	}
	for idx, src := range sources {
		src.Subscribe(&zipInner[T]{parent: z, idx: idx})
	}
}

func (z *zipCoordinator[T]) onRequest(n int64) {
	z.requested.add(n)
	z.drain()
}

func (z *zipCoordinator[T]) cancelAll() {
	z.mu.Lock()
	z.done = true
	subs := append([]Subscription(nil), z.sourceSub...)
	z.mu.Unlock()
	for _, s := range subs {
		if s != nil {
			s.Cancel()
		}
	}
}

func (z *zipCoordinator[T]) onNext(idx int, v T) {
	z.queues[idx].Offer(v)
	z.drain()
}

func (z *zipCoordinator[T]) drain() {
	z.wip.trampoline(z.drainLoop)
}

func (z *zipCoordinator[T]) drainLoop() {
	for {
		z.mu.Lock()
		if z.done {
			z.mu.Unlock()
			return
		}
		r := z.requested.get()
		if r != MaxRequest && z.emitted >= r {
			z.mu.Unlock()
			return
		}
		ready := true
		for _, q := range z.queues {
			if q.IsEmpty() {
				ready = false
				break
			}
		}
		if !ready {
			for idx, completed := range z.completed {
				if completed && z.queues[idx].IsEmpty() {
					z.done = true
					subs := append([]Subscription(nil), z.sourceSub...)
					z.mu.Unlock()
					for _, s := range subs {
						if s != nil {
							s.Cancel()
						}
					}
					z.down.OnComplete()
					return
				}
			}
			z.mu.Unlock()
			return
		}
		vals := make([]T, len(z.queues))
		for i, q := range z.queues {
			v, _ := q.Poll()
			vals[i] = v
		}
		subs := append([]Subscription(nil), z.sourceSub...)
		z.mu.Unlock()

		z.down.OnNext(z.combiner(vals))
		z.emitted++
		if r != MaxRequest {
			z.requested.produced(1)
		}
		for _, s := range subs {
			if s != nil {
				s.Request(1)
			}
		}
	}
}

func (z *zipCoordinator[T]) onError(err error) {
	z.mu.Lock()
	if z.done {
		z.mu.Unlock()
		return
	}
	z.done = true
	z.mu.Unlock()
	z.cancelAll()
	z.down.OnError(err)
}

func (z *zipCoordinator[T]) onComplete(idx int) {
	z.mu.Lock()
	z.completed[idx] = true
	z.mu.Unlock()
	z.drain()
}

type zipInner[T any] struct {
	parent *zipCoordinator[T]
	idx    int
}

func (i *zipInner[T]) OnSubscribe(sub Subscription) {
	i.parent.mu.Lock()
	i.parent.sourceSub[i.idx] = sub
	i.parent.mu.Unlock()
	sub.Request(i.parent.prefetch)
}

func (i *zipInner[T]) OnNext(v T)        { i.parent.onNext(i.idx, v) }
func (i *zipInner[T]) OnError(err error) { i.parent.onError(err) }
func (i *zipInner[T]) OnComplete()       { i.parent.onComplete(i.idx) }
