package rx

import (
	"sync"

	"github.com/google/uuid"

	"github.com/7vars/reactor"
)

// Buffer collects upstream items into slices of size count and emits
// each full slice as one downstream item; a final partial slice, if
// any, is emitted on upstream completion.
func Buffer[T any](upstream Publisher[T], count int) Publisher[[]T] {
	return PublisherFunc[[]T](func(down Subscriber[[]T]) {
		upstream.Subscribe(&bufferSubscriber[T]{down: down, count: count})
	})
}

type bufferSubscriber[T any] struct {
	down  Subscriber[[]T]
	sub   Subscription
	count int
	cur   []T
}

func (b *bufferSubscriber[T]) OnSubscribe(sub Subscription) {
	b.sub = sub
	b.down.OnSubscribe(newBaseSubscription(
		func(n int64) {
			if b.count > 0 && n > MaxRequest/int64(b.count) {
				sub.Request(MaxRequest)
				return
			}
			sub.Request(n * int64(b.count))
		},
		sub.Cancel,
	))
}

func (b *bufferSubscriber[T]) OnNext(v T) {
	b.cur = append(b.cur, v)
	if len(b.cur) >= b.count {
		out := b.cur
		b.cur = nil
		b.down.OnNext(out)
	}
}

func (b *bufferSubscriber[T]) OnError(err error) { b.down.OnError(err) }
func (b *bufferSubscriber[T]) OnComplete() {
	if len(b.cur) > 0 {
		b.down.OnNext(b.cur)
		b.cur = nil
	}
	b.down.OnComplete()
}

// Window is Buffer's streaming cousin: instead of materializing each
// window as a slice, it emits a Publisher[T] per window that itself
// replays just that window's items.
func Window[T any](upstream Publisher[T], count int) Publisher[Publisher[T]] {
	return Map[[]T, Publisher[T]](Buffer(upstream, count), func(items []T) (Publisher[T], error) {
		return FromSlice(items), nil
	})
}

// GroupBy partitions upstream items by key into a single stream of
// GroupedPublisher values, one per distinct key observed, opened the
// first time that key is seen.
func GroupBy[T any, K comparable](upstream Publisher[T], keyFn func(T) K) Publisher[*GroupedPublisher[K, T]] {
	return PublisherFunc[*GroupedPublisher[K, T]](func(down Subscriber[*GroupedPublisher[K, T]]) {
		g := &groupByCoordinator[T, K]{down: down, keyFn: keyFn, groups: map[K]*GroupedPublisher[K, T]{}}
		upstream.Subscribe(g)
	})
}

// GroupedPublisher is one key's sub-stream within a GroupBy output: a
// Publisher in its own right, backed by an unbounded per-key queue fed
// by the coordinator.
type GroupedPublisher[K comparable, T any] struct {
	Key   K
	// ID identifies this group instance for log correlation when
	// several GroupedPublishers are open concurrently; it has no
	// bearing on delivery semantics.
	ID        uuid.UUID
	queue     *linkedQueue[T]
	wip       workInProgress
	terminal  terminalLatch
	requested requestCounter
	emitted   int64
	mu        sync.Mutex
	down      Subscriber[T]
	attached  bool
}

func newGroupedPublisher[K comparable, T any](key K) *GroupedPublisher[K, T] {
	return &GroupedPublisher[K, T]{Key: key, ID: uuid.New(), queue: newLinkedQueue[T]()}
}

func (g *GroupedPublisher[K, T]) Subscribe(sub Subscriber[T]) {
	g.mu.Lock()
	if g.attached {
		g.mu.Unlock()
		sub.OnSubscribe(newBaseSubscription(nil, nil))
		sub.OnError(reactor.NewProtocolError("grouped publisher subscribed more than once"))
		return
	}
	g.attached = true
	g.down = sub
	g.mu.Unlock()
	sub.OnSubscribe(newBaseSubscription(g.onRequest, nil))
	g.drain()
}

func (g *GroupedPublisher[K, T]) onRequest(n int64) {
	g.requested.add(n)
	g.drain()
}

func (g *GroupedPublisher[K, T]) push(v T) {
	g.queue.Offer(v)
	g.drain()
}

func (g *GroupedPublisher[K, T]) fail(err error) {
	g.terminal.setError(err)
	g.drain()
}

func (g *GroupedPublisher[K, T]) complete() {
	g.terminal.setComplete()
	g.drain()
}

func (g *GroupedPublisher[K, T]) drain() {
	g.mu.Lock()
	down := g.down
	g.mu.Unlock()
	if down == nil {
		return
	}
	g.wip.trampoline(func() {
		for {
			r := g.requested.get()
			if r != MaxRequest && g.emitted >= r {
				break
			}
			v, ok := g.queue.Poll()
			if !ok {
				break
			}
			down.OnNext(v)
			g.emitted++
			if r != MaxRequest {
				g.requested.produced(1)
			}
		}
		if g.queue.IsEmpty() {
			if kind, err := g.terminal.get(); kind != terminalNone {
				if kind == terminalError {
					down.OnError(err)
				} else {
					down.OnComplete()
				}
			}
		}
	})
}

type groupByCoordinator[T any, K comparable] struct {
	mu     sync.Mutex
	down   Subscriber[*GroupedPublisher[K, T]]
	sub    Subscription
	keyFn  func(T) K
	groups map[K]*GroupedPublisher[K, T]
}

func (g *groupByCoordinator[T, K]) OnSubscribe(sub Subscription) {
	g.sub = sub
	g.down.OnSubscribe(newBaseSubscription(sub.Request, sub.Cancel))
}

func (g *groupByCoordinator[T, K]) OnNext(v T) {
	key := g.keyFn(v)
	g.mu.Lock()
	group, ok := g.groups[key]
	if !ok {
		group = newGroupedPublisher[K, T](key)
		g.groups[key] = group
	}
	g.mu.Unlock()
	if !ok {
		g.down.OnNext(group)
	}
	group.push(v)
}

func (g *groupByCoordinator[T, K]) OnError(err error) {
	g.mu.Lock()
	groups := make([]*GroupedPublisher[K, T], 0, len(g.groups))
	for _, gr := range g.groups {
		groups = append(groups, gr)
	}
	g.mu.Unlock()
	for _, gr := range groups {
		gr.fail(err)
	}
	g.down.OnError(err)
}

func (g *groupByCoordinator[T, K]) OnComplete() {
	g.mu.Lock()
	groups := make([]*GroupedPublisher[K, T], 0, len(g.groups))
	for _, gr := range g.groups {
		groups = append(groups, gr)
	}
	g.mu.Unlock()
	for _, gr := range groups {
		gr.complete()
	}
	g.down.OnComplete()
}
