package rx

import (
	"sync"

	"github.com/7vars/reactor"
)

// OverflowStrategy selects the §4.4 policy applied when an unbounded
// upstream outpaces the outstanding downstream request.
type OverflowStrategy int

const (
	// OverflowError emits an error and cancels upstream.
	OverflowError OverflowStrategy = iota
	// OverflowDrop silently drops the overflowing item, optionally
	// invoking a callback.
	OverflowDrop
	// OverflowLatest keeps only the most recent undelivered item.
	OverflowLatest
	// OverflowBuffer queues every item in an unbounded linked queue —
	// the only policy that can exhaust memory.
	OverflowBuffer
)

// OnBackpressure wraps upstream with one of the four overflow policies.
// onDrop, if non-nil, is invoked for every item OverflowDrop discards.
func OnBackpressure[T any](upstream Publisher[T], strategy OverflowStrategy, onDrop func(T)) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		bp := &backpressureSubscriber[T]{down: down, strategy: strategy, onDrop: onDrop}
		if strategy == OverflowBuffer {
			bp.buffer = newLinkedQueue[T]()
		}
		upstream.Subscribe(bp)
	})
}

type backpressureSubscriber[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	sub       Subscription
	strategy  OverflowStrategy
	onDrop    func(T)
	requested int64
	hasLatest bool
	latest    T
	buffer    *linkedQueue[T]
	done      bool
}

func (b *backpressureSubscriber[T]) OnSubscribe(sub Subscription) {
	b.sub = sub
	down := newBaseSubscription(b.onRequest, sub.Cancel)
	b.down.OnSubscribe(down)
	sub.Request(MaxRequest)
}

func (b *backpressureSubscriber[T]) onRequest(n int64) {
	b.mu.Lock()
	b.requested = AddRequest(b.requested, n)
	b.mu.Unlock()
	b.drainBuffered()
}

func (b *backpressureSubscriber[T]) drainBuffered() {
	for {
		b.mu.Lock()
		if b.done || b.requested <= 0 {
			b.mu.Unlock()
			return
		}
		var v T
		var ok bool
		switch b.strategy {
		case OverflowLatest:
			if b.hasLatest {
				v, ok = b.latest, true
				b.hasLatest = false
			}
		case OverflowBuffer:
			v, ok = b.buffer.Poll()
		}
		if !ok {
			b.mu.Unlock()
			return
		}
		b.requested = ProducedRequest(b.requested, 1)
		b.mu.Unlock()
		b.down.OnNext(v)
	}
}

func (b *backpressureSubscriber[T]) OnNext(v T) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	if b.requested > 0 {
		b.requested = ProducedRequest(b.requested, 1)
		b.mu.Unlock()
		b.down.OnNext(v)
		return
	}
	switch b.strategy {
	case OverflowError:
		b.done = true
		b.mu.Unlock()
		b.sub.Cancel()
		b.down.OnError(reactor.NewOverflowError(0, 1))
		return
	case OverflowDrop:
		b.mu.Unlock()
		if b.onDrop != nil {
			b.onDrop(v)
		}
		b.sub.Request(1)
		return
	case OverflowLatest:
		b.hasLatest = true
		b.latest = v
		b.mu.Unlock()
		b.sub.Request(1)
		return
	case OverflowBuffer:
		b.buffer.Offer(v)
		b.mu.Unlock()
		b.sub.Request(1)
		return
	}
	b.mu.Unlock()
}

func (b *backpressureSubscriber[T]) OnError(err error) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.mu.Unlock()
	b.down.OnError(err)
}

func (b *backpressureSubscriber[T]) OnComplete() {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	pending := b.strategy == OverflowBuffer && !b.buffer.IsEmpty()
	pending = pending || (b.strategy == OverflowLatest && b.hasLatest)
	b.mu.Unlock()
	if pending {
		b.drainBuffered()
	}
	b.mu.Lock()
	b.done = true
	b.mu.Unlock()
	b.down.OnComplete()
}
