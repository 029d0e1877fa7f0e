package rx

import (
	"context"
	"sync"
)

// BlockingSubscribe subscribes to pub and blocks the calling goroutine
// until it terminates, invoking onNext for each item and returning the
// terminal error (nil on plain completion). It requests MaxRequest
// upfront; there is no backpressure from this bridge onto the pipeline
// it drains, by design, per §2's "blocking bridges" role as an external
// convenience rather than part of the operator core.
func BlockingSubscribe[T any](pub Publisher[T], onNext func(T)) error {
	done := make(chan error, 1)
	pub.Subscribe(&blockingSubscriber[T]{onNext: onNext, done: done})
	return <-done
}

type blockingSubscriber[T any] struct {
	onNext func(T)
	done   chan error
}

func (b *blockingSubscriber[T]) OnSubscribe(sub Subscription) { sub.Request(MaxRequest) }
func (b *blockingSubscriber[T]) OnNext(v T)                    { b.onNext(v) }
func (b *blockingSubscriber[T]) OnError(err error)             { b.done <- err }
func (b *blockingSubscriber[T]) OnComplete()                    { b.done <- nil }

// BlockingIterable adapts pub to a pull-style iterator: Next blocks
// until an item, error, or completion arrives. Requests one item at a
// time so the iterator's own consumption rate governs upstream pacing.
//
// If upstream grants sync fusion (the cold-generator case of §3: Range,
// FromSlice, Just), Next polls the upstream's QueueSubscription
// directly instead of going through the OnNext/channel relay below.
type BlockingIterable[T any] struct {
	sub   Subscription
	fused QueueSubscription[T]
	items chan T
	done  chan error
	once  sync.Once
}

// NewBlockingIterable subscribes to pub and returns an iterator over it.
func NewBlockingIterable[T any](pub Publisher[T]) *BlockingIterable[T] {
	it := &BlockingIterable[T]{items: make(chan T), done: make(chan error, 1)}
	pub.Subscribe(&blockingIterableSubscriber[T]{it: it})
	return it
}

type blockingIterableSubscriber[T any] struct {
	it *BlockingIterable[T]
}

func (b *blockingIterableSubscriber[T]) OnSubscribe(sub Subscription) {
	b.it.sub = sub
	if qs, ok := sub.(QueueSubscription[T]); ok && qs.RequestFusion(FusionSync) == FusionSync {
		b.it.fused = qs
		return
	}
	sub.Request(1)
}

func (b *blockingIterableSubscriber[T]) OnNext(v T) { b.it.items <- v }
func (b *blockingIterableSubscriber[T]) OnError(err error) {
	b.it.done <- err
	close(b.it.items)
}
func (b *blockingIterableSubscriber[T]) OnComplete() {
	b.it.done <- nil
	close(b.it.items)
}

// Next blocks for the next item. ok is false once the stream has
// terminated; err (checked via Err) carries any terminal error.
func (it *BlockingIterable[T]) Next(ctx context.Context) (v T, ok bool) {
	if it.fused != nil {
		v, polled, done := it.fused.Poll()
		if polled {
			return v, true
		}
		if done {
			it.once.Do(func() { it.done <- nil })
		}
		var zero T
		return zero, false
	}
	select {
	case v, ok = <-it.items:
		if ok {
			it.sub.Request(1)
		}
		return v, ok
	case <-ctx.Done():
		it.sub.Cancel()
		var zero T
		return zero, false
	}
}

// Err returns the terminal error, if any, once iteration has stopped.
// Must only be called after Next has returned ok=false.
func (it *BlockingIterable[T]) Err() error {
	select {
	case err := <-it.done:
		return err
	default:
		return nil
	}
}
