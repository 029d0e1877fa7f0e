// Package rx is the flow-control core: publishers, subscribers and
// subscriptions under a pull-based backpressure discipline, plus the
// operator catalog built on top of it.
//
// The teacher's rx package (fanin.go/fanout.go/flow.go/pipe.go/source.go/
// sink.go) modeled this same shape — stages wired by hand-rolled command
// and event channels with no per-item request accounting. rx.go's own
// bottom section already sketched the reactive-streams-style
// Publisher[T]/Subscriber[T]/Subscription/Processor[T,K] trio; this
// package makes that sketch the real core and rebuilds the channel
// plumbing underneath it to actually honor bounded requests.
package rx

import "github.com/7vars/reactor"

// MaxRequest is the saturating "unbounded" request value.
const MaxRequest = int64(1<<63 - 1)

// AddRequest returns min(current+n, MaxRequest), saturating rather than
// overflowing.
func AddRequest(current, n int64) int64 {
	if n <= 0 {
		return current
	}
	if current >= MaxRequest-n || current == MaxRequest {
		return MaxRequest
	}
	return current + n
}

// ProducedRequest returns current-n, the outstanding request after n
// items were delivered. An unbounded (MaxRequest) counter never drains.
// Consuming past zero is a protocol violation and panics — callers of
// the queue-drain skeleton never let that happen, so it only fires when
// a hand-written operator mis-accounts.
func ProducedRequest(current, n int64) int64 {
	if current == MaxRequest {
		return MaxRequest
	}
	if n > current {
		panic(reactor.NewProtocolError("produced more items than requested"))
	}
	return current - n
}

// Publisher is a factory that, on attach, produces a stream for exactly
// one Subscriber.
type Publisher[T any] interface {
	Subscribe(Subscriber[T])
}

// Subscriber receives exactly the signal sequence described in §3: one
// OnSubscribe, zero or more OnNext, then at most one of OnComplete or
// OnError.
type Subscriber[T any] interface {
	OnSubscribe(Subscription)
	OnNext(T)
	OnError(error)
	OnComplete()
}

// Subscription is the handle a Subscriber uses to pull items from and
// detach from its Publisher.
type Subscription interface {
	// Request declares that up to n additional items are acceptable.
	Request(n int64)
	// Cancel irrevocably detaches. Idempotent.
	Cancel()
}

// Processor is simultaneously a Subscriber of T and a Publisher of K —
// a hot, shared, in-the-middle stage.
type Processor[T, K any] interface {
	Subscriber[T]
	Publisher[K]
}

// PublisherFunc adapts a plain function to a Publisher.
type PublisherFunc[T any] func(Subscriber[T])

func (f PublisherFunc[T]) Subscribe(sub Subscriber[T]) { f(sub) }

// Via chains pub through proc and returns proc as the new Publisher.
func Via[T, K any](pub Publisher[T], proc Processor[T, K]) Publisher[K] {
	pub.Subscribe(proc)
	return proc
}

// To subscribes every sub to pub.
func To[T any](pub Publisher[T], subs ...Subscriber[T]) {
	for _, sub := range subs {
		pub.Subscribe(sub)
	}
}
