package rx

import (
	"sync"

	"github.com/7vars/reactor"
	"github.com/7vars/reactor/executor"
)

// ObserveOn is the asynchronous boundary of §4.4: items arriving from
// upstream are written to a bounded queue and a trampoline is scheduled
// on worker; the trampoline runs the queue-drain loop, so ordering is
// preserved by the single-consumer queue and single worker. The worker
// is released on terminal or cancel.
func ObserveOn[T any](upstream Publisher[T], worker executor.Worker, prefetch int) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		ob := newObserveOnSubscriber(down, worker, prefetch)
		upstream.Subscribe(ob)
	})
}

type observeOnSubscriber[T any] struct {
	down   Subscriber[T]
	worker executor.Worker
	drain  *drainController[T]
	upSub  Subscription
}

func newObserveOnSubscriber[T any](down Subscriber[T], worker executor.Worker, prefetch int) *observeOnSubscriber[T] {
	ob := &observeOnSubscriber[T]{down: down, worker: worker}
	ob.drain = newDrainController[T](prefetch,
		func(v T) { ob.down.OnNext(v) },
		func(err error) {
			ob.worker.Dispose()
			ob.down.OnError(err)
		},
		func() {
			ob.worker.Dispose()
			ob.down.OnComplete()
		},
		func(n int64) {
			if ob.upSub != nil {
				ob.upSub.Request(n)
			}
		},
		nil,
	)
	return ob
}

func (o *observeOnSubscriber[T]) OnSubscribe(sub Subscription) {
	o.upSub = sub
	fused := newAsyncFuseable(o.drain, func() {
		sub.Cancel()
		o.worker.Dispose()
	})
	o.down.OnSubscribe(fused)
	sub.Request(o.drain.prefetch)
}

func (o *observeOnSubscriber[T]) schedule() {
	o.worker.Schedule(func() { o.drain.drain() })
}

func (o *observeOnSubscriber[T]) OnNext(v T) {
	if !o.drain.queue.Offer(v) {
		o.OnError(reactor.NewOverflowError(o.drain.requested.get(), o.drain.emitted+1))
		return
	}
	o.schedule()
}

func (o *observeOnSubscriber[T]) OnError(err error) {
	o.drain.terminal.setError(err)
	o.schedule()
}

func (o *observeOnSubscriber[T]) OnComplete() {
	o.drain.terminal.setComplete()
	o.schedule()
}

// SubscribeOn schedules the subscribe call itself onto worker. When
// requestOn is true, downstream requests also hop to worker — required
// when upstream is synchronous/blocking and must not run on the
// subscribing thread.
func SubscribeOn[T any](upstream Publisher[T], worker executor.Worker, requestOn bool) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		so := &subscribeOnSubscriber[T]{down: down, worker: worker, requestOn: requestOn}
		worker.Schedule(func() {
			upstream.Subscribe(so)
		})
	})
}

type subscribeOnSubscriber[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	worker    executor.Worker
	requestOn bool
	upSub     Subscription
}

func (s *subscribeOnSubscriber[T]) OnSubscribe(sub Subscription) {
	s.mu.Lock()
	s.upSub = sub
	s.mu.Unlock()
	down := newBaseSubscription(func(n int64) {
		if s.requestOn {
			s.worker.Schedule(func() { sub.Request(n) })
			return
		}
		sub.Request(n)
	}, sub.Cancel)
	s.down.OnSubscribe(down)
}

func (s *subscribeOnSubscriber[T]) OnNext(v T)       { s.down.OnNext(v) }
func (s *subscribeOnSubscriber[T]) OnError(err error) { s.down.OnError(err) }
func (s *subscribeOnSubscriber[T]) OnComplete()        { s.down.OnComplete() }
