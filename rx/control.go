package rx

import "sync"

// Using ties a resource's lifetime to a single subscription: acquire
// runs once at subscribe time, release runs once the resulting
// publisher terminates or is cancelled, whichever comes first.
func Using[T, R any](acquire func() (R, error), factory func(R) Publisher[T], release func(R)) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		res, err := acquire()
		if err != nil {
			down.OnSubscribe(newBaseSubscription(nil, nil))
			down.OnError(err)
			return
		}
		released := false
		releaseOnce := func() {
			if !released {
				released = true
				release(res)
			}
		}
		factory(res).Subscribe(&usingSubscriber[T]{down: down, release: releaseOnce})
	})
}

type usingSubscriber[T any] struct {
	down    Subscriber[T]
	release func()
}

func (u *usingSubscriber[T]) OnSubscribe(sub Subscription) {
	u.down.OnSubscribe(newBaseSubscription(sub.Request, func() {
		sub.Cancel()
		u.release()
	}))
}
func (u *usingSubscriber[T]) OnNext(v T) { u.down.OnNext(v) }
func (u *usingSubscriber[T]) OnError(err error) {
	u.release()
	u.down.OnError(err)
}
func (u *usingSubscriber[T]) OnComplete() {
	u.release()
	u.down.OnComplete()
}

// Repeat resubscribes to factory() every time the previous subscription
// completes, for count subscriptions in all, the first one included (0
// means forever), mirroring Retry's
// fresh-subscription-per-attempt shape but triggered by completion
// rather than error.
func Repeat[T any](factory func() Publisher[T], count int) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		r := &repeatSubscriber[T]{factory: factory, down: down, remaining: count}
		r.subscribe()
	})
}

type repeatSubscriber[T any] struct {
	factory    func() Publisher[T]
	down       Subscriber[T]
	remaining  int
	subscribed bool
	cancelled  bool
}

func (r *repeatSubscriber[T]) subscribe() { r.factory().Subscribe(r) }

func (r *repeatSubscriber[T]) OnSubscribe(sub Subscription) {
	if r.subscribed {
		sub.Request(MaxRequest)
		return
	}
	r.subscribed = true
	r.down.OnSubscribe(newBaseSubscription(sub.Request, func() {
		r.cancelled = true
		sub.Cancel()
	}))
}

func (r *repeatSubscriber[T]) OnNext(v T)       { r.down.OnNext(v) }
func (r *repeatSubscriber[T]) OnError(err error) { r.down.OnError(err) }
func (r *repeatSubscriber[T]) OnComplete() {
	if r.cancelled {
		return
	}
	if r.remaining > 0 {
		r.remaining--
		if r.remaining == 0 {
			r.down.OnComplete()
			return
		}
	}
	r.subscribe()
}

// DefaultIfEmpty emits def, then completes, if upstream completes
// without ever having emitted an item.
func DefaultIfEmpty[T any](upstream Publisher[T], def T) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&defaultIfEmptySubscriber[T]{down: down, def: def})
	})
}

type defaultIfEmptySubscriber[T any] struct {
	down    Subscriber[T]
	def     T
	emitted bool
}

func (d *defaultIfEmptySubscriber[T]) OnSubscribe(sub Subscription) { d.down.OnSubscribe(sub) }
func (d *defaultIfEmptySubscriber[T]) OnNext(v T) {
	d.emitted = true
	d.down.OnNext(v)
}
func (d *defaultIfEmptySubscriber[T]) OnError(err error) { d.down.OnError(err) }
func (d *defaultIfEmptySubscriber[T]) OnComplete() {
	if !d.emitted {
		d.down.OnNext(d.def)
	}
	d.down.OnComplete()
}

// SwitchIfEmpty switches to alternate if upstream completes without
// ever having emitted an item. down gets exactly one OnSubscribe for
// its whole lifetime; the alternate's subscription is arbitrated in
// behind it, the same way Retry and Concat swap their active upstream.
func SwitchIfEmpty[T any](upstream Publisher[T], alternate Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		s := &switchIfEmptySubscriber[T]{down: down, alternate: alternate}
		upstream.Subscribe(s)
	})
}

type switchIfEmptySubscriber[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	alternate Publisher[T]
	active    Subscription
	requested int64
	emitted   bool
}

func (s *switchIfEmptySubscriber[T]) OnSubscribe(sub Subscription) {
	s.mu.Lock()
	s.active = sub
	s.mu.Unlock()
	s.down.OnSubscribe(newBaseSubscription(s.onRequest, s.onCancel))
}

func (s *switchIfEmptySubscriber[T]) onRequest(n int64) {
	s.mu.Lock()
	s.requested = AddRequest(s.requested, n)
	active := s.active
	s.mu.Unlock()
	if active != nil {
		active.Request(n)
	}
}

func (s *switchIfEmptySubscriber[T]) onCancel() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
}

func (s *switchIfEmptySubscriber[T]) OnNext(v T) {
	s.mu.Lock()
	s.emitted = true
	s.requested = ProducedRequest(s.requested, 1)
	s.mu.Unlock()
	s.down.OnNext(v)
}
func (s *switchIfEmptySubscriber[T]) OnError(err error) { s.down.OnError(err) }
func (s *switchIfEmptySubscriber[T]) OnComplete() {
	if !s.emitted {
		s.alternate.Subscribe(&switchIfEmptyAlternate[T]{parent: s})
		return
	}
	s.down.OnComplete()
}

type switchIfEmptyAlternate[T any] struct {
	parent *switchIfEmptySubscriber[T]
}

func (a *switchIfEmptyAlternate[T]) OnSubscribe(sub Subscription) {
	a.parent.mu.Lock()
	a.parent.active = sub
	requested := a.parent.requested
	a.parent.mu.Unlock()
	if requested > 0 {
		sub.Request(requested)
	}
}
func (a *switchIfEmptyAlternate[T]) OnNext(v T) {
	a.parent.mu.Lock()
	a.parent.requested = ProducedRequest(a.parent.requested, 1)
	a.parent.mu.Unlock()
	a.parent.down.OnNext(v)
}
func (a *switchIfEmptyAlternate[T]) OnError(err error) { a.parent.down.OnError(err) }
func (a *switchIfEmptyAlternate[T]) OnComplete()        { a.parent.down.OnComplete() }

// FlatMapEnumerable maps each upstream item to a plain slice and
// flattens the slices into the output stream in order, requesting one
// upstream item for each slice fully drained.
func FlatMapEnumerable[T, K any](upstream Publisher[T], f func(T) []K) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		upstream.Subscribe(&flatMapEnumerableSubscriber[T, K]{down: down, f: f})
	})
}

type flatMapEnumerableSubscriber[T, K any] struct {
	down Subscriber[K]
	sub  Subscription
	f    func(T) []K
}

func (fe *flatMapEnumerableSubscriber[T, K]) OnSubscribe(sub Subscription) {
	fe.sub = sub
	fe.down.OnSubscribe(newBaseSubscription(sub.Request, sub.Cancel))
}

func (fe *flatMapEnumerableSubscriber[T, K]) OnNext(v T) {
	for _, k := range fe.f(v) {
		fe.down.OnNext(k)
	}
}

func (fe *flatMapEnumerableSubscriber[T, K]) OnError(err error) { fe.down.OnError(err) }
func (fe *flatMapEnumerableSubscriber[T, K]) OnComplete()        { fe.down.OnComplete() }
