package rx

// Stateless and small-state transformers of §4.4. Each is a Publisher
// constructed from an upstream Publisher plus operator parameters; the
// real work happens in the subscriber adapter built at Subscribe time,
// per the composition-over-inheritance note in §9.

// Map applies f to every item.
func Map[T, K any](upstream Publisher[T], f func(T) (K, error)) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		upstream.Subscribe(&mapSubscriber[T, K]{down: down, f: f})
	})
}

type mapSubscriber[T, K any] struct {
	down Subscriber[K]
	f    func(T) (K, error)
	sub  Subscription
}

func (m *mapSubscriber[T, K]) OnSubscribe(sub Subscription) {
	m.sub = sub
	m.down.OnSubscribe(sub)
}

func (m *mapSubscriber[T, K]) OnNext(v T) {
	out, err := m.f(v)
	if err != nil {
		m.sub.Cancel()
		m.down.OnError(err)
		return
	}
	m.down.OnNext(out)
}

func (m *mapSubscriber[T, K]) OnError(err error) { m.down.OnError(err) }
func (m *mapSubscriber[T, K]) OnComplete()        { m.down.OnComplete() }

// Filter keeps only items satisfying pred, requesting a replacement
// upstream for each rejected item so the downstream's outstanding
// request is preserved per §4.4.
func Filter[T any](upstream Publisher[T], pred func(T) bool) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&filterSubscriber[T]{down: down, pred: pred})
	})
}

type filterSubscriber[T any] struct {
	down Subscriber[T]
	pred func(T) bool
	sub  Subscription
}

func (f *filterSubscriber[T]) OnSubscribe(sub Subscription) {
	f.sub = sub
	f.down.OnSubscribe(sub)
}

func (f *filterSubscriber[T]) OnNext(v T) {
	if f.pred(v) {
		f.down.OnNext(v)
		return
	}
	f.sub.Request(1)
}

func (f *filterSubscriber[T]) OnError(err error) { f.down.OnError(err) }
func (f *filterSubscriber[T]) OnComplete()        { f.down.OnComplete() }

// Scan emits the running accumulation seed, f(seed,x1), f(f(seed,x1),x2)...
func Scan[T, K any](upstream Publisher[T], seed K, f func(K, T) K) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		upstream.Subscribe(&scanSubscriber[T, K]{down: down, acc: seed, f: f})
	})
}

type scanSubscriber[T, K any] struct {
	down Subscriber[K]
	acc  K
	f    func(K, T) K
	sub  Subscription
}

func (s *scanSubscriber[T, K]) OnSubscribe(sub Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *scanSubscriber[T, K]) OnNext(v T) {
	s.acc = s.f(s.acc, v)
	s.down.OnNext(s.acc)
}

func (s *scanSubscriber[T, K]) OnError(err error) { s.down.OnError(err) }
func (s *scanSubscriber[T, K]) OnComplete()        { s.down.OnComplete() }

// Reduce emits a single item: the fold of the whole stream, on complete.
func Reduce[T, K any](upstream Publisher[T], seed K, f func(K, T) K) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		upstream.Subscribe(&reduceSubscriber[T, K]{down: down, acc: seed, f: f})
	})
}

type reduceSubscriber[T, K any] struct {
	down Subscriber[K]
	acc  K
	f    func(K, T) K
	sub  Subscription
}

func (r *reduceSubscriber[T, K]) OnSubscribe(sub Subscription) {
	r.sub = sub
	sub.Request(MaxRequest)
	r.down.OnSubscribe(sub)
}

func (r *reduceSubscriber[T, K]) OnNext(v T) { r.acc = r.f(r.acc, v) }
func (r *reduceSubscriber[T, K]) OnError(err error) { r.down.OnError(err) }
func (r *reduceSubscriber[T, K]) OnComplete() {
	r.down.OnNext(r.acc)
	r.down.OnComplete()
}

// Take emits at most n items then cancels upstream and completes.
func Take[T any](upstream Publisher[T], n int64) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&takeSubscriber[T]{down: down, remaining: n})
	})
}

type takeSubscriber[T any] struct {
	down      Subscriber[T]
	sub       Subscription
	remaining int64
	done      bool
}

func (t *takeSubscriber[T]) OnSubscribe(sub Subscription) {
	t.sub = sub
	if t.remaining <= 0 {
		sub.Cancel()
		t.down.OnSubscribe(newBaseSubscription(nil, nil))
		t.down.OnComplete()
		t.done = true
		return
	}
	t.down.OnSubscribe(sub)
}

func (t *takeSubscriber[T]) OnNext(v T) {
	if t.done || t.remaining <= 0 {
		return
	}
	t.remaining--
	t.down.OnNext(v)
	if t.remaining == 0 {
		t.done = true
		t.sub.Cancel()
		t.down.OnComplete()
	}
}

func (t *takeSubscriber[T]) OnError(err error) {
	if t.done {
		return
	}
	t.down.OnError(err)
}

func (t *takeSubscriber[T]) OnComplete() {
	if t.done {
		return
	}
	t.down.OnComplete()
}

// Skip discards the first n items.
func Skip[T any](upstream Publisher[T], n int64) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&skipSubscriber[T]{down: down, remaining: n})
	})
}

type skipSubscriber[T any] struct {
	down      Subscriber[T]
	sub       Subscription
	remaining int64
}

func (s *skipSubscriber[T]) OnSubscribe(sub Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *skipSubscriber[T]) OnNext(v T) {
	if s.remaining > 0 {
		s.remaining--
		s.sub.Request(1)
		return
	}
	s.down.OnNext(v)
}

func (s *skipSubscriber[T]) OnError(err error) { s.down.OnError(err) }
func (s *skipSubscriber[T]) OnComplete()        { s.down.OnComplete() }

// TakeWhile emits while pred holds, then cancels and completes on the
// first rejected item (the rejected item itself is not emitted).
func TakeWhile[T any](upstream Publisher[T], pred func(T) bool) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&takeWhileSubscriber[T]{down: down, pred: pred})
	})
}

type takeWhileSubscriber[T any] struct {
	down Subscriber[T]
	sub  Subscription
	pred func(T) bool
	done bool
}

func (t *takeWhileSubscriber[T]) OnSubscribe(sub Subscription) {
	t.sub = sub
	t.down.OnSubscribe(sub)
}

func (t *takeWhileSubscriber[T]) OnNext(v T) {
	if t.done {
		return
	}
	if !t.pred(v) {
		t.done = true
		t.sub.Cancel()
		t.down.OnComplete()
		return
	}
	t.down.OnNext(v)
}

func (t *takeWhileSubscriber[T]) OnError(err error) {
	if t.done {
		return
	}
	t.down.OnError(err)
}

func (t *takeWhileSubscriber[T]) OnComplete() {
	if t.done {
		return
	}
	t.down.OnComplete()
}

// SkipWhile discards items while pred holds, then relays everything
// from the first rejecting item onward (inclusive).
func SkipWhile[T any](upstream Publisher[T], pred func(T) bool) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&skipWhileSubscriber[T]{down: down, pred: pred, skipping: true})
	})
}

type skipWhileSubscriber[T any] struct {
	down     Subscriber[T]
	sub      Subscription
	pred     func(T) bool
	skipping bool
}

func (s *skipWhileSubscriber[T]) OnSubscribe(sub Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *skipWhileSubscriber[T]) OnNext(v T) {
	if s.skipping {
		if s.pred(v) {
			s.sub.Request(1)
			return
		}
		s.skipping = false
	}
	s.down.OnNext(v)
}

func (s *skipWhileSubscriber[T]) OnError(err error) { s.down.OnError(err) }
func (s *skipWhileSubscriber[T]) OnComplete()        { s.down.OnComplete() }

// TakeLast buffers the final n items in a ring and emits them, in
// arrival order, only once upstream completes.
func TakeLast[T any](upstream Publisher[T], n int) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&takeLastSubscriber[T]{down: down, n: n})
	})
}

type takeLastSubscriber[T any] struct {
	down Subscriber[T]
	sub  Subscription
	n    int
	buf  []T
}

func (t *takeLastSubscriber[T]) OnSubscribe(sub Subscription) {
	t.sub = sub
	sub.Request(MaxRequest)
	t.down.OnSubscribe(sub)
}

func (t *takeLastSubscriber[T]) OnNext(v T) {
	if t.n <= 0 {
		return
	}
	t.buf = append(t.buf, v)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
}

func (t *takeLastSubscriber[T]) OnError(err error) { t.down.OnError(err) }
func (t *takeLastSubscriber[T]) OnComplete() {
	for _, v := range t.buf {
		t.down.OnNext(v)
	}
	t.down.OnComplete()
}

// SkipLast withholds the final n items (they are never delivered).
func SkipLast[T any](upstream Publisher[T], n int) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&skipLastSubscriber[T]{down: down, n: n})
	})
}

type skipLastSubscriber[T any] struct {
	down Subscriber[T]
	sub  Subscription
	n    int
	buf  []T
}

func (s *skipLastSubscriber[T]) OnSubscribe(sub Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *skipLastSubscriber[T]) OnNext(v T) {
	if s.n <= 0 {
		s.down.OnNext(v)
		return
	}
	s.buf = append(s.buf, v)
	if len(s.buf) > s.n {
		out := s.buf[0]
		s.buf = s.buf[1:]
		s.down.OnNext(out)
	} else {
		s.sub.Request(1)
	}
}

func (s *skipLastSubscriber[T]) OnError(err error) { s.down.OnError(err) }
func (s *skipLastSubscriber[T]) OnComplete()        { s.down.OnComplete() }

// Distinct suppresses items equal (by key) to any item already seen.
func Distinct[T any, K comparable](upstream Publisher[T], key func(T) K) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&distinctSubscriber[T, K]{down: down, key: key, seen: map[K]struct{}{}})
	})
}

type distinctSubscriber[T any, K comparable] struct {
	down Subscriber[T]
	sub  Subscription
	key  func(T) K
	seen map[K]struct{}
}

func (d *distinctSubscriber[T, K]) OnSubscribe(sub Subscription) {
	d.sub = sub
	d.down.OnSubscribe(sub)
}

func (d *distinctSubscriber[T, K]) OnNext(v T) {
	k := d.key(v)
	if _, ok := d.seen[k]; ok {
		d.sub.Request(1)
		return
	}
	d.seen[k] = struct{}{}
	d.down.OnNext(v)
}

func (d *distinctSubscriber[T, K]) OnError(err error) { d.down.OnError(err) }
func (d *distinctSubscriber[T, K]) OnComplete()        { d.down.OnComplete() }

// IgnoreElements suppresses every item, relaying only complete/error.
func IgnoreElements[T any](upstream Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&ignoreElementsSubscriber[T]{down: down})
	})
}

type ignoreElementsSubscriber[T any] struct {
	down Subscriber[T]
	sub  Subscription
}

func (i *ignoreElementsSubscriber[T]) OnSubscribe(sub Subscription) {
	i.sub = sub
	sub.Request(MaxRequest)
	i.down.OnSubscribe(sub)
}

func (i *ignoreElementsSubscriber[T]) OnNext(T)          {}
func (i *ignoreElementsSubscriber[T]) OnError(err error) { i.down.OnError(err) }
func (i *ignoreElementsSubscriber[T]) OnComplete()        { i.down.OnComplete() }

// TakeUntil relays upstream items until other emits any signal, then
// cancels both and completes.
func TakeUntil[T, O any](upstream Publisher[T], other Publisher[O]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		tu := &takeUntilSubscriber[T, O]{down: down}
		other.Subscribe(&takeUntilOtherSubscriber[T, O]{parent: tu})
		upstream.Subscribe(tu)
	})
}

type takeUntilSubscriber[T, O any] struct {
	down Subscriber[T]
	sub  Subscription
	stop bool
}

func (t *takeUntilSubscriber[T, O]) OnSubscribe(sub Subscription) {
	t.sub = sub
	t.down.OnSubscribe(sub)
}

func (t *takeUntilSubscriber[T, O]) OnNext(v T) {
	if t.stop {
		return
	}
	t.down.OnNext(v)
}

func (t *takeUntilSubscriber[T, O]) OnError(err error) {
	if t.stop {
		return
	}
	t.stop = true
	t.down.OnError(err)
}

func (t *takeUntilSubscriber[T, O]) OnComplete() {
	if t.stop {
		return
	}
	t.stop = true
	t.down.OnComplete()
}

func (t *takeUntilSubscriber[T, O]) trigger() {
	if t.stop {
		return
	}
	t.stop = true
	if t.sub != nil {
		t.sub.Cancel()
	}
	t.down.OnComplete()
}

type takeUntilOtherSubscriber[T, O any] struct {
	parent *takeUntilSubscriber[T, O]
	sub    Subscription
}

func (o *takeUntilOtherSubscriber[T, O]) OnSubscribe(sub Subscription) {
	o.sub = sub
	sub.Request(1)
}

func (o *takeUntilOtherSubscriber[T, O]) OnNext(O) {
	o.sub.Cancel()
	o.parent.trigger()
}

func (o *takeUntilOtherSubscriber[T, O]) OnError(error) { o.parent.trigger() }
func (o *takeUntilOtherSubscriber[T, O]) OnComplete()     { o.parent.trigger() }

// SkipUntil discards upstream items until other emits its first
// signal, then relays every item seen from that point on.
func SkipUntil[T, O any](upstream Publisher[T], other Publisher[O]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		su := &skipUntilSubscriber[T, O]{down: down}
		other.Subscribe(&skipUntilOtherSubscriber[T, O]{parent: su})
		upstream.Subscribe(su)
	})
}

type skipUntilSubscriber[T, O any] struct {
	down   Subscriber[T]
	sub    Subscription
	opened bool
}

func (s *skipUntilSubscriber[T, O]) OnSubscribe(sub Subscription) {
	s.sub = sub
	s.down.OnSubscribe(sub)
}

func (s *skipUntilSubscriber[T, O]) OnNext(v T) {
	if !s.opened {
		s.sub.Request(1)
		return
	}
	s.down.OnNext(v)
}

func (s *skipUntilSubscriber[T, O]) OnError(err error) { s.down.OnError(err) }
func (s *skipUntilSubscriber[T, O]) OnComplete()        { s.down.OnComplete() }

func (s *skipUntilSubscriber[T, O]) open() { s.opened = true }

type skipUntilOtherSubscriber[T, O any] struct {
	parent *skipUntilSubscriber[T, O]
	sub    Subscription
	opened bool
}

func (o *skipUntilOtherSubscriber[T, O]) OnSubscribe(sub Subscription) {
	o.sub = sub
	sub.Request(1)
}

func (o *skipUntilOtherSubscriber[T, O]) OnNext(O) {
	if !o.opened {
		o.opened = true
		o.parent.open()
	}
	o.sub.Cancel()
}

func (o *skipUntilOtherSubscriber[T, O]) OnError(error) {}

func (o *skipUntilOtherSubscriber[T, O]) OnComplete() {}
