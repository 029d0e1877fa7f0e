package rx

import "sync"

// WithLatestFrom relays main's items combined with the latest value of
// every other source, per §4.4. Main items are dropped until every
// other source has emitted at least once. Others contribute only their
// errors to termination, never their completion. Main is the only
// source whose items reach downstream, so it is the only one gated by
// downstream demand: requested is accumulated on the coordinator and
// forwarded to mainSub, 1-for-1 with every item actually combined.
// While still waiting on the others, main is drained at its own pace
// since a dropped item never consumes downstream demand.
func WithLatestFrom[T, O, K any](main Publisher[T], combiner func(T, []O) K, others ...Publisher[O]) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		w := newWithLatestFromCoordinator(down, combiner, len(others))
		w.start(main, others)
	})
}

type withLatestFromCoordinator[T, O, K any] struct {
	mu        sync.Mutex
	down      Subscriber[K]
	combiner  func(T, []O) K
	values    []O
	has       []bool
	haveAll   bool
	mainSub   Subscription
	others    []Subscription
	requested int64
	done      bool
}

func newWithLatestFromCoordinator[T, O, K any](down Subscriber[K], combiner func(T, []O) K, n int) *withLatestFromCoordinator[T, O, K] {
	return &withLatestFromCoordinator[T, O, K]{
		down:     down,
		combiner: combiner,
		values:   make([]O, n),
		has:      make([]bool, n),
		others:   make([]Subscription, n),
		haveAll:  n == 0,
	}
}

func (w *withLatestFromCoordinator[T, O, K]) start(main Publisher[T], others []Publisher[O]) {
	w.down.OnSubscribe(newBaseSubscription(w.onRequest, w.cancelAll))
	for idx, o := range others {
		o.Subscribe(&withLatestFromOther[T, O, K]{parent: w, idx: idx})
	}
	main.Subscribe(&withLatestFromMain[T, O, K]{parent: w})
}

func (w *withLatestFromCoordinator[T, O, K]) onRequest(n int64) {
	w.mu.Lock()
	w.requested = AddRequest(w.requested, n)
	haveAll := w.haveAll
	mainSub := w.mainSub
	w.mu.Unlock()
	if haveAll && mainSub != nil {
		mainSub.Request(n)
	}
}

func (w *withLatestFromCoordinator[T, O, K]) cancelAll() {
	w.mu.Lock()
	main := w.mainSub
	others := append([]Subscription(nil), w.others...)
	w.mu.Unlock()
	if main != nil {
		main.Cancel()
	}
	for _, s := range others {
		if s != nil {
			s.Cancel()
		}
	}
}

func (w *withLatestFromCoordinator[T, O, K]) onOtherNext(idx int, v O) {
	w.mu.Lock()
	w.has[idx] = true
	w.values[idx] = v
	justCompleted := false
	if !w.haveAll {
		all := true
		for _, h := range w.has {
			if !h {
				all = false
				break
			}
		}
		if all {
			w.haveAll = true
			justCompleted = true
		}
	}
	var backlog int64
	var mainSub Subscription
	if justCompleted {
		backlog = w.requested
		mainSub = w.mainSub
	}
	w.mu.Unlock()
	if justCompleted && backlog > 0 && mainSub != nil {
		mainSub.Request(backlog)
	}
}

func (w *withLatestFromCoordinator[T, O, K]) onOtherError(err error) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	w.mu.Unlock()
	w.cancelAll()
	w.down.OnError(err)
}

func (w *withLatestFromCoordinator[T, O, K]) onMainNext(v T) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	if !w.haveAll {
		mainSub := w.mainSub
		w.mu.Unlock()
		if mainSub != nil {
			mainSub.Request(1)
		}
		return
	}
	requested := w.requested
	if requested != MaxRequest {
		w.requested = ProducedRequest(requested, 1)
	}
	snapshot := make([]O, len(w.values))
	copy(snapshot, w.values)
	w.mu.Unlock()
	w.down.OnNext(w.combiner(v, snapshot))
}

func (w *withLatestFromCoordinator[T, O, K]) onMainError(err error) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	w.mu.Unlock()
	w.cancelAll()
	w.down.OnError(err)
}

func (w *withLatestFromCoordinator[T, O, K]) onMainComplete() {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	w.mu.Unlock()
	w.cancelAll()
	w.down.OnComplete()
}

type withLatestFromMain[T, O, K any] struct {
	parent *withLatestFromCoordinator[T, O, K]
}

func (m *withLatestFromMain[T, O, K]) OnSubscribe(sub Subscription) {
	m.parent.mu.Lock()
	m.parent.mainSub = sub
	haveAll := m.parent.haveAll
	requested := m.parent.requested
	m.parent.mu.Unlock()
	if haveAll {
		if requested > 0 {
			sub.Request(requested)
		}
		return
	}
	sub.Request(1)
}

func (m *withLatestFromMain[T, O, K]) OnNext(v T)        { m.parent.onMainNext(v) }
func (m *withLatestFromMain[T, O, K]) OnError(err error) { m.parent.onMainError(err) }
func (m *withLatestFromMain[T, O, K]) OnComplete()       { m.parent.onMainComplete() }

type withLatestFromOther[T, O, K any] struct {
	parent *withLatestFromCoordinator[T, O, K]
	idx    int
}

func (o *withLatestFromOther[T, O, K]) OnSubscribe(sub Subscription) {
	o.parent.mu.Lock()
	o.parent.others[o.idx] = sub
	o.parent.mu.Unlock()
	sub.Request(MaxRequest)
}

func (o *withLatestFromOther[T, O, K]) OnNext(v O)        { o.parent.onOtherNext(o.idx, v) }
func (o *withLatestFromOther[T, O, K]) OnError(err error) { o.parent.onOtherError(err) }
func (o *withLatestFromOther[T, O, K]) OnComplete()       {}
