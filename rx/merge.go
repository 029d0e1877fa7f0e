package rx

import (
	"sync"

	"github.com/7vars/reactor"
)

// Merge subscribes to every source concurrently, stages each source's
// items in its own bufferSize-capacity queue, and drains them to
// downstream round-robin across non-empty queues, bounded by a single
// downstream request counter — the per-inner SPSC queue plus shared
// drain loop §4.4 specifies for Merge. Errors terminate the coordinator
// immediately unless delayErrors was requested.
func Merge[T any](delayErrors bool, sources ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		m := newMergeCoordinator(down, delayErrors)
		m.start(sources)
	})
}

// FlatMap maps each upstream item to an inner Publisher and merges the
// inners, bounded by maxConcurrency active inner subscriptions at once.
// The outer source is itself pulled at a rate bounded by free
// concurrency slots rather than all at once.
func FlatMap[T, K any](upstream Publisher[T], maxConcurrency int, f func(T) Publisher[K]) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		fm := newFlatMapCoordinator(down, maxConcurrency, f)
		upstream.Subscribe(fm)
	})
}

type mergeCoordinator[T any] struct {
	mu          sync.Mutex
	down        Subscriber[T]
	delayErrors bool
	requested   requestCounter
	wip         workInProgress
	emitted     int64
	nextPoll    int
	active      int
	cancelled   bool
	finished    bool
	inners      []*mergeInner[T]
	errs        []error
}

func newMergeCoordinator[T any](down Subscriber[T], delayErrors bool) *mergeCoordinator[T] {
	return &mergeCoordinator[T]{down: down, delayErrors: delayErrors}
}

func (m *mergeCoordinator[T]) start(sources []Publisher[T]) {
	bufferSize := reactor.DefaultBufferSize()
	m.mu.Lock()
	m.active = len(sources)
	m.inners = make([]*mergeInner[T], len(sources))
	for idx := range sources {
		m.inners[idx] = &mergeInner[T]{parent: m, queue: newRingQueue[T](bufferSize), prefetch: int64(bufferSize)}
	}
	m.mu.Unlock()
	m.down.OnSubscribe(newBaseSubscription(m.onRequest, m.onCancel))
	if len(sources) == 0 {
		if done, _ := m.tryFinish(); done {
			m.down.OnComplete()
		}
		return
	}
	for idx, src := range sources {
		src.Subscribe(m.inners[idx])
	}
}

func (m *mergeCoordinator[T]) onRequest(n int64) {
	m.requested.add(n)
	m.drain()
}

func (m *mergeCoordinator[T]) onCancel() {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		return
	}
	m.cancelled = true
	inners := append([]*mergeInner[T](nil), m.inners...)
	m.mu.Unlock()
	for _, in := range inners {
		in.cancel()
	}
	m.drain()
}

func (m *mergeCoordinator[T]) drain() {
	m.wip.trampoline(m.drainLoop)
}

func (m *mergeCoordinator[T]) drainLoop() {
	for {
		m.mu.Lock()
		cancelled := m.cancelled
		m.mu.Unlock()
		if cancelled {
			m.clearQueues()
			return
		}

		r := m.requested.get()
		if r != MaxRequest && m.emitted >= r {
			return
		}
		inner, v, ok := m.pollNext()
		if !ok {
			break
		}
		m.down.OnNext(v)
		m.emitted++
		if r != MaxRequest {
			m.requested.produced(1)
		}
		inner.replenish()
	}

	if done, errs := m.tryFinish(); done {
		if len(errs) > 0 {
			m.down.OnError(reactor.NewCompositeError(errs...))
		} else {
			m.down.OnComplete()
		}
	}
}

func (m *mergeCoordinator[T]) pollNext() (*mergeInner[T], T, bool) {
	m.mu.Lock()
	n := len(m.inners)
	start := m.nextPoll
	inners := m.inners
	m.mu.Unlock()
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if v, ok := inners[idx].queue.Poll(); ok {
			m.mu.Lock()
			m.nextPoll = (idx + 1) % n
			m.mu.Unlock()
			return inners[idx], v, true
		}
	}
	var zero T
	return nil, zero, false
}

func (m *mergeCoordinator[T]) allQueuesEmptyLocked() bool {
	for _, in := range m.inners {
		if !in.queue.IsEmpty() {
			return false
		}
	}
	return true
}

func (m *mergeCoordinator[T]) tryFinish() (bool, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished || m.active > 0 || !m.allQueuesEmptyLocked() {
		return false, nil
	}
	m.finished = true
	return true, m.errs
}

func (m *mergeCoordinator[T]) clearQueues() {
	m.mu.Lock()
	inners := append([]*mergeInner[T](nil), m.inners...)
	m.mu.Unlock()
	for _, in := range inners {
		in.queue.Clear()
	}
}

func (m *mergeCoordinator[T]) failOverflow() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	m.cancelled = true
	inners := append([]*mergeInner[T](nil), m.inners...)
	m.mu.Unlock()
	for _, in := range inners {
		in.cancel()
	}
	m.down.OnError(reactor.NewOverflowError(m.requested.get(), m.emitted+1))
}

func (m *mergeCoordinator[T]) onInnerError(err error) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	if !m.delayErrors {
		m.finished = true
		m.cancelled = true
		inners := append([]*mergeInner[T](nil), m.inners...)
		m.mu.Unlock()
		for _, in := range inners {
			in.cancel()
		}
		m.down.OnError(err)
		return
	}
	m.errs = append(m.errs, err)
	m.active--
	m.mu.Unlock()
	m.drain()
}

func (m *mergeCoordinator[T]) onInnerComplete() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.active--
	m.mu.Unlock()
	m.drain()
}

type mergeInner[T any] struct {
	parent   *mergeCoordinator[T]
	queue    *ringQueue[T]
	sub      Subscription
	prefetch int64
}

func (i *mergeInner[T]) OnSubscribe(sub Subscription) {
	i.sub = sub
	i.parent.mu.Lock()
	cancelled := i.parent.cancelled
	i.parent.mu.Unlock()
	if cancelled {
		sub.Cancel()
		return
	}
	sub.Request(i.prefetch)
}

func (i *mergeInner[T]) OnNext(v T) {
	if !i.queue.Offer(v) {
		i.parent.failOverflow()
		return
	}
	i.parent.drain()
}

func (i *mergeInner[T]) OnError(err error) { i.parent.onInnerError(err) }
func (i *mergeInner[T]) OnComplete()        { i.parent.onInnerComplete() }

func (i *mergeInner[T]) replenish() {
	if i.sub != nil {
		i.sub.Request(1)
	}
}

func (i *mergeInner[T]) cancel() {
	if i.sub != nil {
		i.sub.Cancel()
	}
}

// flatMapCoordinator is Merge generalized with an outer source mapped
// per item into inner publishers, gated at maxConcurrency actives.
type flatMapCoordinator[T, K any] struct {
	mu             sync.Mutex
	down           Subscriber[K]
	f              func(T) Publisher[K]
	maxConcurrency int
	requested      requestCounter
	wip            workInProgress
	emitted        int64
	nextPoll       int
	outerSub       Subscription
	outerDone      bool
	cancelled      bool
	finished       bool
	inners         []*flatMapInner[T, K]
	pending        []T
}

func newFlatMapCoordinator[T, K any](down Subscriber[K], maxConcurrency int, f func(T) Publisher[K]) *flatMapCoordinator[T, K] {
	if maxConcurrency <= 0 {
		maxConcurrency = 1 << 30
	}
	return &flatMapCoordinator[T, K]{down: down, f: f, maxConcurrency: maxConcurrency}
}

func (fm *flatMapCoordinator[T, K]) OnSubscribe(sub Subscription) {
	fm.outerSub = sub
	fm.down.OnSubscribe(newBaseSubscription(fm.onRequest, fm.onCancel))
	initial := int64(fm.maxConcurrency)
	if fm.maxConcurrency >= 1<<30 {
		initial = MaxRequest
	}
	sub.Request(initial)
}

func (fm *flatMapCoordinator[T, K]) onRequest(n int64) {
	fm.requested.add(n)
	fm.drain()
}

func (fm *flatMapCoordinator[T, K]) onCancel() {
	fm.mu.Lock()
	if fm.cancelled {
		fm.mu.Unlock()
		return
	}
	fm.cancelled = true
	outerSub := fm.outerSub
	inners := append([]*flatMapInner[T, K](nil), fm.inners...)
	fm.mu.Unlock()
	if outerSub != nil {
		outerSub.Cancel()
	}
	for _, in := range inners {
		in.cancel()
	}
	fm.drain()
}

func (fm *flatMapCoordinator[T, K]) OnNext(v T) {
	fm.mu.Lock()
	if len(fm.inners) >= fm.maxConcurrency {
		fm.pending = append(fm.pending, v)
		fm.mu.Unlock()
		return
	}
	fm.mu.Unlock()
	fm.subscribeInner(v)
}

func (fm *flatMapCoordinator[T, K]) subscribeInner(v T) {
	bufferSize := reactor.DefaultBufferSize()
	inner := &flatMapInner[T, K]{parent: fm, queue: newRingQueue[K](bufferSize), prefetch: int64(bufferSize)}
	fm.mu.Lock()
	fm.inners = append(fm.inners, inner)
	fm.mu.Unlock()
	fm.f(v).Subscribe(inner)
}

func (fm *flatMapCoordinator[T, K]) OnError(err error) {
	fm.mu.Lock()
	if fm.finished {
		fm.mu.Unlock()
		return
	}
	fm.finished = true
	fm.cancelled = true
	inners := append([]*flatMapInner[T, K](nil), fm.inners...)
	outerSub := fm.outerSub
	fm.mu.Unlock()
	if outerSub != nil {
		outerSub.Cancel()
	}
	for _, in := range inners {
		in.cancel()
	}
	fm.down.OnError(err)
}

func (fm *flatMapCoordinator[T, K]) OnComplete() {
	fm.mu.Lock()
	fm.outerDone = true
	fm.mu.Unlock()
	fm.drain()
}

func (fm *flatMapCoordinator[T, K]) removeInnerLocked(inner *flatMapInner[T, K]) {
	for idx, in := range fm.inners {
		if in == inner {
			fm.inners = append(fm.inners[:idx], fm.inners[idx+1:]...)
			return
		}
	}
}

func (fm *flatMapCoordinator[T, K]) innerFinished(inner *flatMapInner[T, K]) {
	fm.mu.Lock()
	fm.removeInnerLocked(inner)
	var next T
	hasNext := false
	if len(fm.pending) > 0 {
		next = fm.pending[0]
		fm.pending = fm.pending[1:]
		hasNext = true
	}
	outerSub := fm.outerSub
	fm.mu.Unlock()

	if hasNext {
		fm.subscribeInner(next)
		return
	}
	if outerSub != nil {
		outerSub.Request(1)
	}
	fm.drain()
}

func (fm *flatMapCoordinator[T, K]) drain() {
	fm.wip.trampoline(fm.drainLoop)
}

func (fm *flatMapCoordinator[T, K]) drainLoop() {
	for {
		fm.mu.Lock()
		cancelled := fm.cancelled
		fm.mu.Unlock()
		if cancelled {
			fm.clearQueues()
			return
		}

		r := fm.requested.get()
		if r != MaxRequest && fm.emitted >= r {
			return
		}
		inner, v, ok := fm.pollNext()
		if !ok {
			break
		}
		fm.down.OnNext(v)
		fm.emitted++
		if r != MaxRequest {
			fm.requested.produced(1)
		}
		inner.replenish()
	}

	if fm.tryFinish() {
		fm.down.OnComplete()
	}
}

func (fm *flatMapCoordinator[T, K]) pollNext() (*flatMapInner[T, K], K, bool) {
	fm.mu.Lock()
	inners := fm.inners
	n := len(inners)
	start := fm.nextPoll
	fm.mu.Unlock()
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if v, ok := inners[idx].queue.Poll(); ok {
			fm.mu.Lock()
			fm.nextPoll = (idx + 1) % n
			fm.mu.Unlock()
			return inners[idx], v, true
		}
	}
	var zero K
	return nil, zero, false
}

func (fm *flatMapCoordinator[T, K]) tryFinish() bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.finished || !fm.outerDone || len(fm.inners) > 0 || len(fm.pending) > 0 {
		return false
	}
	fm.finished = true
	return true
}

func (fm *flatMapCoordinator[T, K]) clearQueues() {
	fm.mu.Lock()
	inners := append([]*flatMapInner[T, K](nil), fm.inners...)
	fm.mu.Unlock()
	for _, in := range inners {
		in.queue.Clear()
	}
}

type flatMapInner[T, K any] struct {
	parent   *flatMapCoordinator[T, K]
	queue    *ringQueue[K]
	sub      Subscription
	prefetch int64
}

func (i *flatMapInner[T, K]) OnSubscribe(sub Subscription) {
	i.sub = sub
	i.parent.mu.Lock()
	cancelled := i.parent.cancelled
	i.parent.mu.Unlock()
	if cancelled {
		sub.Cancel()
		return
	}
	sub.Request(i.prefetch)
}

func (i *flatMapInner[T, K]) OnNext(v K) {
	if !i.queue.Offer(v) {
		i.parent.OnError(reactor.NewOverflowError(i.parent.requested.get(), i.parent.emitted+1))
		return
	}
	i.parent.drain()
}

func (i *flatMapInner[T, K]) OnError(err error) { i.parent.OnError(err) }
func (i *flatMapInner[T, K]) OnComplete()        { i.parent.innerFinished(i) }

func (i *flatMapInner[T, K]) replenish() {
	if i.sub != nil {
		i.sub.Request(1)
	}
}

func (i *flatMapInner[T, K]) cancel() {
	if i.sub != nil {
		i.sub.Cancel()
	}
}
