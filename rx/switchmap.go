package rx

import "sync"

// SwitchMap subscribes to the inner publisher mapped from the latest
// outer item only; any prior inner is cancelled and its late items are
// discarded via the index-tagging scheme of §4.4. Downstream demand is
// tracked on the coordinator and forwarded to whichever inner is
// currently active, the same curSub-swap arbiter Concat uses to move
// requested from one upstream Subscription to the next.
func SwitchMap[T, K any](upstream Publisher[T], f func(T) Publisher[K]) Publisher[K] {
	return PublisherFunc[K](func(down Subscriber[K]) {
		sm := &switchMapCoordinator[T, K]{down: down, f: f}
		upstream.Subscribe(sm)
	})
}

type switchMapCoordinator[T, K any] struct {
	mu        sync.Mutex
	down      Subscriber[K]
	f         func(T) Publisher[K]
	outerSub  Subscription
	outerDone bool
	innerSub  Subscription
	requested int64
	curIndex  int
	done      bool
}

func (s *switchMapCoordinator[T, K]) OnSubscribe(sub Subscription) {
	s.outerSub = sub
	s.down.OnSubscribe(newBaseSubscription(s.onRequest, func() {
		sub.Cancel()
		s.cancelInner()
	}))
	sub.Request(MaxRequest)
}

func (s *switchMapCoordinator[T, K]) onRequest(n int64) {
	s.mu.Lock()
	s.requested = AddRequest(s.requested, n)
	inner := s.innerSub
	s.mu.Unlock()
	if inner != nil {
		inner.Request(n)
	}
}

func (s *switchMapCoordinator[T, K]) cancelInner() {
	s.mu.Lock()
	inner := s.innerSub
	s.mu.Unlock()
	if inner != nil {
		inner.Cancel()
	}
}

func (s *switchMapCoordinator[T, K]) OnNext(v T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	prev := s.innerSub
	s.curIndex++
	idx := s.curIndex
	s.innerSub = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	s.f(v).Subscribe(&switchMapInner[T, K]{parent: s, idx: idx})
}

func (s *switchMapCoordinator[T, K]) OnError(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.cancelInner()
	s.down.OnError(err)
}

func (s *switchMapCoordinator[T, K]) OnComplete() {
	s.mu.Lock()
	s.outerDone = true
	hasInner := s.innerSub != nil
	s.mu.Unlock()
	if !hasInner {
		s.finish()
	}
}

func (s *switchMapCoordinator[T, K]) finish() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.down.OnComplete()
}

type switchMapInner[T, K any] struct {
	parent *switchMapCoordinator[T, K]
	idx    int
}

func (i *switchMapInner[T, K]) OnSubscribe(sub Subscription) {
	i.parent.mu.Lock()
	current := i.idx == i.parent.curIndex
	var backlog int64
	if current {
		i.parent.innerSub = sub
		backlog = i.parent.requested
	}
	i.parent.mu.Unlock()
	if !current {
		sub.Cancel()
		return
	}
	if backlog > 0 {
		sub.Request(backlog)
	}
}

func (i *switchMapInner[T, K]) OnNext(v K) {
	i.parent.mu.Lock()
	current := i.idx == i.parent.curIndex && !i.parent.done
	if current {
		i.parent.requested = ProducedRequest(i.parent.requested, 1)
	}
	i.parent.mu.Unlock()
	if current {
		i.parent.down.OnNext(v)
	}
}

func (i *switchMapInner[T, K]) OnError(err error) {
	i.parent.mu.Lock()
	current := i.idx == i.parent.curIndex
	i.parent.mu.Unlock()
	if current {
		i.parent.OnError(err)
	}
}

func (i *switchMapInner[T, K]) OnComplete() {
	i.parent.mu.Lock()
	current := i.idx == i.parent.curIndex
	if current {
		i.parent.innerSub = nil
	}
	outerDone := i.parent.outerDone
	i.parent.mu.Unlock()
	if current && outerDone {
		i.parent.finish()
	}
}
