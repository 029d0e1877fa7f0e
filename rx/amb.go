package rx

import "sync"

// Amb subscribes to every source with a minimal probe request, just
// enough to learn which delivers the first signal; whichever wins has
// every other subscription cancelled and is handed the downstream's
// accumulated demand, per the curSub-swap arbiter Concat uses. After a
// winner is chosen the coordinator is a pure pass-through.
func Amb[T any](sources ...Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		a := &ambCoordinator[T]{down: down, subs: make([]Subscription, len(sources))}
		a.down.OnSubscribe(newBaseSubscription(a.onRequest, a.cancelAll))
		for idx, src := range sources {
			src.Subscribe(&ambInner[T]{parent: a, idx: idx})
		}
	})
}

type ambCoordinator[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	subs      []Subscription
	winnerSub Subscription
	winner    int
	decided   bool
	requested int64
}

func (a *ambCoordinator[T]) onRequest(n int64) {
	a.mu.Lock()
	a.requested = AddRequest(a.requested, n)
	winnerSub := a.winnerSub
	a.mu.Unlock()
	if winnerSub != nil {
		winnerSub.Request(n)
	}
}

func (a *ambCoordinator[T]) cancelAll() {
	a.mu.Lock()
	subs := append([]Subscription(nil), a.subs...)
	a.mu.Unlock()
	for _, s := range subs {
		if s != nil {
			s.Cancel()
		}
	}
}

// decide gates idx's signal: the first caller wins and is handed the
// demand downstream has accumulated so far (0 for every later caller,
// since that backlog was already forwarded once).
func (a *ambCoordinator[T]) decide(idx int) (won bool, backlog int64) {
	a.mu.Lock()
	if a.decided {
		won = idx == a.winner
		a.mu.Unlock()
		return won, 0
	}
	a.decided = true
	a.winner = idx
	a.winnerSub = a.subs[idx]
	backlog = a.requested
	for i, s := range a.subs {
		if i != idx && s != nil {
			s.Cancel()
		}
	}
	a.mu.Unlock()
	return true, backlog
}

func (a *ambCoordinator[T]) producedOne() {
	a.mu.Lock()
	a.requested = ProducedRequest(a.requested, 1)
	a.mu.Unlock()
}

type ambInner[T any] struct {
	parent *ambCoordinator[T]
	idx    int
}

func (i *ambInner[T]) OnSubscribe(sub Subscription) {
	i.parent.mu.Lock()
	i.parent.subs[i.idx] = sub
	i.parent.mu.Unlock()
	sub.Request(1)
}

func (i *ambInner[T]) OnNext(v T) {
	won, backlog := i.parent.decide(i.idx)
	if !won {
		return
	}
	i.parent.producedOne()
	i.parent.down.OnNext(v)
	if backlog > 0 {
		i.parent.winnerSub.Request(backlog)
	}
}

func (i *ambInner[T]) OnError(err error) {
	won, _ := i.parent.decide(i.idx)
	if won {
		i.parent.down.OnError(err)
	}
}

func (i *ambInner[T]) OnComplete() {
	won, _ := i.parent.decide(i.idx)
	if won {
		i.parent.down.OnComplete()
	}
}
