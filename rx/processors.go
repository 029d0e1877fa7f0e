package rx

import (
	"sync"

	"github.com/google/uuid"

	"github.com/7vars/reactor"
)

// DirectProcessor broadcasts every upstream signal to all current
// subscribers with no backpressure state of its own, per §4.5: requests
// are tracked per subscriber, and a subscriber whose request is
// exhausted sees a MissingBackpressureException-equivalent rather than
// a silently dropped item. Grounded on the teacher's pubsub.go
// subscriptions map, generalized from filtered message fan-out to typed
// stream broadcast.
type DirectProcessor[T any] struct {
	mu          sync.Mutex
	subscribers map[int]*directSubscriberSlot[T]
	nextID      int
	terminal    terminalLatch
	upSub       Subscription
}

type directSubscriberSlot[T any] struct {
	down      Subscriber[T]
	requested requestCounter
	cancelled bool
}

// NewDirectProcessor creates an empty DirectProcessor.
func NewDirectProcessor[T any]() *DirectProcessor[T] {
	return &DirectProcessor[T]{subscribers: map[int]*directSubscriberSlot[T]{}}
}

func (p *DirectProcessor[T]) Subscribe(sub Subscriber[T]) {
	if kind, err := p.terminal.get(); kind != terminalNone {
		sub.OnSubscribe(newBaseSubscription(nil, nil))
		if kind == terminalError {
			sub.OnError(err)
		} else {
			sub.OnComplete()
		}
		return
	}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	slot := &directSubscriberSlot[T]{down: sub}
	p.subscribers[id] = slot
	p.mu.Unlock()

	sub.OnSubscribe(newBaseSubscription(
		func(n int64) { slot.requested.add(n) },
		func() {
			p.mu.Lock()
			slot.cancelled = true
			delete(p.subscribers, id)
			p.mu.Unlock()
		},
	))
}

func (p *DirectProcessor[T]) OnSubscribe(sub Subscription) {
	p.mu.Lock()
	p.upSub = sub
	p.mu.Unlock()
	sub.Request(MaxRequest)
}

// CancelUpstream cancels the subscription this processor holds on its
// own upstream, if any. Used by Refcount to tear down the shared source
// once the last downstream subscriber has gone away.
func (p *DirectProcessor[T]) CancelUpstream() {
	p.mu.Lock()
	sub := p.upSub
	p.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (p *DirectProcessor[T]) OnNext(v T) {
	p.mu.Lock()
	slots := make([]*directSubscriberSlot[T], 0, len(p.subscribers))
	for _, s := range p.subscribers {
		slots = append(slots, s)
	}
	p.mu.Unlock()
	for _, s := range slots {
		if s.cancelled {
			continue
		}
		if s.requested.get() <= 0 {
			s.down.OnError(reactor.NewOverflowError(0, 1))
			continue
		}
		s.requested.produced(1)
		s.down.OnNext(v)
	}
}

func (p *DirectProcessor[T]) OnError(err error) {
	if !p.terminal.setError(err) {
		return
	}
	p.mu.Lock()
	slots := make([]*directSubscriberSlot[T], 0, len(p.subscribers))
	for _, s := range p.subscribers {
		slots = append(slots, s)
	}
	p.subscribers = map[int]*directSubscriberSlot[T]{}
	p.mu.Unlock()
	for _, s := range slots {
		s.down.OnError(err)
	}
}

func (p *DirectProcessor[T]) OnComplete() {
	if !p.terminal.setComplete() {
		return
	}
	p.mu.Lock()
	slots := make([]*directSubscriberSlot[T], 0, len(p.subscribers))
	for _, s := range p.subscribers {
		slots = append(slots, s)
	}
	p.subscribers = map[int]*directSubscriberSlot[T]{}
	p.mu.Unlock()
	for _, s := range slots {
		s.down.OnComplete()
	}
}

// Serialize wraps a Subscriber so concurrent OnNext/OnError/OnComplete
// calls from multiple producer threads funnel through a queue-drain and
// downstream sees a strictly serialized signal sequence.
func Serialize[T any](down Subscriber[T]) Subscriber[T] {
	return &serializedSubscriber[T]{down: down, queue: newLinkedQueue[T]()}
}

type serializedSubscriber[T any] struct {
	down     Subscriber[T]
	wip      workInProgress
	queue    *linkedQueue[T]
	terminal terminalLatch
}

func (s *serializedSubscriber[T]) OnSubscribe(sub Subscription) { s.down.OnSubscribe(sub) }

func (s *serializedSubscriber[T]) OnNext(v T) {
	s.queue.Offer(v)
	s.drain()
}

func (s *serializedSubscriber[T]) OnError(err error) {
	s.terminal.setError(err)
	s.drain()
}

func (s *serializedSubscriber[T]) OnComplete() {
	s.terminal.setComplete()
	s.drain()
}

func (s *serializedSubscriber[T]) drain() {
	s.wip.trampoline(func() {
		for {
			v, ok := s.queue.Poll()
			if !ok {
				break
			}
			s.down.OnNext(v)
		}
		if s.queue.IsEmpty() {
			if kind, err := s.terminal.get(); kind != terminalNone {
				if kind == terminalError {
					s.down.OnError(err)
				} else {
					s.down.OnComplete()
				}
			}
		}
	})
}

// Refcount subscribes upstream on the first downstream subscriber and
// cancels upstream when the last downstream cancels. The reference
// count is maintained atomically.
type Refcount[T any] struct {
	// ID identifies this shared-source instance for log correlation;
	// it has no bearing on delivery semantics.
	ID       uuid.UUID
	mu       sync.Mutex
	upstream Publisher[T]
	count    int
	proc     *DirectProcessor[T]
}

// NewRefcount wraps upstream so it is subscribed once for as long as at
// least one downstream subscriber is attached, however many attach. Once
// the count drops to zero upstream is cancelled, and the next subscriber
// subscribes it afresh.
func NewRefcount[T any](upstream Publisher[T]) *Refcount[T] {
	return &Refcount[T]{ID: uuid.New(), upstream: upstream}
}

func (r *Refcount[T]) Subscribe(sub Subscriber[T]) {
	r.mu.Lock()
	r.count++
	first := r.count == 1
	if first {
		r.proc = NewDirectProcessor[T]()
	}
	proc := r.proc
	r.mu.Unlock()

	proc.Subscribe(&refcountSubscriber[T]{parent: r, inner: sub})

	if first {
		r.upstream.Subscribe(proc)
	}
}

func (r *Refcount[T]) release() {
	r.mu.Lock()
	r.count--
	done := r.count == 0
	proc := r.proc
	r.mu.Unlock()
	if done && proc != nil {
		proc.CancelUpstream()
	}
}

type refcountSubscriber[T any] struct {
	parent *Refcount[T]
	inner  Subscriber[T]
}

func (s *refcountSubscriber[T]) OnSubscribe(sub Subscription) {
	s.inner.OnSubscribe(newBaseSubscription(sub.Request, func() {
		sub.Cancel()
		s.parent.release()
	}))
}
func (s *refcountSubscriber[T]) OnNext(v T)       { s.inner.OnNext(v) }
func (s *refcountSubscriber[T]) OnError(err error) { s.inner.OnError(err) }
func (s *refcountSubscriber[T]) OnComplete()        { s.inner.OnComplete() }

// ConnectablePublisher is the publish() half of §4.5: it buffers no
// items itself but defers subscribing upstream until Connect is called.
type ConnectablePublisher[T any] struct {
	ID        uuid.UUID
	mu        sync.Mutex
	upstream  Publisher[T]
	proc      *DirectProcessor[T]
	connected bool
}

// Publish wraps upstream as a ConnectablePublisher.
func Publish[T any](upstream Publisher[T]) *ConnectablePublisher[T] {
	return &ConnectablePublisher[T]{ID: uuid.New(), upstream: upstream, proc: NewDirectProcessor[T]()}
}

func (c *ConnectablePublisher[T]) Subscribe(sub Subscriber[T]) {
	c.proc.Subscribe(sub)
}

// Connect subscribes the wrapped upstream exactly once, regardless of
// how many times Connect is called.
func (c *ConnectablePublisher[T]) Connect() {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = true
	c.mu.Unlock()
	c.upstream.Subscribe(c.proc)
}

// AutoConnect connects the upstream once the k-th subscriber attaches,
// exactly once thereafter.
func AutoConnect[T any](upstream Publisher[T], k int) Publisher[T] {
	cp := Publish(upstream)
	var mu sync.Mutex
	count := 0
	return PublisherFunc[T](func(sub Subscriber[T]) {
		cp.Subscribe(sub)
		mu.Lock()
		count++
		reached := count == k
		mu.Unlock()
		if reached {
			cp.Connect()
		}
	})
}
