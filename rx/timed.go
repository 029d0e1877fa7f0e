package rx

import (
	"sync"
	"time"

	"github.com/7vars/reactor"
	"github.com/7vars/reactor/executor"
)

// Timer emits a single tick (the elapsed count, 0) after delay, then
// completes.
func Timer(worker executor.Worker, delay time.Duration) Publisher[int64] {
	return PublisherFunc[int64](func(down Subscriber[int64]) {
		cancelled := false
		d := worker.ScheduleDelayed(func() {
			if cancelled {
				return
			}
			down.OnNext(0)
			down.OnComplete()
		}, delay)
		down.OnSubscribe(newBaseSubscription(nil, func() {
			cancelled = true
			d.Dispose()
		}))
	})
}

// Interval emits an increasing tick count every period, starting after
// initial. Runs forever until cancelled.
func Interval(worker executor.Worker, initial, period time.Duration) Publisher[int64] {
	return PublisherFunc[int64](func(down Subscriber[int64]) {
		var n int64
		var mu sync.Mutex
		d := worker.SchedulePeriodic(func() {
			mu.Lock()
			v := n
			n++
			mu.Unlock()
			down.OnNext(v)
		}, initial, period)
		down.OnSubscribe(newBaseSubscription(nil, d.Dispose))
	})
}

// Delay schedules every item (and the terminal signal) onto worker after
// duration has elapsed; ordering is preserved because worker is FIFO.
func Delay[T any](upstream Publisher[T], worker executor.Worker, duration time.Duration) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&delaySubscriber[T]{down: down, worker: worker, duration: duration})
	})
}

type delaySubscriber[T any] struct {
	down     Subscriber[T]
	worker   executor.Worker
	duration time.Duration
}

func (d *delaySubscriber[T]) OnSubscribe(sub Subscription) { d.down.OnSubscribe(sub) }
func (d *delaySubscriber[T]) OnNext(v T) {
	d.worker.ScheduleDelayed(func() { d.down.OnNext(v) }, d.duration)
}
func (d *delaySubscriber[T]) OnError(err error) {
	d.worker.ScheduleDelayed(func() { d.down.OnError(err) }, d.duration)
}
func (d *delaySubscriber[T]) OnComplete() {
	d.worker.ScheduleDelayed(func() { d.down.OnComplete() }, d.duration)
}

// DelaySubscription defers subscribing to upstream until duration has
// elapsed.
func DelaySubscription[T any](upstream Publisher[T], worker executor.Worker, duration time.Duration) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		worker.ScheduleDelayed(func() {
			upstream.Subscribe(down)
		}, duration)
	})
}

// Timeout resets a per-item countdown on every OnNext; firing either
// emits a TimeoutError or switches to fallback. firstTimeout, if
// non-zero, governs only the wait for the first item; otherwise
// interItemTimeout governs that wait too.
func Timeout[T any](upstream Publisher[T], worker executor.Worker, firstTimeout, interItemTimeout time.Duration, fallback Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		t := &timeoutSubscriber[T]{down: down, worker: worker, first: firstTimeout, inter: interItemTimeout, fallback: fallback}
		upstream.Subscribe(t)
	})
}

type timeoutSubscriber[T any] struct {
	mu        sync.Mutex
	down      Subscriber[T]
	worker    executor.Worker
	active    Subscription
	requested int64
	first     time.Duration
	inter     time.Duration
	fallback  Publisher[T]
	timer     executor.Disposable
	gen       int
	switched  bool
	done      bool
}

func (t *timeoutSubscriber[T]) OnSubscribe(sub Subscription) {
	t.mu.Lock()
	t.active = sub
	t.mu.Unlock()
	t.down.OnSubscribe(newBaseSubscription(t.onRequest, t.onCancel))
	first := t.first
	if first <= 0 {
		first = t.inter
	}
	t.armTimer(first)
}

func (t *timeoutSubscriber[T]) onRequest(n int64) {
	t.mu.Lock()
	t.requested = AddRequest(t.requested, n)
	active := t.active
	t.mu.Unlock()
	if active != nil {
		active.Request(n)
	}
}

func (t *timeoutSubscriber[T]) onCancel() {
	t.mu.Lock()
	t.done = true
	active := t.active
	t.mu.Unlock()
	t.stopTimer()
	if active != nil {
		active.Cancel()
	}
}

func (t *timeoutSubscriber[T]) stopTimer() {
	t.mu.Lock()
	timer := t.timer
	t.mu.Unlock()
	if timer != nil {
		timer.Dispose()
	}
}

func (t *timeoutSubscriber[T]) armTimer(window time.Duration) {
	if window <= 0 {
		return
	}
	t.mu.Lock()
	t.gen++
	myGen := t.gen
	t.mu.Unlock()
	d := t.worker.ScheduleDelayed(func() { t.fire(myGen) }, window)
	t.mu.Lock()
	t.timer = d
	t.mu.Unlock()
}

func (t *timeoutSubscriber[T]) fire(gen int) {
	t.mu.Lock()
	if t.done || t.switched || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.switched = true
	active := t.active
	t.mu.Unlock()
	if active != nil {
		active.Cancel()
	}
	if t.fallback != nil {
		t.fallback.Subscribe(&timeoutFallbackSubscriber[T]{parent: t})
		return
	}
	t.down.OnError(reactor.NewTimeoutError(t.inter.String()))
}

func (t *timeoutSubscriber[T]) OnNext(v T) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.requested = ProducedRequest(t.requested, 1)
	t.mu.Unlock()
	t.down.OnNext(v)
	t.armTimer(t.inter)
}

// timeoutFallbackSubscriber receives fallback's items on the timeout
// switch; down already got its one OnSubscribe from the original
// upstream, so the fallback's subscription is swapped in as the new
// active handle rather than handed a second OnSubscribe.
type timeoutFallbackSubscriber[T any] struct {
	parent *timeoutSubscriber[T]
}

func (f *timeoutFallbackSubscriber[T]) OnSubscribe(sub Subscription) {
	f.parent.mu.Lock()
	f.parent.active = sub
	requested := f.parent.requested
	f.parent.mu.Unlock()
	if requested > 0 {
		sub.Request(requested)
	}
}
func (f *timeoutFallbackSubscriber[T]) OnNext(v T) {
	f.parent.mu.Lock()
	f.parent.requested = ProducedRequest(f.parent.requested, 1)
	f.parent.mu.Unlock()
	f.parent.down.OnNext(v)
}
func (f *timeoutFallbackSubscriber[T]) OnError(err error) { f.parent.down.OnError(err) }
func (f *timeoutFallbackSubscriber[T]) OnComplete()        { f.parent.down.OnComplete() }

func (t *timeoutSubscriber[T]) OnError(err error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.stopTimer()
	t.down.OnError(err)
}

func (t *timeoutSubscriber[T]) OnComplete() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.stopTimer()
	t.down.OnComplete()
}

// Sample emits the most recent upstream item each time sampler ticks,
// dropping ticks that have nothing new to report.
func Sample[T, S any](upstream Publisher[T], sampler Publisher[S]) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		s := &sampleCoordinator[T, S]{down: down}
		upstream.Subscribe(&sampleMainSubscriber[T, S]{parent: s})
		sampler.Subscribe(&sampleTickSubscriber[T, S]{parent: s})
	})
}

type sampleCoordinator[T, S any] struct {
	mu      sync.Mutex
	down    Subscriber[T]
	mainSub Subscription
	tickSub Subscription
	has     bool
	latest  T
	done    bool
}

func (s *sampleCoordinator[T, S]) onMainNext(v T) {
	s.mu.Lock()
	s.latest = v
	s.has = true
	s.mu.Unlock()
}

func (s *sampleCoordinator[T, S]) onTick() {
	s.mu.Lock()
	if s.done || !s.has {
		s.mu.Unlock()
		return
	}
	v := s.latest
	s.has = false
	s.mu.Unlock()
	s.down.OnNext(v)
}

func (s *sampleCoordinator[T, S]) finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	main, tick := s.mainSub, s.tickSub
	s.mu.Unlock()
	if main != nil {
		main.Cancel()
	}
	if tick != nil {
		tick.Cancel()
	}
	if err != nil {
		s.down.OnError(err)
	} else {
		s.down.OnComplete()
	}
}

type sampleMainSubscriber[T, S any] struct {
	parent *sampleCoordinator[T, S]
}

func (m *sampleMainSubscriber[T, S]) OnSubscribe(sub Subscription) {
	m.parent.mu.Lock()
	m.parent.mainSub = sub
	m.parent.mu.Unlock()
	m.parent.down.OnSubscribe(newBaseSubscription(nil, func() { m.parent.finish(nil) }))
	sub.Request(MaxRequest)
}
func (m *sampleMainSubscriber[T, S]) OnNext(v T)       { m.parent.onMainNext(v) }
func (m *sampleMainSubscriber[T, S]) OnError(err error) { m.parent.finish(err) }
func (m *sampleMainSubscriber[T, S]) OnComplete()        { m.parent.finish(nil) }

type sampleTickSubscriber[T, S any] struct {
	parent *sampleCoordinator[T, S]
}

func (t *sampleTickSubscriber[T, S]) OnSubscribe(sub Subscription) {
	t.parent.mu.Lock()
	t.parent.tickSub = sub
	t.parent.mu.Unlock()
	sub.Request(MaxRequest)
}
func (t *sampleTickSubscriber[T, S]) OnNext(S)          { t.parent.onTick() }
func (t *sampleTickSubscriber[T, S]) OnError(err error) { t.parent.finish(err) }
func (t *sampleTickSubscriber[T, S]) OnComplete()        {}

// Debounce emits an item only after duration has passed with no newer
// item arriving; each new item resets the window.
func Debounce[T any](upstream Publisher[T], worker executor.Worker, duration time.Duration) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&debounceSubscriber[T]{down: down, worker: worker, duration: duration})
	})
}

type debounceSubscriber[T any] struct {
	mu    sync.Mutex
	down  Subscriber[T]
	worker executor.Worker
	duration time.Duration
	timer executor.Disposable
	gen   int
}

func (d *debounceSubscriber[T]) OnSubscribe(sub Subscription) { d.down.OnSubscribe(sub) }

func (d *debounceSubscriber[T]) OnNext(v T) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Dispose()
	}
	d.gen++
	myGen := d.gen
	d.timer = d.worker.ScheduleDelayed(func() {
		d.mu.Lock()
		fire := myGen == d.gen
		d.mu.Unlock()
		if fire {
			d.down.OnNext(v)
		}
	}, d.duration)
	d.mu.Unlock()
}

func (d *debounceSubscriber[T]) OnError(err error) { d.down.OnError(err) }
func (d *debounceSubscriber[T]) OnComplete()        { d.down.OnComplete() }

// Throttle emits the first item in each window, then suppresses
// further items until duration has elapsed.
func Throttle[T any](upstream Publisher[T], worker executor.Worker, duration time.Duration) Publisher[T] {
	return PublisherFunc[T](func(down Subscriber[T]) {
		upstream.Subscribe(&throttleSubscriber[T]{down: down, worker: worker, duration: duration})
	})
}

type throttleSubscriber[T any] struct {
	mu       sync.Mutex
	down     Subscriber[T]
	worker   executor.Worker
	duration time.Duration
	silenced bool
}

func (t *throttleSubscriber[T]) OnSubscribe(sub Subscription) { t.down.OnSubscribe(sub) }

func (t *throttleSubscriber[T]) OnNext(v T) {
	t.mu.Lock()
	if t.silenced {
		t.mu.Unlock()
		return
	}
	t.silenced = true
	t.mu.Unlock()
	t.down.OnNext(v)
	t.worker.ScheduleDelayed(func() {
		t.mu.Lock()
		t.silenced = false
		t.mu.Unlock()
	}, t.duration)
}

func (t *throttleSubscriber[T]) OnError(err error) { t.down.OnError(err) }
func (t *throttleSubscriber[T]) OnComplete()        { t.down.OnComplete() }
