package rx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7vars/reactor/executor"
)

type recordingSubscriber[T any] struct {
	items    []T
	err      error
	complete bool
	sub      Subscription
	requestN int64
}

func newRecordingSubscriber[T any](requestN int64) *recordingSubscriber[T] {
	return &recordingSubscriber[T]{requestN: requestN}
}

func (r *recordingSubscriber[T]) OnSubscribe(sub Subscription) {
	r.sub = sub
	if r.requestN != 0 {
		sub.Request(r.requestN)
	}
}

func (r *recordingSubscriber[T]) OnNext(v T)       { r.items = append(r.items, v) }
func (r *recordingSubscriber[T]) OnError(err error) { r.err = err }
func (r *recordingSubscriber[T]) OnComplete()        { r.complete = true }

func TestRangeFilterReduce(t *testing.T) {
	src := Range(1, 10)
	filtered := Filter(src, func(x int) bool { return x%2 == 0 })
	reduced := Reduce[int, int](filtered, 0, func(acc, x int) int { return acc + x })

	rec := newRecordingSubscriber[int](MaxRequest)
	reduced.Subscribe(rec)

	require.Len(t, rec.items, 1)
	assert.Equal(t, 30, rec.items[0])
	assert.True(t, rec.complete)
	assert.Nil(t, rec.err)
}

func TestMapComposition(t *testing.T) {
	inc := func(x int) (int, error) { return x + 1, nil }
	dbl := func(x int) (int, error) { return x * 2, nil }

	composed := Map(Map(Range(1, 3), inc), dbl)
	direct := Map(Range(1, 3), func(x int) (int, error) { return (x + 1) * 2, nil })

	recComposed := newRecordingSubscriber[int](MaxRequest)
	composed.Subscribe(recComposed)

	recDirect := newRecordingSubscriber[int](MaxRequest)
	direct.Subscribe(recDirect)

	assert.Equal(t, recDirect.items, recComposed.items)
}

func TestTakeCancelsUpstream(t *testing.T) {
	taken := Take(Range(1, 100), 3)
	rec := newRecordingSubscriber[int](MaxRequest)
	taken.Subscribe(rec)

	assert.Equal(t, []int{1, 2, 3}, rec.items)
	assert.True(t, rec.complete)
}

func TestTakeZeroCancelsWithoutRequesting(t *testing.T) {
	src := &requestTrackingSource{}
	taken := Take[int](src, 0)
	rec := newRecordingSubscriber[int](MaxRequest)
	taken.Subscribe(rec)

	assert.True(t, rec.complete)
	assert.True(t, src.cancelled)
	assert.Equal(t, int64(0), src.requested)
}

type requestTrackingSource struct {
	requested int64
	cancelled bool
}

func (s *requestTrackingSource) Subscribe(sub Subscriber[int]) {
	sub.OnSubscribe(&trackingSubscription{s})
}

type trackingSubscription struct {
	s *requestTrackingSource
}

func (t *trackingSubscription) Request(n int64) { t.s.requested += n }
func (t *trackingSubscription) Cancel()          { t.s.cancelled = true }

func TestSkipDropsLeadingItems(t *testing.T) {
	out := Skip(Range(1, 5), 2)
	rec := newRecordingSubscriber[int](MaxRequest)
	out.Subscribe(rec)

	assert.Equal(t, []int{3, 4, 5}, rec.items)
}

func TestDistinctSuppressesRepeats(t *testing.T) {
	out := Distinct[int, int](FromSlice([]int{1, 1, 2, 3, 3, 3, 1}), func(x int) int { return x })
	rec := newRecordingSubscriber[int](MaxRequest)
	out.Subscribe(rec)

	assert.Equal(t, []int{1, 2, 3}, rec.items)
}

func TestMergeYieldsPermutationThenComplete(t *testing.T) {
	merged := Merge[int](false, Just(1), Just(2), Just(3))
	rec := newRecordingSubscriber[int](MaxRequest)
	merged.Subscribe(rec)

	assert.ElementsMatch(t, []int{1, 2, 3}, rec.items)
	assert.True(t, rec.complete)
}

func TestConcatPreservesOrder(t *testing.T) {
	c := Concat[int](false, Just(1, 2), Just(3, 4))
	rec := newRecordingSubscriber[int](MaxRequest)
	c.Subscribe(rec)

	assert.Equal(t, []int{1, 2, 3, 4}, rec.items)
	assert.True(t, rec.complete)
}

func TestConcatWithEmptyIsIdentity(t *testing.T) {
	xs := []int{1, 2, 3}
	left := Concat[int](false, FromSlice(xs), Empty[int]())
	right := Concat[int](false, Empty[int](), FromSlice(xs))

	recLeft := newRecordingSubscriber[int](MaxRequest)
	left.Subscribe(recLeft)
	recRight := newRecordingSubscriber[int](MaxRequest)
	right.Subscribe(recRight)

	assert.Equal(t, xs, recLeft.items)
	assert.Equal(t, xs, recRight.items)
}

func TestZipTerminatesOnShortestSource(t *testing.T) {
	z := Zip[int](func(vs []int) int { return vs[0] + vs[1] }, 4, Range(1, 5), Range(10, 3))
	rec := newRecordingSubscriber[int](MaxRequest)
	z.Subscribe(rec)

	assert.Equal(t, []int{11, 13, 15}, rec.items)
	assert.True(t, rec.complete)
}

func TestOnBackpressureDropDropsWithNoDownstreamRequest(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}
	var dropped int
	bp := OnBackpressure(FromSlice(items), OverflowDrop, func(int) { dropped++ })
	rec := newRecordingSubscriber[int](0)
	bp.Subscribe(rec)

	assert.Equal(t, 0, len(rec.items))
	assert.GreaterOrEqual(t, dropped, 1)
	assert.True(t, rec.complete)
}

func TestSwitchMapDiscardsStaleInnerItems(t *testing.T) {
	innerA := make(chan int, 1)
	innerB := make(chan int, 1)

	outer := &manualSource{}
	sm := SwitchMap[string, int](outer, func(s string) Publisher[int] {
		if s == "A" {
			return PublisherFunc[int](func(down Subscriber[int]) {
				down.OnSubscribe(newBaseSubscription(nil, nil))
				go func() {
					v := <-innerA
					down.OnNext(v)
				}()
			})
		}
		return PublisherFunc[int](func(down Subscriber[int]) {
			down.OnSubscribe(newBaseSubscription(nil, nil))
			go func() {
				v := <-innerB
				down.OnNext(v)
			}()
		})
	})

	rec := newRecordingSubscriber[int](MaxRequest)
	sm.Subscribe(rec)

	outer.emit("A")
	outer.emit("B")
	innerB <- 99
	innerA <- 1 // arrives after switch; must be discarded

	// best-effort synchronization for the goroutines above
	for i := 0; i < 1000 && len(rec.items) == 0; i++ {
	}

	assert.NotContains(t, rec.items, 1)
}

type manualSource struct {
	down Subscriber[string]
}

func (m *manualSource) Subscribe(sub Subscriber[string]) {
	m.down = sub
	sub.OnSubscribe(newBaseSubscription(nil, nil))
}

func (m *manualSource) emit(v string) { m.down.OnNext(v) }

func TestAmbPicksFirstSignal(t *testing.T) {
	slow := PublisherFunc[int](func(down Subscriber[int]) {
		down.OnSubscribe(newBaseSubscription(nil, nil))
	})
	fast := Just(42)

	a := Amb[int](slow, fast)
	rec := newRecordingSubscriber[int](MaxRequest)
	a.Subscribe(rec)

	assert.Equal(t, []int{42}, rec.items)
	assert.True(t, rec.complete)
}

func TestTimeoutSwitchesToFallbackAfterStall(t *testing.T) {
	worker := executor.NewSingle().Worker()
	defer worker.Dispose()

	src := &manualIntSource{}
	timeout := Timeout[int](src, worker, 0, 30*time.Millisecond, Just(99))

	rec := newRecordingSubscriber[int](MaxRequest)
	timeout.Subscribe(rec)

	src.emit(1) // then stall: no more items, interItemTimeout fires

	deadline := time.Now().Add(2 * time.Second)
	for !rec.complete && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, []int{1, 99}, rec.items)
	assert.True(t, rec.complete)
	assert.Nil(t, rec.err)
}

func TestTimeoutWithoutFallbackEmitsTimeoutError(t *testing.T) {
	worker := executor.NewSingle().Worker()
	defer worker.Dispose()

	src := &manualIntSource{}
	timeout := Timeout[int](src, worker, 0, 20*time.Millisecond, nil)

	rec := newRecordingSubscriber[int](MaxRequest)
	timeout.Subscribe(rec)

	deadline := time.Now().Add(2 * time.Second)
	for rec.err == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	require.Error(t, rec.err)
	assert.False(t, rec.complete)
}

func TestWithLatestFromDropsUntilOthersEmit(t *testing.T) {
	main := &manualIntSource{}
	other := &manualIntSource{}

	w := WithLatestFrom[int, int, int](main, func(m int, others []int) int {
		return m + others[0]
	}, other)

	rec := newRecordingSubscriber[int](MaxRequest)
	w.Subscribe(rec)

	main.emit(1) // dropped: other hasn't emitted yet
	other.emit(10)
	main.emit(2) // 2+10

	assert.Equal(t, []int{12}, rec.items)
}

type manualIntSource struct {
	down Subscriber[int]
}

func (m *manualIntSource) Subscribe(sub Subscriber[int]) {
	m.down = sub
	sub.OnSubscribe(newBaseSubscription(nil, nil))
}

func (m *manualIntSource) emit(v int) { m.down.OnNext(v) }

func TestDirectProcessorBroadcasts(t *testing.T) {
	p := NewDirectProcessor[int]()
	rec1 := newRecordingSubscriber[int](MaxRequest)
	rec2 := newRecordingSubscriber[int](MaxRequest)
	p.Subscribe(rec1)
	p.Subscribe(rec2)

	p.OnNext(1)
	p.OnNext(2)
	p.OnComplete()

	assert.Equal(t, []int{1, 2}, rec1.items)
	assert.Equal(t, []int{1, 2}, rec2.items)
	assert.True(t, rec1.complete)
	assert.True(t, rec2.complete)
}

func TestRequestCounterSaturatesAtMax(t *testing.T) {
	var r requestCounter
	r.add(MaxRequest)
	r.add(5)
	assert.Equal(t, MaxRequest, r.get())
}

func TestBlockingIterableFusesOverSlice(t *testing.T) {
	it := NewBlockingIterable[int](FromSlice([]int{1, 2, 3}))
	ctx := context.Background()

	var got []int
	for {
		v, ok := it.Next(ctx)
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.NoError(t, it.Err())

	// fused path must tolerate repeated calls past exhaustion without
	// blocking on the done channel a second time.
	_, ok := it.Next(ctx)
	assert.False(t, ok)
}

func TestBlockingIterableFallsBackWithoutFusion(t *testing.T) {
	src := &manualIntSource{}
	it := NewBlockingIterable[int](src)
	ctx := context.Background()

	go func() {
		src.emit(7)
		src.down.OnComplete()
	}()

	v, ok := it.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = it.Next(ctx)
	assert.False(t, ok)
	assert.NoError(t, it.Err())
}

func TestRingQueueOfferPollRoundTrip(t *testing.T) {
	q := newRingQueue[int](4)
	assert.True(t, q.IsEmpty())
	assert.True(t, q.Offer(1))
	assert.True(t, q.Offer(2))
	assert.True(t, q.Offer(3))
	assert.True(t, q.Offer(4))
	assert.False(t, q.Offer(5)) // full (capacity rounded to power of two)

	v, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, q.Offer(5))
}
