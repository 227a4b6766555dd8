// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle_test

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock/wallclocktest"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/stretchr/testify/require"
)

type (
	recorder[T any] struct {
		mu    sync.Mutex
		snaps []throttle.Snapshot[T]
	}

	countingObserver struct {
		ingested, evicted, invisible, ticksDropped, emitted int
	}
)

func (r *recorder[T]) Consume(s throttle.Snapshot[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder[T]) all() []throttle.Snapshot[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]throttle.Snapshot[T](nil), r.snaps...)
}

func (o *countingObserver) Ingested()         { o.ingested++ }
func (o *countingObserver) Evicted()          { o.evicted++ }
func (o *countingObserver) DroppedInvisible() { o.invisible++ }
func (o *countingObserver) TickDropped()      { o.ticksDropped++ }
func (o *countingObserver) Emitted(int)       { o.emitted++ }

func payloads[T any](s throttle.Snapshot[T]) []T {
	out := make([]T, len(s.Events))
	for i, e := range s.Events {
		out[i] = e.Payload
	}
	return out
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func newAggregator(
	t *testing.T,
	opt ...throttle.Option,
) (*throttle.Aggregator[int], *recorder[int], *wallclocktest.Manual) {
	clock := wallclocktest.NewManual(time.Time{}).Install(t)
	rec := &recorder[int]{}
	agg, err := throttle.New[int](rec, opt...)
	require.NoError(t, err)
	t.Cleanup(agg.Close)
	return agg, rec, clock
}

func TestQueueRetainsMostRecentEvents(t *testing.T) {
	agg, rec, clock := newAggregator(t,
		throttle.WithCapacity(20),
		throttle.WithDelay(50*time.Millisecond),
	)

	for i := 1; i <= 25; i++ {
		agg.OnEvent(i)
	}
	require.Equal(t, 20, agg.Len())

	clock.Advance(50 * time.Millisecond)

	snaps := rec.all()
	require.Len(t, snaps, 1)
	require.Equal(t, seq(6, 25), payloads(snaps[0]))
	require.Equal(t, uint64(25), snaps[0].Ingested)
	require.Equal(t, uint64(5), snaps[0].Evicted)
	require.Equal(t, uint64(1), snaps[0].Seq)
	require.Zero(t, agg.Len())
}

func TestPeriodicBatchArmsOnce(t *testing.T) {
	agg, rec, clock := newAggregator(t,
		throttle.WithStrategy(throttle.PeriodicBatch),
		throttle.WithDelay(300*time.Millisecond),
	)

	agg.OnEvent(1)
	require.Equal(t, throttle.Pending, agg.State())

	clock.Advance(100 * time.Millisecond)
	agg.OnEvent(2)
	require.Equal(t, 1, clock.Pending())

	// Fires 300ms after the first event, not the second.
	clock.Advance(200 * time.Millisecond)

	snaps := rec.all()
	require.Len(t, snaps, 1)
	require.Equal(t, []int{1, 2}, payloads(snaps[0]))
	require.Equal(t, wallclocktest.Epoch.Add(300*time.Millisecond),
		snaps[0].EmittedAt)
	require.Equal(t, throttle.Idle, agg.State())
}

func TestDebounceCoalescesBursts(t *testing.T) {
	agg, rec, clock := newAggregator(t,
		throttle.WithStrategy(throttle.Debounce),
		throttle.WithDelay(300*time.Millisecond),
	)

	agg.OnEvent(1)
	clock.Advance(100 * time.Millisecond)
	agg.OnEvent(2)
	require.Equal(t, 1, clock.Pending())

	clock.Advance(299 * time.Millisecond)
	require.Empty(t, rec.all())

	clock.Advance(time.Millisecond)
	snaps := rec.all()
	require.Len(t, snaps, 1)
	require.Equal(t, []int{1, 2}, payloads(snaps[0]))
	require.Equal(t, wallclocktest.Epoch.Add(400*time.Millisecond),
		snaps[0].EmittedAt)

	clock.Advance(time.Second)
	require.Len(t, rec.all(), 1)
}

func TestAtMostOneSnapshotPerInterval(t *testing.T) {
	agg, rec, clock := newAggregator(t,
		throttle.WithDelay(50*time.Millisecond),
	)

	for i := 0; i < 100; i++ {
		agg.OnEvent(i)
		clock.Advance(5 * time.Millisecond)
	}
	clock.Advance(time.Second)

	snaps := rec.all()
	require.Len(t, snaps, 10)
	for i := 1; i < len(snaps); i++ {
		require.Equal(t, snaps[i-1].Seq+1, snaps[i].Seq)
		require.GreaterOrEqual(t,
			snaps[i].EmittedAt.Sub(snaps[i-1].EmittedAt),
			50*time.Millisecond,
		)
	}
}

func TestInvisibleTickDeliversNothing(t *testing.T) {
	agg, rec, clock := newAggregator(t,
		throttle.WithDelay(50*time.Millisecond),
	)

	agg.OnEvent(1)
	agg.OnEvent(2)
	agg.SetVisibility(false)
	clock.Advance(time.Second)

	require.Empty(t, rec.all())
	require.Equal(t, throttle.Idle, agg.State())
	require.Zero(t, clock.Pending())

	// Queued data is not flushed by going invisible.
	require.Equal(t, 2, agg.Len())

	// The missed tick is not re-armed; the next visible event arms afresh.
	agg.SetVisibility(true)
	clock.Advance(time.Second)
	require.Empty(t, rec.all())

	agg.OnEvent(3)
	clock.Advance(50 * time.Millisecond)
	snaps := rec.all()
	require.Len(t, snaps, 1)
	require.Equal(t, []int{1, 2, 3}, payloads(snaps[0]))
}

func TestInvisibleEventsAreIgnored(t *testing.T) {
	obs := &countingObserver{}
	agg, rec, clock := newAggregator(t,
		throttle.WithHidden(true),
		throttle.WithObserver(obs),
	)
	require.False(t, agg.Visible())

	for i := 0; i < 5; i++ {
		agg.OnEvent(i)
	}
	clock.Advance(time.Second)

	require.Zero(t, agg.Len())
	require.Equal(t, throttle.Idle, agg.State())
	require.Empty(t, rec.all())
	require.Equal(t, 5, obs.invisible)
	require.Zero(t, obs.ingested)
}

func TestResetThenTicksDeliverNothing(t *testing.T) {
	agg, rec, clock := newAggregator(t)

	agg.OnEvent(1)
	agg.OnEvent(2)
	agg.Reset()

	require.Zero(t, agg.Len())
	require.Equal(t, throttle.Idle, agg.State())
	require.Zero(t, clock.Pending())

	for i := 0; i < 3; i++ {
		agg.Tick()
	}
	clock.Advance(time.Second)
	require.Empty(t, rec.all())
}

func TestVisibilityTogglingStaysBounded(t *testing.T) {
	clock := wallclocktest.NewManual(time.Time{}).Install(t)

	var agg *throttle.Aggregator[int]
	var hiddenDeliveries int
	consumer := throttle.ConsumerFunc[int](func(s throttle.Snapshot[int]) {
		if !agg.Visible() {
			hiddenDeliveries++
		}
		require.LessOrEqual(t, s.Len(), 8)
	})

	agg, err := throttle.New[int](consumer,
		throttle.WithCapacity(8),
		throttle.WithDelay(10*time.Millisecond),
	)
	require.NoError(t, err)
	defer agg.Close()

	for i := 0; i < 500; i++ {
		agg.SetVisibility(i%3 != 0)
		agg.OnEvent(i)
		agg.OnEvent(i)
		agg.SetVisibility(i%2 == 0)
		require.LessOrEqual(t, agg.Len(), 8)
		clock.Advance(3 * time.Millisecond)
	}

	require.Zero(t, hiddenDeliveries)
}

func TestRetainKeepsRollingSeries(t *testing.T) {
	agg, rec, clock := newAggregator(t,
		throttle.WithCapacity(10),
		throttle.WithRetain(3),
		throttle.WithDelay(50*time.Millisecond),
	)

	for i := 1; i <= 5; i++ {
		agg.OnEvent(i)
	}
	clock.Advance(50 * time.Millisecond)
	require.Equal(t, 3, agg.Len())

	agg.OnEvent(6)
	agg.OnEvent(7)
	clock.Advance(50 * time.Millisecond)

	snaps := rec.all()
	require.Len(t, snaps, 2)
	require.Equal(t, seq(1, 5), payloads(snaps[0]))
	require.Equal(t, seq(3, 7), payloads(snaps[1]))
	require.Equal(t, uint64(2), snaps[1].Ingested)
}

func TestManualTick(t *testing.T) {
	agg, rec, clock := newAggregator(t, throttle.WithDelay(time.Hour))

	agg.OnEvent(1)
	agg.Tick()

	snaps := rec.all()
	require.Len(t, snaps, 1)
	require.Equal(t, []int{1}, payloads(snaps[0]))

	// The cancelled timer must not deliver a second time.
	clock.Advance(2 * time.Hour)
	require.Len(t, rec.all(), 1)
}

func TestConsumerMayReenter(t *testing.T) {
	clock := wallclocktest.NewManual(time.Time{}).Install(t)

	var agg *throttle.Aggregator[int]
	var got [][]int
	consumer := throttle.ConsumerFunc[int](func(s throttle.Snapshot[int]) {
		got = append(got, payloads(s))
		if len(got) == 1 {
			agg.OnEvent(100)
		}
	})

	agg, err := throttle.New[int](consumer,
		throttle.WithDelay(10*time.Millisecond),
	)
	require.NoError(t, err)
	defer agg.Close()

	agg.OnEvent(1)
	clock.Advance(10 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)

	require.Equal(t, [][]int{{1}, {100}}, got)
}

func TestCloseDisposes(t *testing.T) {
	agg, rec, clock := newAggregator(t)

	agg.OnEvent(1)
	agg.Close()
	agg.OnEvent(2)
	agg.SetVisibility(false)
	agg.Tick()
	clock.Advance(time.Second)

	require.Empty(t, rec.all())
	require.Zero(t, agg.Len())
	require.True(t, agg.Visible())
}

func TestObserverAccounting(t *testing.T) {
	obs := &countingObserver{}
	agg, _, clock := newAggregator(t,
		throttle.WithCapacity(2),
		throttle.WithObserver(obs),
	)

	agg.OnEvent(1)
	agg.OnEvent(2)
	agg.OnEvent(3)
	clock.Advance(time.Second)

	agg.OnEvent(4)
	agg.SetVisibility(false)
	agg.OnEvent(5)
	clock.Advance(time.Second)

	require.Equal(t, 4, obs.ingested)
	require.Equal(t, 1, obs.evicted)
	require.Equal(t, 1, obs.invisible)
	require.Equal(t, 1, obs.ticksDropped)
	require.Equal(t, 1, obs.emitted)
}

func TestReportVisibility(t *testing.T) {
	agg, _, _ := newAggregator(t)

	for _, tc := range []struct {
		fraction float64
		visible  bool
	}{
		{0.05, false},
		{0.1, true},
		{0, false},
		{1, true},
		{math.NaN(), false},
		{2, true},
		{-1, false},
	} {
		agg.ReportVisibility(tc.fraction)
		require.Equal(t, tc.visible, agg.Visible(), tc.fraction)
	}

	require.True(t, throttle.IsVisible(0, 0))
	require.False(t, throttle.IsVisible(0.4, 0.5))
}

func TestConfigurationErrors(t *testing.T) {
	consumer := throttle.ConsumerFunc[int](func(throttle.Snapshot[int]) {})

	for _, tc := range []struct {
		name     string
		opts     []throttle.Option
		property string
	}{
		{"ZeroCapacity", []throttle.Option{throttle.WithCapacity(0)}, "Capacity"},
		{"NegativeCapacity", []throttle.Option{throttle.WithCapacity(-1)}, "Capacity"},
		{"ZeroDelay", []throttle.Option{throttle.WithDelay(0)}, "Delay"},
		{"UnknownStrategy", []throttle.Option{throttle.WithStrategy(9)}, "Strategy"},
		{"NegativeRetain", []throttle.Option{throttle.WithRetain(-1)}, "Retain"},
		{"RetainOverCapacity", []throttle.Option{
			throttle.WithCapacity(5),
			throttle.WithRetain(6),
		}, "Retain"},
		{"ThresholdTooLarge", []throttle.Option{
			throttle.WithVisibilityThreshold(1.5),
		}, "VisibilityThreshold"},
		{"ThresholdNaN", []throttle.Option{
			throttle.WithVisibilityThreshold(math.NaN()),
		}, "VisibilityThreshold"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := throttle.New[int](consumer, tc.opts...)

			var cfgErr *throttle.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			require.Equal(t, tc.property, cfgErr.PropertyName)
		})
	}

	_, err := throttle.New[int](nil)
	require.Error(t, err)
}

func TestOptionsStructApplies(t *testing.T) {
	consumer := throttle.ConsumerFunc[int](func(throttle.Snapshot[int]) {})

	agg, err := throttle.New[int](consumer, &throttle.Options{
		Capacity:            7,
		Delay:               time.Second,
		Strategy:            throttle.Debounce,
		VisibilityThreshold: 0.5,
	}, throttle.WithRetain(2))
	require.NoError(t, err)
	defer agg.Close()

	opts := agg.Options()
	require.Equal(t, 7, opts.Capacity)
	require.Equal(t, time.Second, opts.Delay)
	require.Equal(t, throttle.Debounce, opts.Strategy)
	require.Equal(t, 2, opts.Retain)
	require.Equal(t, 0.5, opts.VisibilityThreshold)
}

func TestRealClockConcurrentProducers(t *testing.T) {
	var mu sync.Mutex
	var snaps []throttle.Snapshot[int]
	consumer := throttle.ConsumerFunc[int](func(s throttle.Snapshot[int]) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	})

	agg, err := throttle.New[int](consumer,
		throttle.WithCapacity(50),
		throttle.WithDelay(5*time.Millisecond),
	)
	require.NoError(t, err)
	defer agg.Close()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				agg.OnEvent(i)
				if i%10 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var total uint64
		for _, s := range snaps {
			total += s.Ingested
		}
		return total == 400
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, s := range snaps {
		require.Equal(t, uint64(i+1), s.Seq)
		require.LessOrEqual(t, s.Len(), 50)
	}
}
