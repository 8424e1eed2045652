package cache_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/datashelf/cache"
	"github.com/tailored-agentic-units/datashelf/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type table struct {
	name string
}

func counting(calls *atomic.Int32, name string) func() (*table, error) {
	return func() (*table, error) {
		calls.Add(1)
		return &table{name: name}, nil
	}
}

func TestGetOrLoad_SingleFlight(t *testing.T) {
	c, err := cache.New[*table](cache.DefaultPolicy())
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (*table, error) {
		calls.Add(1)
		<-release
		return &table{name: "transfers"}, nil
	}

	const n = 32
	results := make([]*table, n)
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	for i := range n {
		go func() {
			defer done.Done()
			started.Done()
			v, err := c.GetOrLoad("transfers", load)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int32(1), calls.Load(), "loader should run exactly once")
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, c.Len())
}

func TestGetOrLoad_TTLRoundTrip(t *testing.T) {
	clock := newFakeClock()
	ttl := 30 * time.Minute
	c, err := cache.New[*table](cache.Policy{TTL: ttl, MaxEntries: 5}, cache.WithClock[*table](clock.Now))
	require.NoError(t, err)

	var calls atomic.Int32
	first, err := c.GetOrLoad("games", counting(&calls, "games"))
	require.NoError(t, err)
	created := clock.Now()

	clock.Advance(ttl - time.Nanosecond)
	hit, err := c.GetOrLoad("games", counting(&calls, "games"))
	require.NoError(t, err)
	assert.Same(t, first, hit)
	assert.Equal(t, int32(1), calls.Load())

	info, ok := c.Info("games")
	require.True(t, ok)
	assert.Equal(t, created, info.CreatedAt, "a hit must not refresh the TTL")
	assert.Equal(t, clock.Now(), info.AccessedAt)

	clock.Advance(time.Nanosecond)
	reloaded, err := c.GetOrLoad("games", counting(&calls, "games"))
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, int32(2), calls.Load())

	info, ok = c.Info("games")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), info.CreatedAt)
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestGetOrLoad_EvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newFakeClock()

	var evicted []string
	c, err := cache.New[*table](
		cache.Policy{TTL: time.Hour, MaxEntries: 3},
		cache.WithClock[*table](clock.Now),
		cache.WithEvictionCallback(func(key string, _ *table, reason cache.EvictReason) {
			assert.Equal(t, cache.ReasonCapacity, reason)
			evicted = append(evicted, key)
		}),
	)
	require.NoError(t, err)

	var calls atomic.Int32
	for _, key := range []string{"a", "b", "c"} {
		_, err := c.GetOrLoad(key, counting(&calls, key))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	_, ok := c.Get("a")
	require.True(t, ok)
	clock.Advance(time.Second)

	_, err = c.GetOrLoad("d", counting(&calls, "d"))
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())
	assert.Equal(t, int32(4), calls.Load())

	_, ok = c.Info("b")
	assert.False(t, ok)
}

func TestGetOrLoad_FullCacheDropsExpiredFirst(t *testing.T) {
	clock := newFakeClock()
	c, err := cache.New[*table](cache.Policy{TTL: time.Minute, MaxEntries: 2}, cache.WithClock[*table](clock.Now))
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.GetOrLoad("old", counting(&calls, "old"))
	require.NoError(t, err)
	clock.Advance(50 * time.Second)
	_, err = c.GetOrLoad("fresh", counting(&calls, "fresh"))
	require.NoError(t, err)
	_, ok := c.Get("old")
	require.True(t, ok)

	clock.Advance(20 * time.Second)
	_, err = c.GetOrLoad("new", counting(&calls, "new"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"fresh", "new"}, c.Keys())
	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Evictions)
	assert.Equal(t, int64(1), stats.Expirations)
}

func TestGetOrLoad_FailureIsNotCached(t *testing.T) {
	c, err := cache.New[*table](cache.DefaultPolicy())
	require.NoError(t, err)

	errUnavailable := errors.New("source unavailable")
	_, err = c.GetOrLoad("clubs", func() (*table, error) {
		return nil, errUnavailable
	})
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 0, c.Len())

	_, ok := c.Info("clubs")
	assert.False(t, ok)

	var calls atomic.Int32
	v, err := c.GetOrLoad("clubs", counting(&calls, "clubs"))
	require.NoError(t, err)
	assert.Equal(t, "clubs", v.name)
	assert.Equal(t, int32(1), calls.Load())

	again, err := c.GetOrLoad("clubs", counting(&calls, "clubs"))
	require.NoError(t, err)
	assert.Same(t, v, again)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Loads)
	assert.Equal(t, int64(1), stats.LoadErrors)
}

func TestGetOrLoad_ErrorSharedByWaiters(t *testing.T) {
	c, err := cache.New[*table](cache.DefaultPolicy())
	require.NoError(t, err)

	errBoom := errors.New("boom")
	release := make(chan struct{})
	var calls atomic.Int32
	load := func() (*table, error) {
		calls.Add(1)
		<-release
		return nil, errBoom
	}

	const n = 8
	errs := make([]error, n)
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	for i := range n {
		go func() {
			defer done.Done()
			started.Done()
			_, errs[i] = c.GetOrLoad("players", load)
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, 0, c.Len())
	assert.LessOrEqual(t, calls.Load(), int32(n))
}

func TestCache_AccessedAtNotBeforeCreatedAt(t *testing.T) {
	clock := newFakeClock()
	c, err := cache.New[*table](cache.DefaultPolicy(), cache.WithClock[*table](clock.Now))
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.GetOrLoad("k", counting(&calls, "k"))
	require.NoError(t, err)

	clock.Advance(-time.Minute)
	_, ok := c.Get("k")
	require.True(t, ok)

	info, ok := c.Info("k")
	require.True(t, ok)
	assert.False(t, info.AccessedAt.Before(info.CreatedAt))
}

func TestCache_InvalidateFunc(t *testing.T) {
	var reasons []cache.EvictReason
	c, err := cache.New[*table](cache.Policy{MaxEntries: 10},
		cache.WithEvictionCallback(func(_ string, _ *table, reason cache.EvictReason) {
			reasons = append(reasons, reason)
		}),
	)
	require.NoError(t, err)

	var calls atomic.Int32
	for _, key := range []string{"games", "games?x", "clubs"} {
		_, err := c.GetOrLoad(key, counting(&calls, key))
		require.NoError(t, err)
	}

	n := c.InvalidateFunc(func(key string) bool { return key == "games" || key == "games?x" })
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"clubs"}, c.Keys())
	assert.Equal(t, []cache.EvictReason{cache.ReasonInvalidated, cache.ReasonInvalidated}, reasons)

	assert.True(t, c.Invalidate("clubs"))
	assert.False(t, c.Invalidate("clubs"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_Purge(t *testing.T) {
	clock := newFakeClock()
	c, err := cache.New[*table](cache.Policy{TTL: time.Minute}, cache.WithClock[*table](clock.Now))
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.GetOrLoad("a", counting(&calls, "a"))
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = c.GetOrLoad("b", counting(&calls, "b"))
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"b"}, c.Keys(), "expired entries are hidden before purge")

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Clear(t *testing.T) {
	c, err := cache.New[*table](cache.DefaultPolicy())
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.GetOrLoad("a", counting(&calls, "a"))
	require.NoError(t, err)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Stats().Size)
	assert.Equal(t, int64(1), c.Stats().MaxSize)
}

func TestCache_Stats(t *testing.T) {
	c, err := cache.New[*table](cache.DefaultPolicy())
	require.NoError(t, err)

	var calls atomic.Int32
	for range 4 {
		_, err := c.GetOrLoad("a", counting(&calls, "a"))
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.75, stats.HitRatio, 1e-9)
}

func TestNew_InvalidPolicy(t *testing.T) {
	_, err := cache.New[*table](cache.Policy{TTL: -time.Second})
	assert.ErrorIs(t, err, cache.ErrInvalidPolicy)
}

func TestNew_MetricsComponentConflict(t *testing.T) {
	reg := observability.NewMetricsRegistry()

	_, err := cache.New[*table](cache.DefaultPolicy(), cache.WithMetrics[*table](reg, "primary"))
	require.NoError(t, err)

	_, err = cache.New[*table](cache.DefaultPolicy(), cache.WithMetrics[*table](reg, "primary"))
	assert.ErrorIs(t, err, observability.ErrDuplicateMetric)

	_, err = cache.New[*table](cache.DefaultPolicy(), cache.WithMetrics[*table](reg, "reference"))
	assert.NoError(t, err)
}

func TestNew_MetricsExported(t *testing.T) {
	reg := observability.NewMetricsRegistry()
	c, err := cache.New[*table](cache.DefaultPolicy(), cache.WithMetrics[*table](reg, "primary"))
	require.NoError(t, err)

	var calls atomic.Int32
	_, err = c.GetOrLoad("a", counting(&calls, "a"))
	require.NoError(t, err)
	_, err = c.GetOrLoad("a", counting(&calls, "a"))
	require.NoError(t, err)

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values["datashelf_cache_hits_total"])
	assert.Equal(t, 1.0, values["datashelf_cache_misses_total"])
	assert.Equal(t, 1.0, values["datashelf_cache_loads_total"])
	assert.Equal(t, 1.0, values["datashelf_cache_size"])
}

func TestGetOrLoad_InvalidateDuringLoadDiscardsResult(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(c *cache.Cache[*table])
	}{
		{name: "key", invalidate: func(c *cache.Cache[*table]) { c.Invalidate("games") }},
		{name: "predicate", invalidate: func(c *cache.Cache[*table]) {
			c.InvalidateFunc(func(key string) bool { return key == "games" })
		}},
		{name: "clear", invalidate: func(c *cache.Cache[*table]) { c.Clear() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := cache.New[*table](cache.DefaultPolicy())
			require.NoError(t, err)

			started := make(chan struct{})
			release := make(chan struct{})
			result := make(chan *table, 1)
			go func() {
				v, _ := c.GetOrLoad("games", func() (*table, error) {
					close(started)
					<-release
					return &table{name: "before change"}, nil
				})
				result <- v
			}()

			<-started
			tt.invalidate(c)
			close(release)

			old := <-result
			assert.Equal(t, "before change", old.name)

			_, ok := c.Get("games")
			assert.False(t, ok, "result of an invalidated load was stored")
			assert.Equal(t, 0, c.Len())

			var calls atomic.Int32
			fresh, err := c.GetOrLoad("games", counting(&calls, "after change"))
			require.NoError(t, err)
			assert.Equal(t, "after change", fresh.name)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestGetOrLoad_CallersAfterInvalidateStartFreshLoad(t *testing.T) {
	c, err := cache.New[*table](cache.DefaultPolicy())
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrLoad("games", func() (*table, error) {
			close(started)
			<-release
			return &table{name: "stale"}, nil
		})
	}()

	<-started
	c.Invalidate("games")

	var calls atomic.Int32
	fresh, err := c.GetOrLoad("games", counting(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", fresh.name)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	<-done

	v, ok := c.Get("games")
	require.True(t, ok)
	assert.Same(t, fresh, v)
}
