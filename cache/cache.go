// Package cache provides a bounded, time-limited, single-flight cache for
// expensive materializations.
//
// Entries expire a fixed TTL after they were created, regardless of access.
// When the cache is full, inserting a new entry first drops expired entries
// and then evicts the least recently accessed one. Concurrent misses for the
// same key share one in-flight load, and failed loads are never stored.
// Invalidating a key while its load is in flight discards that load's result.
//
//	c, err := cache.New[*dataset.Table](cache.DefaultPolicy())
//	table, err := c.GetOrLoad(key, func() (*dataset.Table, error) {
//		return ldr.Load(ctx, id, query)
//	})
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// EvictReason describes why an entry left the cache.
type EvictReason string

const (
	ReasonCapacity    EvictReason = "capacity"
	ReasonExpired     EvictReason = "expired"
	ReasonInvalidated EvictReason = "invalidated"
)

// EvictCallback is invoked after an entry has been removed. It runs outside
// the cache lock and may call back into the cache.
type EvictCallback[V any] func(key string, value V, reason EvictReason)

// EntryInfo is a snapshot of an entry's bookkeeping.
type EntryInfo struct {
	Key        string    `json:"key"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

type entry[V any] struct {
	key        string
	value      V
	createdAt  time.Time
	accessedAt time.Time
}

// flight marks a running load. stale is set under the cache lock when the
// key is invalidated before the load stores its value.
type flight struct {
	stale bool
}

type eviction[V any] struct {
	key    string
	value  V
	reason EvictReason
}

// Cache is a TTL and max-entries bounded LRU cache. The zero value is not
// usable; construct with New. All methods are safe for concurrent use.
type Cache[V any] struct {
	policy  Policy
	now     func() time.Time
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]

	group singleflight.Group

	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently accessed
	flights map[string]*flight
}

// New creates a cache governed by policy.
func New[V any](policy Policy, opts ...Option[V]) (*Cache[V], error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)

	c := &Cache[V]{
		policy:  policy,
		now:     o.now,
		stats:   NewStatistics(),
		evictFn: o.evictCallback,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		flights: make(map[string]*flight),
	}

	if o.metricsReg != nil {
		m, err := newCacheMetrics(o.metricsReg, o.component)
		if err != nil {
			return nil, fmt.Errorf("cache metrics: %w", err)
		}
		c.metrics = m
	}

	return c, nil
}

// Policy returns the policy the cache was created with.
func (c *Cache[V]) Policy() Policy {
	return c.policy
}

// GetOrLoad returns the cached value for key, calling load on a miss or
// after expiry. Concurrent callers missing on the same key wait for a single
// call to load and receive its result. An error from load is returned
// unchanged and nothing is stored.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// A flight that finished between our miss and this call may
		// already have stored the value.
		c.mu.Lock()
		v, ok := c.lookup(key, false)
		f := &flight{}
		if !ok {
			c.flights[key] = f
		}
		c.mu.Unlock()
		if ok {
			return v, nil
		}

		c.stats.load()
		start := c.now()
		v, err := load()
		if c.metrics != nil {
			c.metrics.observeLoad(c.now().Sub(start), err)
		}
		if err != nil {
			c.stats.loadError()
			c.mu.Lock()
			c.land(key, f)
			c.mu.Unlock()
			return nil, err
		}

		c.insert(key, v, f)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	v, _ := result.(V)
	return v, nil
}

// Get returns the value for key if present and not expired, marking it as
// most recently accessed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	v, ok := c.lookup(key, true)
	evicted := c.drainExpired(key, ok)
	c.mu.Unlock()

	c.notify(evicted)
	return v, ok
}

// Info returns the bookkeeping of a live entry without touching it.
func (c *Cache[V]) Info(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return EntryInfo{}, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e, c.now()) {
		return EntryInfo{}, false
	}
	return EntryInfo{Key: e.key, CreatedAt: e.createdAt, AccessedAt: e.accessedAt}, true
}

// Invalidate removes key. It reports whether an entry was present. A load
// of key already in flight still answers its waiters but is not stored, and
// later callers start a fresh load.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	var evicted []eviction[V]
	if ok {
		evicted = append(evicted, c.remove(el, ReasonInvalidated))
	}
	grounded := c.ground(func(k string) bool { return k == key })
	c.mu.Unlock()

	c.forget(grounded)
	c.notify(evicted)
	return ok
}

// InvalidateFunc removes every entry whose key satisfies match and returns
// the number removed. Matching loads in flight are discarded as with
// Invalidate.
func (c *Cache[V]) InvalidateFunc(match func(key string) bool) int {
	c.mu.Lock()
	var evicted []eviction[V]
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*entry[V]).key) {
			evicted = append(evicted, c.remove(el, ReasonInvalidated))
		}
		el = next
	}
	grounded := c.ground(match)
	c.mu.Unlock()

	c.forget(grounded)
	c.notify(evicted)
	return len(evicted)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.InvalidateFunc(func(string) bool { return true })
}

// Purge removes expired entries and returns the number removed.
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	evicted := c.purgeExpired(c.now())
	c.mu.Unlock()

	c.notify(evicted)
	return len(evicted)
}

// Run purges expired entries every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Purge()
		}
	}
}

// Keys returns the keys of live entries, most recently accessed first.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[V])
		if !c.expired(e, now) {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Len returns the number of stored entries, including expired entries not
// yet purged.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache statistics.
func (c *Cache[V]) Stats() StatsSummary {
	return c.stats.Summary()
}

// lookup must be called with c.mu held. Expired entries are reported as
// misses and left for the caller to drain.
func (c *Cache[V]) lookup(key string, record bool) (V, bool) {
	var zero V

	el, ok := c.items[key]
	if !ok {
		if record {
			c.recordMiss()
		}
		return zero, false
	}

	e := el.Value.(*entry[V])
	now := c.now()
	if c.expired(e, now) {
		if record {
			c.recordMiss()
		}
		return zero, false
	}

	if now.After(e.accessedAt) {
		e.accessedAt = now
	}
	c.order.MoveToFront(el)
	if record {
		c.stats.hit()
		if c.metrics != nil {
			c.metrics.hits.Inc()
		}
	}
	return e.value, true
}

// drainExpired removes key when the lookup that just ran found it expired.
func (c *Cache[V]) drainExpired(key string, hit bool) []eviction[V] {
	if hit {
		return nil
	}
	el, ok := c.items[key]
	if !ok {
		return nil
	}
	return []eviction[V]{c.remove(el, ReasonExpired)}
}

// ground must be called with c.mu held. It marks the flights of matching
// keys stale and returns those keys.
func (c *Cache[V]) ground(match func(key string) bool) []string {
	var keys []string
	for key, f := range c.flights {
		if match(key) {
			f.stale = true
			delete(c.flights, key)
			keys = append(keys, key)
		}
	}
	return keys
}

// forget detaches grounded flights from the single-flight group so new
// callers do not join them.
func (c *Cache[V]) forget(keys []string) {
	for _, key := range keys {
		c.group.Forget(key)
	}
}

// land must be called with c.mu held. It ends flight f for key and reports
// whether its result may be stored.
func (c *Cache[V]) land(key string, f *flight) bool {
	if f == nil {
		return true
	}
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	return !f.stale
}

// insert stores v under key unless flight f was invalidated. A nil f always
// stores.
func (c *Cache[V]) insert(key string, v V, f *flight) {
	c.mu.Lock()
	if !c.land(key, f) {
		c.mu.Unlock()
		return
	}

	now := c.now()
	var evicted []eviction[V]

	if el, ok := c.items[key]; ok {
		evicted = append(evicted, c.remove(el, ReasonExpired))
	}

	if c.policy.MaxEntries > 0 && len(c.items) >= c.policy.MaxEntries {
		evicted = append(evicted, c.purgeExpired(now)...)
	}
	for c.policy.MaxEntries > 0 && len(c.items) >= c.policy.MaxEntries {
		back := c.order.Back()
		if back == nil {
			panic(fmt.Sprintf("cache: %d indexed entries but empty recency list", len(c.items)))
		}
		evicted = append(evicted, c.remove(back, ReasonCapacity))
	}

	e := &entry[V]{key: key, value: v, createdAt: now, accessedAt: now}
	c.items[key] = c.order.PushFront(e)
	c.checkConsistency()

	c.stats.set()
	c.stats.updateSize(len(c.items))
	if c.metrics != nil {
		c.metrics.sets.Inc()
		c.metrics.size.Set(float64(len(c.items)))
	}

	c.mu.Unlock()
	c.notify(evicted)
}

// remove must be called with c.mu held.
func (c *Cache[V]) remove(el *list.Element, reason EvictReason) eviction[V] {
	e := el.Value.(*entry[V])
	if c.items[e.key] != el {
		panic(fmt.Sprintf("cache: recency list entry %q is not indexed", e.key))
	}

	c.order.Remove(el)
	delete(c.items, e.key)
	c.checkConsistency()

	c.stats.evict(reason)
	c.stats.updateSize(len(c.items))
	if c.metrics != nil {
		c.metrics.evictions.WithLabelValues(string(reason)).Inc()
		c.metrics.size.Set(float64(len(c.items)))
	}

	return eviction[V]{key: e.key, value: e.value, reason: reason}
}

func (c *Cache[V]) purgeExpired(now time.Time) []eviction[V] {
	if c.policy.TTL <= 0 {
		return nil
	}
	var evicted []eviction[V]
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[V]), now) {
			evicted = append(evicted, c.remove(el, ReasonExpired))
		}
		el = prev
	}
	return evicted
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return c.policy.TTL > 0 && now.Sub(e.createdAt) >= c.policy.TTL
}

func (c *Cache[V]) recordMiss() {
	c.stats.miss()
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
}

func (c *Cache[V]) checkConsistency() {
	if len(c.items) != c.order.Len() {
		panic(fmt.Sprintf("cache: index holds %d entries, recency list holds %d", len(c.items), c.order.Len()))
	}
}

func (c *Cache[V]) notify(evicted []eviction[V]) {
	if c.evictFn == nil {
		return
	}
	for _, ev := range evicted {
		c.evictFn(ev.key, ev.value, ev.reason)
	}
}
