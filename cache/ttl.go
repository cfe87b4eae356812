// Package cache provides the freshness and request-coalescing layer that sits
// between API callers and the booking provider: TTL-bounded entries, one
// in-flight fetch per key, and a day-bucketed store that rolls over at local
// midnight.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Policy decides what a cache instance does with an entry older than its TTL.
// Each instance has exactly one policy for its whole lifetime.
type Policy int

const (
	// Strict never exposes an expired entry. A caller either gets a value
	// younger than the TTL or nothing.
	Strict Policy = iota
	// Lazy exposes expired entries as Stale so the caller can serve them
	// immediately while a refresh runs. A Lazy value may be as old as the
	// TTL plus the duration of the refresh in flight.
	Lazy
)

func (p Policy) String() string {
	if p == Lazy {
		return "lazy"
	}
	return "strict"
}

// State is the outcome of a Lookup.
type State int

const (
	Missing State = iota
	Fresh
	Stale
)

// Entry is a cached value with the instant it was fetched. Entries are
// replaced wholesale and never mutated in place.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
	ExpiresAt time.Time
}

type options struct {
	policy Policy
	now    func() time.Time
}

// Option configures a TTLCache or DayBuckets.
type Option func(*options)

// WithPolicy sets the staleness policy. The default is Strict.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{policy: Strict, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TTLCache stores one Entry per key and judges freshness against an
// injected clock. Physical eviction is left to ttlcache: strict caches drop
// entries once they can no longer be served, lazy caches keep them until
// invalidated or cleared.
type TTLCache[K comparable, V any] struct {
	ttl    time.Duration
	policy Policy
	now    func() time.Time
	items  *ttlcache.Cache[K, Entry[V]]
}

// NewTTLCache creates a cache whose entries are fresh for ttl after they
// were fetched. Call Close to stop the background eviction loop.
func NewTTLCache[K comparable, V any](ttl time.Duration, opts ...Option) *TTLCache[K, V] {
	o := buildOptions(opts)
	evictAfter := ttl
	if o.policy == Lazy || ttl <= 0 {
		evictAfter = ttlcache.NoTTL
	}
	items := ttlcache.New[K, Entry[V]](
		ttlcache.WithTTL[K, Entry[V]](evictAfter),
		ttlcache.WithDisableTouchOnHit[K, Entry[V]](),
	)
	go items.Start()
	return &TTLCache[K, V]{
		ttl:    ttl,
		policy: o.policy,
		now:    o.now,
		items:  items,
	}
}

// TTL returns the time-to-live the cache was built with.
func (c *TTLCache[K, V]) TTL() time.Duration { return c.ttl }

// Policy returns the staleness policy of the cache.
func (c *TTLCache[K, V]) Policy() Policy { return c.policy }

// Get returns the value for key only while it is younger than the TTL,
// regardless of policy.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	e, state := c.lookup(key)
	if state != Fresh {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Lookup reports the entry for key and its state. Stale is only ever
// returned by Lazy caches; a Strict cache reports an expired entry as
// Missing.
func (c *TTLCache[K, V]) Lookup(key K) (Entry[V], State, error) {
	e, state := c.lookup(key)
	return e, state, nil
}

func (c *TTLCache[K, V]) lookup(key K) (Entry[V], State) {
	item := c.items.Get(key)
	if item == nil {
		return Entry[V]{}, Missing
	}
	e := item.Value()
	if c.now().Sub(e.FetchedAt) < c.ttl {
		return e, Fresh
	}
	if c.policy == Lazy {
		return e, Stale
	}
	return Entry[V]{}, Missing
}

// Put overwrites the entry for key unconditionally.
func (c *TTLCache[K, V]) Put(key K, value V, fetchedAt time.Time) error {
	c.items.Set(key, Entry[V]{
		Value:     value,
		FetchedAt: fetchedAt,
		ExpiresAt: fetchedAt.Add(c.ttl),
	}, ttlcache.DefaultTTL)
	return nil
}

// Invalidate removes the entry for key.
func (c *TTLCache[K, V]) Invalidate(key K) error {
	c.items.Delete(key)
	return nil
}

// Clear removes every entry.
func (c *TTLCache[K, V]) Clear() {
	c.items.DeleteAll()
}

// Len returns the number of stored entries, fresh or not.
func (c *TTLCache[K, V]) Len() int {
	return c.items.Len()
}

// Close stops the eviction loop.
func (c *TTLCache[K, V]) Close() {
	c.items.Stop()
}
