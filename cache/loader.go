package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Store is the storage side of a Loader. TTLCache and DayBuckets satisfy it.
type Store[K comparable, V any] interface {
	Lookup(key K) (Entry[V], State, error)
	Put(key K, value V, fetchedAt time.Time) error
	Invalidate(key K) error
	TTL() time.Duration
}

// FetchFunc produces a fresh value for key. It is only ever called through
// a Coalescer, so at most one call per key is in flight.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Loader is a get-or-refresh pipeline: fresh entries are served from the
// store, misses are fetched once through the coalescer and stored before the
// waiters are released. A failed fetch stores nothing and invalidates
// nothing.
//
// With a Lazy store, a stale entry is returned immediately and a refresh is
// started in the background.
type Loader[K comparable, V any] struct {
	name   string
	store  Store[K, V]
	flight *Coalescer[K, Entry[V]]
	fetch  FetchFunc[K, V]
	now    func() time.Time
}

// NewLoader wires store, coalescer and fetch together. name is only used in
// log output.
func NewLoader[K comparable, V any](name string, store Store[K, V], fetch FetchFunc[K, V], opts ...Option) *Loader[K, V] {
	o := buildOptions(opts)
	return &Loader[K, V]{
		name:   name,
		store:  store,
		flight: NewCoalescer[K, Entry[V]](nil),
		fetch:  fetch,
		now:    o.now,
	}
}

// Get returns the entry for key, fetching it when the store has nothing
// servable.
func (l *Loader[K, V]) Get(ctx context.Context, key K) (Entry[V], error) {
	e, state, err := l.store.Lookup(key)
	if err != nil {
		return Entry[V]{}, err
	}
	switch state {
	case Fresh:
		return e, nil
	case Stale:
		l.refreshInBackground(ctx, key)
		return e, nil
	}
	return l.Refresh(ctx, key)
}

// Refresh fetches key through the coalescer even if a stale entry exists.
// A fresh entry stored by a fetch that settled just before this call is
// returned without fetching again.
func (l *Loader[K, V]) Refresh(ctx context.Context, key K) (Entry[V], error) {
	return l.flight.Do(ctx, key, func(ctx context.Context) (Entry[V], error) {
		if e, state, err := l.store.Lookup(key); err == nil && state == Fresh {
			return e, nil
		}

		start := l.now()
		v, err := l.fetch(ctx, key)
		if err != nil {
			slog.Warn("cache refresh failed", "cache", l.name, "key", key, "error", err)
			return Entry[V]{}, err
		}
		fetchedAt := l.now()
		e := Entry[V]{
			Value:     v,
			FetchedAt: fetchedAt,
			ExpiresAt: fetchedAt.Add(l.store.TTL()),
		}
		if err := l.store.Put(key, v, fetchedAt); err != nil {
			if errors.Is(err, ErrDayPassed) {
				// The key was valid when the fetch started. Its waiters get
				// the value, the store does not.
				slog.Debug("cache key rolled over during fetch, not stored", "cache", l.name, "key", key)
				return e, nil
			}
			return Entry[V]{}, err
		}
		slog.Debug("cache refreshed", "cache", l.name, "key", key,
			"duration_ms", fetchedAt.Sub(start).Milliseconds())
		return e, nil
	})
}

// Invalidate drops the stored entry for key. An in-flight fetch for key is
// not affected and will store its result when it settles.
func (l *Loader[K, V]) Invalidate(key K) error {
	return l.store.Invalidate(key)
}

// Pending returns the number of callers waiting on a fetch for key.
func (l *Loader[K, V]) Pending(key K) int {
	return l.flight.Waiters(key)
}

func (l *Loader[K, V]) refreshInBackground(ctx context.Context, key K) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := l.Refresh(ctx, key); err != nil {
			slog.Debug("background refresh failed, serving stale", "cache", l.name, "key", key)
		}
	}()
}
