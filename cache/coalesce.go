package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Coalescer runs at most one fetch per key at a time. Callers that arrive
// while a fetch for their key is pending wait for it and receive the same
// value or the same error. The pending slot is released as soon as the fetch
// settles, so the next caller after a failure starts a fresh fetch; nothing
// is retried automatically.
type Coalescer[K comparable, V any] struct {
	group   singleflight.Group
	keyFunc func(K) string

	mu      sync.Mutex
	waiters map[K]int
}

// NewCoalescer creates a coalescer. keyFunc must map distinct keys to
// distinct strings; nil uses fmt.Sprint, which honours String methods.
func NewCoalescer[K comparable, V any](keyFunc func(K) string) *Coalescer[K, V] {
	if keyFunc == nil {
		keyFunc = func(k K) string { return fmt.Sprint(k) }
	}
	return &Coalescer[K, V]{
		keyFunc: keyFunc,
		waiters: make(map[K]int),
	}
}

// Do returns the result of fn for key, joining a pending fetch if one exists.
//
// fn runs detached from ctx's cancellation: a caller whose ctx ends stops
// waiting and gets ctx.Err(), but the shared fetch keeps running for the
// other waiters and still settles normally.
func (c *Coalescer[K, V]) Do(ctx context.Context, key K, fn func(ctx context.Context) (V, error)) (V, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.keyFunc(key), func() (interface{}, error) {
		return fn(shared)
	})

	c.join(key)
	defer c.leave(key)

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Waiters returns how many callers are currently waiting on key.
func (c *Coalescer[K, V]) Waiters(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[key]
}

func (c *Coalescer[K, V]) join(key K) {
	c.mu.Lock()
	c.waiters[key]++
	c.mu.Unlock()
}

func (c *Coalescer[K, V]) leave(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiters[key] <= 1 {
		delete(c.waiters, key)
		return
	}
	c.waiters[key]--
}
