package querycache

import (
	"context"
	"sync"
)

// Observer is a view slot whose key changes over time, such as a listing
// screen whose filters are edited. Only results for the slot's latest key may
// be applied to it.
type Observer[T any] struct {
	cache *Cache
	opts  TypedOptions[T]

	mu  sync.Mutex
	key Key
	seq uint64
}

// NewObserver creates an observer with no key yet.
func NewObserver[T any](c *Cache, opts TypedOptions[T]) *Observer[T] {
	return &Observer[T]{cache: c, opts: opts}
}

// Query points the slot at key and queries it. The returned flag is false
// when the slot moved to another key before the result arrived; the caller
// must then drop the result.
func (o *Observer[T]) Query(ctx context.Context, key Key, fetch func(context.Context) (T, error)) (Result[T], bool) {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.key = key
	o.mu.Unlock()

	r := Query(ctx, o.cache, key, fetch, o.opts)

	o.mu.Lock()
	defer o.mu.Unlock()
	return r, o.seq == seq
}

// Key returns the slot's current key.
func (o *Observer[T]) Key() Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// IsCurrent reports whether key is the slot's current key.
func (o *Observer[T]) IsCurrent(key Key) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key != nil && o.key.Equal(key)
}

// Reset detaches the slot from any key.
func (o *Observer[T]) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.key = nil
}
