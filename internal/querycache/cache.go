package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/citizen-portal/app/observability/metrics"
)

const (
	defaultGCTime = 5 * time.Minute

	// maxRequery bounds how often a waiting query follows a superseded fetch.
	maxRequery = 3
)

// ErrPanic wraps a panic recovered from a fetch or mutation function.
var ErrPanic = errors.New("querycache: recovered panic")

// FetchFunc loads the value for one key.
type FetchFunc func(ctx context.Context) (any, error)

// Config holds cache-wide defaults.
type Config struct {
	// StaleTime is how long a resolved value counts as fresh. Zero means a
	// value is stale as soon as it resolves and is revalidated on next read.
	StaleTime time.Duration
	// GCTime evicts entries nobody has read or written for that long.
	GCTime  time.Duration
	Retry   *RetryPolicy
	Logger  *slog.Logger
	Metrics *metrics.AppMetrics
	Now     func() time.Time
}

// Options tune a single query.
type Options struct {
	// StaleTime overrides Config.StaleTime when positive.
	StaleTime time.Duration
	// Retry overrides Config.Retry when set.
	Retry *RetryPolicy
	// InitialData seeds a missing entry. The seeded value is served at once
	// and treated as stale, so a fetch always follows.
	InitialData func() (any, bool)
}

// Cache is a keyed, deduplicated store of async query results.
type Cache struct {
	mu      sync.Mutex
	entries *gocache.Cache
	group   singleflight.Group

	subs    map[uint64]subscription
	nextSub uint64

	queue    []Event
	draining bool

	cfg    Config
	logger *slog.Logger
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	if cfg.GCTime <= 0 {
		cfg.GCTime = defaultGCTime
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		entries: gocache.New(cfg.GCTime, cfg.GCTime),
		subs:    make(map[uint64]subscription),
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("component", "querycache")),
	}
}

// Query returns the value for key, fetching it when needed.
//
// A fresh entry is returned as is. A stale entry, or one seeded through
// Options.InitialData, is returned immediately while a background fetch
// revalidates it. A missing, invalidated or failed entry moves to pending and
// Query waits for the fetch. Concurrent callers share one fetch per key.
//
// Fetch errors are reported in Snapshot.Err, never as a panic. If ctx ends
// first, the current snapshot is returned with ctx.Err().
func (c *Cache) Query(ctx context.Context, key Key, fetch FetchFunc, opts Options) Snapshot {
	kind := key.Kind()
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		e := c.lookup(key)
		if e == nil {
			e = c.create(key)
			c.seed(e, opts)
		}

		if e.status == StatusSuccess && !e.invalidated {
			if !c.isFresh(e, opts) {
				c.startFetch(ctx, e, fetch, opts)
			}
			snap := e.snapshot()
			c.mu.Unlock()
			c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.CacheHitsTotal }, kind)
			return snap
		}

		if attempt == 0 {
			c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.CacheMissesTotal }, kind)
		}
		ch := c.startFetch(ctx, e, fetch, opts)
		c.mu.Unlock()

		select {
		case res := <-ch:
			out := res.Val.(flightResult)
			if out.applied {
				return out.snapshot
			}
			if attempt >= maxRequery {
				snap, _ := c.Peek(key)
				return snap
			}
		case <-ctx.Done():
			snap, _ := c.Peek(key)
			snap.Err = ctx.Err()
			return snap
		}
	}
}

// Peek returns the current snapshot for key without fetching.
func (c *Cache) Peek(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(key)
	if e == nil {
		return Snapshot{Key: key}, false
	}
	return e.snapshot(), true
}

// Keys lists the keys currently cached under pattern, in canonical order.
func (c *Cache) Keys(pattern Key) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := c.matching(pattern)
	keys := make([]Key, len(matched))
	for i, e := range matched {
		keys[i] = e.key
	}
	return keys
}

// Invalidate marks every entry under pattern stale. The next Query for such a
// key refetches before returning. A fetch already in flight for a matching
// key is superseded: its result will be discarded. It returns the number of
// entries marked.
func (c *Cache) Invalidate(pattern Key) int {
	c.mu.Lock()
	matched := c.matching(pattern)
	for _, e := range matched {
		e.invalidated = true
		c.orphan(e)
		e.version++
		c.enqueue(Event{Type: EventInvalidated, Key: e.key, Generation: e.generation, entry: e, version: e.version})
	}
	c.mu.Unlock()

	c.drain()
	return len(matched)
}

// SetQueryData overwrites the value for key without a network round trip.
// The updater receives the current value and whether there is one; returning
// false leaves the entry untouched. A written entry is fresh and successful,
// and any fetch in flight for it is superseded.
func (c *Cache) SetQueryData(key Key, updater func(old any, ok bool) (any, bool)) bool {
	c.mu.Lock()
	e := c.lookup(key)
	created := false
	if e == nil {
		e = &entry{key: key}
		created = true
	}
	changed := c.write(e, updater)
	if changed && created {
		c.entries.SetDefault(key.String(), e)
	}
	c.mu.Unlock()

	c.drain()
	return changed
}

// SetQueriesData applies updater to every existing entry under pattern that
// holds a value. It returns the number of entries written.
func (c *Cache) SetQueriesData(pattern Key, updater func(key Key, old any) (any, bool)) int {
	c.mu.Lock()
	n := 0
	for _, e := range c.matching(pattern) {
		if !e.hasValue {
			continue
		}
		key := e.key
		if c.write(e, func(old any, _ bool) (any, bool) { return updater(key, old) }) {
			n++
		}
	}
	c.mu.Unlock()

	c.drain()
	return n
}

// Remove drops every entry under pattern. Fetches in flight for them resolve
// into nothing.
func (c *Cache) Remove(pattern Key) int {
	c.mu.Lock()
	matched := c.matching(pattern)
	for _, e := range matched {
		c.entries.Delete(e.key.String())
		e.fetching = false
		c.enqueue(Event{Type: EventRemoved, Key: e.key, Generation: e.generation})
	}
	c.mu.Unlock()

	c.drain()
	return len(matched)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.Remove(nil)
}

// Subscribe registers listener for events on keys under pattern and returns
// a function that removes it.
func (c *Cache) Subscribe(pattern Key, listener Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscription{pattern: pattern, listener: listener}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

type flightResult struct {
	snapshot Snapshot
	applied  bool
}

func (c *Cache) lookup(key Key) *entry {
	v, ok := c.entries.Get(key.String())
	if !ok {
		return nil
	}
	e := v.(*entry)
	c.entries.SetDefault(key.String(), e)
	return e
}

func (c *Cache) create(key Key) *entry {
	e := &entry{key: key}
	c.entries.SetDefault(key.String(), e)
	return e
}

func (c *Cache) current(e *entry) bool {
	v, ok := c.entries.Get(e.key.String())
	return ok && v.(*entry) == e
}

func (c *Cache) seed(e *entry, opts Options) {
	if opts.InitialData == nil {
		return
	}
	v, ok := opts.InitialData()
	if !ok {
		return
	}
	e.value, e.hasValue = v, true
	e.status = StatusSuccess
	e.version++
}

func (c *Cache) isFresh(e *entry, opts Options) bool {
	if e.updatedAt.IsZero() {
		return false
	}
	stale := c.cfg.StaleTime
	if opts.StaleTime > 0 {
		stale = opts.StaleTime
	}
	return c.cfg.Now().Sub(e.updatedAt) < stale
}

func (c *Cache) matching(pattern Key) []*entry {
	var out []*entry
	for _, item := range c.entries.Items() {
		e := item.Object.(*entry)
		if e.key.HasPrefix(pattern) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.String() < out[j].key.String() })
	return out
}

// orphan supersedes the fetch in flight for e, if any.
func (c *Cache) orphan(e *entry) {
	if !e.fetching {
		return
	}
	e.generation++
	e.fetching = false
	if e.status == StatusPending {
		if e.hasValue {
			e.status = StatusSuccess
		} else {
			e.status = StatusIdle
		}
	}
}

func (c *Cache) write(e *entry, updater func(old any, ok bool) (any, bool)) bool {
	next, ok := updater(e.value, e.hasValue)
	if !ok {
		return false
	}
	c.orphan(e)
	e.value, e.hasValue = next, true
	e.status = StatusSuccess
	e.err = nil
	e.invalidated = false
	e.updatedAt = c.cfg.Now()
	e.version++
	c.enqueue(Event{Type: EventUpdated, Key: e.key, Value: next, Generation: e.generation, entry: e, version: e.version})
	return true
}

// startFetch issues a fetch for e unless one is already in flight, and
// returns a channel that yields the shared outcome. Must hold c.mu.
func (c *Cache) startFetch(ctx context.Context, e *entry, fetch FetchFunc, opts Options) <-chan singleflight.Result {
	kind := e.key.Kind()
	if e.fetching {
		c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.CacheDedupJoinsTotal }, kind)
		return c.group.DoChan(e.flightKey, e.flightFn)
	}

	e.generation++
	gen := e.generation
	e.fetching = true
	if e.status != StatusSuccess || e.invalidated {
		e.status = StatusPending
	}

	policy := c.cfg.Retry
	if opts.Retry != nil {
		policy = opts.Retry
	}
	fctx := context.WithoutCancel(ctx)
	e.flightKey = fmt.Sprintf("%s#%d", e.key.String(), gen)
	e.flightFn = func() (any, error) {
		return c.runFetch(fctx, e, gen, fetch, policy), nil
	}

	c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.CacheFetchesTotal }, kind)
	return c.group.DoChan(e.flightKey, e.flightFn)
}

func (c *Cache) runFetch(ctx context.Context, e *entry, gen uint64, fetch FetchFunc, policy *RetryPolicy) flightResult {
	kind := e.key.Kind()
	start := time.Now()

	var value any
	err := policy.run(ctx, func() error {
		var err error
		value, err = safeFetch(ctx, fetch)
		return err
	})
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.Observe(ctx, time.Since(start).Seconds(), kind)
	}

	c.mu.Lock()
	if !c.current(e) || e.generation != gen || !e.fetching {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded fetch", slog.String("key", e.key.String()), slog.Uint64("generation", gen))
		c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.CacheStaleDiscardsTotal }, kind)
		return flightResult{}
	}

	e.fetching = false
	e.version++
	if err != nil {
		e.status = StatusError
		e.err = err
		c.enqueue(Event{Type: EventFailed, Key: e.key, Err: err, Generation: gen, entry: e, version: e.version})
	} else {
		e.status = StatusSuccess
		e.value, e.hasValue = value, true
		e.err = nil
		e.invalidated = false
		e.updatedAt = c.cfg.Now()
		c.enqueue(Event{Type: EventResolved, Key: e.key, Value: value, Generation: gen, entry: e, version: e.version})
	}
	snap := e.snapshot()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("fetch failed", slog.String("key", e.key.String()), slog.Any("error", err))
		c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.CacheFetchErrorsTotal }, kind)
	}
	c.drain()
	return flightResult{snapshot: snap, applied: true}
}

func safeFetch(ctx context.Context, fetch FetchFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fetch(ctx)
}

func (c *Cache) enqueue(ev Event) {
	c.queue = append(c.queue, ev)
}

// drain delivers queued events in order. A listener that writes to the cache
// only enqueues; the outer drain loop picks the new events up.
func (c *Cache) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true

	for len(c.queue) > 0 {
		ev := c.queue[0]
		c.queue = c.queue[1:]
		if !c.deliverable(ev) {
			continue
		}

		ids := make([]uint64, 0, len(c.subs))
		for id, sub := range c.subs {
			if ev.Key.HasPrefix(sub.pattern) {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		listeners := make([]Listener, len(ids))
		for i, id := range ids {
			listeners[i] = c.subs[id].listener
		}

		c.mu.Unlock()
		for _, l := range listeners {
			c.notify(l, ev)
		}
		c.mu.Lock()
	}

	c.draining = false
	c.mu.Unlock()
}

// deliverable drops events overtaken before delivery: anything for an entry
// that was removed, and value events older than the entry's latest change.
func (c *Cache) deliverable(ev Event) bool {
	if ev.entry == nil {
		return true
	}
	if !c.current(ev.entry) {
		return false
	}
	if ev.HasValue() && ev.entry.version != ev.version {
		return false
	}
	return true
}

func (c *Cache) notify(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cache listener panicked", slog.String("key", ev.Key.String()), slog.Any("panic", r))
		}
	}()
	l(ev)
}

func (c *Cache) count(ctx context.Context, pick func(*metrics.AppMetrics) metric.Int64Counter, kind string) {
	if c.cfg.Metrics == nil {
		return
	}
	c.cfg.Metrics.Add(ctx, pick(c.cfg.Metrics), kind)
}
