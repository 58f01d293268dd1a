package querycache

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/citizen-portal/app/observability/metrics"
)

// Result is the typed view of a Snapshot.
type Result[T any] struct {
	Key           Key
	Data          T
	HasData       bool
	Err           error
	Status        Status
	IsLoading     bool
	IsFetching    bool
	IsInvalidated bool
	UpdatedAt     time.Time
}

func resultOf[T any](s Snapshot) Result[T] {
	r := Result[T]{
		Key:           s.Key,
		Err:           s.Err,
		Status:        s.Status,
		IsLoading:     s.IsLoading,
		IsFetching:    s.IsFetching,
		IsInvalidated: s.IsInvalidated,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.HasValue {
		if v, ok := s.Value.(T); ok {
			r.Data, r.HasData = v, true
		} else if r.Err == nil {
			r.Err = fmt.Errorf("querycache: entry %s holds %T", s.Key, s.Value)
		}
	}
	return r
}

// TypedOptions are the Options of a typed query.
type TypedOptions[T any] struct {
	StaleTime   time.Duration
	Retry       *RetryPolicy
	InitialData func() (T, bool)
}

func (o TypedOptions[T]) untyped() Options {
	opts := Options{StaleTime: o.StaleTime, Retry: o.Retry}
	if o.InitialData != nil {
		opts.InitialData = func() (any, bool) { return o.InitialData() }
	}
	return opts
}

func untypedFetch[T any](fetch func(context.Context) (T, error)) FetchFunc {
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Query is the typed form of Cache.Query.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error), opts TypedOptions[T]) Result[T] {
	return resultOf[T](c.Query(ctx, key, untypedFetch(fetch), opts.untyped()))
}

// Peek is the typed form of Cache.Peek.
func Peek[T any](c *Cache, key Key) (Result[T], bool) {
	s, ok := c.Peek(key)
	return resultOf[T](s), ok
}

// SetQueryData is the typed form of Cache.SetQueryData. An entry holding a
// value of another type is passed to updater as absent.
func SetQueryData[T any](c *Cache, key Key, updater func(old T, ok bool) (T, bool)) bool {
	return c.SetQueryData(key, func(old any, ok bool) (any, bool) {
		v, typed := old.(T)
		return updater(v, ok && typed)
	})
}

// SetQueriesData is the typed form of Cache.SetQueriesData. Entries holding a
// value of another type are skipped.
func SetQueriesData[T any](c *Cache, pattern Key, updater func(key Key, old T) (T, bool)) int {
	return c.SetQueriesData(pattern, func(key Key, old any) (any, bool) {
		v, ok := old.(T)
		if !ok {
			return nil, false
		}
		return updater(key, v)
	})
}

// MutationOptions carry the completion callbacks of a mutation.
type MutationOptions[Out any] struct {
	// OnSuccess runs after a successful mutation. It is the place for
	// explicit cache writes to related keys.
	OnSuccess func(Out)
	// OnError runs after a failed mutation. The cache is left untouched.
	OnError func(error)
}

// Mutate runs fn once, without retry, and dispatches to the callbacks. A
// panic inside fn is returned as an error wrapping ErrPanic.
func Mutate[In, Out any](ctx context.Context, c *Cache, fn func(context.Context, In) (Out, error), in In, opts MutationOptions[Out]) (out Out, err error) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		out, err = fn(ctx, in)
	}()
	c.count(ctx, func(m *metrics.AppMetrics) metric.Int64Counter { return m.MutationsTotal }, "mutation")

	if err != nil {
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return out, err
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(out)
	}
	return out, nil
}
