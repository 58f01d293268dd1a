package querycache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy bounds how often a failing fetch is retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// ShouldRetry filters retryable errors; nil retries every error.
	ShouldRetry func(error) bool
}

// NoRetry fails on the first error. Use it for authorization-sensitive keys.
func NoRetry() *RetryPolicy {
	return &RetryPolicy{}
}

// DefaultRetry retries three times with exponential backoff.
func DefaultRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

func (p *RetryPolicy) run(ctx context.Context, op func() error) error {
	if p == nil || p.MaxRetries == 0 {
		return op()
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx))
}
