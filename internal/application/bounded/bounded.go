// Package bounded runs calls to external collaborators with a hard deadline.
package bounded

import (
	"context"
	"fmt"
	"time"
)

type result[T any] struct {
	v   T
	err error
}

// Call runs fn with a context that expires after d and returns as soon as either
// fn finishes or the deadline passes, even if fn ignores its context. A panic in
// fn is returned as an error.
func Call[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		var r result[T]
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("panic: %v", p)
			}
			ch <- r
		}()
		r.v, r.err = fn(ctx)
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		var zero T
		return zero, fmt.Errorf("gave up after %s: %w", d, ctx.Err())
	}
}
