// Package retry holds the bounded read-modify-write loop used against state
// that another process may rewrite between our read and our write.
package retry

import (
	"context"
	"errors"
	"fmt"
)

var ErrExhausted = errors.New("retry: attempts exhausted")

// Versioned is a value read together with the version token a write must quote.
type Versioned[T any] struct {
	Value   T
	Version string
}

// ReadFunc loads the current value and its version.
type ReadFunc[T any] func(ctx context.Context) (Versioned[T], error)

// ModifyFunc returns the value to write and whether anything changed. When
// changed is false the loop stops without writing.
type ModifyFunc[T any] func(current T) (next T, changed bool)

// WriteFunc stores next if the remote version still equals version.
type WriteFunc[T any] func(ctx context.Context, next T, version string) error

// Result reports how an Optimistic loop ended.
type Result struct {
	Attempts int
	Written  bool
}

// Optimistic runs read, modify and write until a write succeeds, modify
// reports no change, or 1+retries attempts have been used. Read errors and
// context cancellation stop the loop at once; write errors are treated as a
// lost race and retried. The last write error is wrapped in ErrExhausted.
func Optimistic[T any](ctx context.Context, retries int, read ReadFunc[T], modify ModifyFunc[T], write WriteFunc[T]) (Result, error) {
	if retries < 0 {
		retries = 0
	}
	var res Result
	var lastErr error
	for res.Attempts < retries+1 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts++

		cur, err := read(ctx)
		if err != nil {
			return res, fmt.Errorf("retry: read: %w", err)
		}
		next, changed := modify(cur.Value)
		if !changed {
			return res, nil
		}
		if err := write(ctx, next, cur.Version); err != nil {
			lastErr = err
			continue
		}
		res.Written = true
		return res, nil
	}
	return res, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, res.Attempts, lastErr)
}
