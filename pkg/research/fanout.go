package research

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// outcome is the result of one fanned-out call, stored at the index of its input.
type outcome[T any] struct {
	Value T
	Err   error
}

// fanOut runs fn for every input concurrently and waits for all of them.
// Failures stay in their slot: a failing call never cancels its siblings.
// limit <= 0 means no concurrency cap.
func fanOut[In, Out any](ctx context.Context, inputs []In, limit int, fn func(context.Context, In) (Out, error)) []outcome[Out] {
	results := make([]outcome[Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, in := range inputs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = outcome[Out]{Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			v, err := fn(ctx, in)
			results[i] = outcome[Out]{Value: v, Err: err}
			return nil
		})
	}

	// Workers always return nil; Wait is purely the fan-in barrier.
	_ = g.Wait()
	return results
}
