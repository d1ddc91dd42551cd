package concurrency

import (
	"context"
	"sync"
)

// Options configures bounded-parallel processing.
type Options struct {
	MaxWorkers int
}

func DefaultOptions() Options {
	return Options{MaxWorkers: 10}
}

type indexed[R any] struct {
	index  int
	result R
	err    error
}

// Map runs fn over items with at most MaxWorkers goroutines and returns the
// results in input order. Errors are collected per item and returned
// alongside the results; a failed item leaves its zero value in place.
func Map[T any, R any](
	ctx context.Context,
	items []T,
	opts Options,
	fn func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = DefaultOptions().MaxWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int, len(items))
	out := make(chan indexed[R], len(items))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				r, err := fn(ctx, i, items[i])
				out <- indexed[R]{index: i, result: r, err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]R, len(items))
	var errs []error
	for r := range out {
		if r.err != nil {
			errs = append(errs, r.err)
		}
		results[r.index] = r.result
	}
	return results, errs
}
