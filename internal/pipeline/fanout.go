package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs work for every task with at most limit in flight and hands each
// result to handle on the calling goroutine. handle is never called
// concurrently. Tasks not yet started when ctx is done are dropped.
func fanOut[T, R any](
	ctx context.Context,
	limit int,
	tasks []T,
	work func(context.Context, T) R,
	handle func(R),
) {
	if len(tasks) == 0 {
		return
	}
	if limit <= 0 {
		limit = 1
	}
	results := make(chan R, limit)
	go func() {
		defer close(results)
		var g errgroup.Group
		g.SetLimit(limit)
		for _, task := range tasks {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- work(ctx, task)
				return nil
			})
		}
		_ = g.Wait()
	}()
	for r := range results {
		handle(r)
	}
}
