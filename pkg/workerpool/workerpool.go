// Package workerpool fans a slice of work items out to a fixed number of goroutines.
package workerpool

import (
	"context"
	"sync"
)

// Process hands every item to process using workerCount goroutines. The first error cancels the
// remaining work, calls onCancel (when set) and is returned. A cancelled parent context yields
// its error once the workers have drained.
func Process[T any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) error,
	onCancel func(),
) error {
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(items) && len(items) > 0 {
		workerCount = len(items)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		firstErr error
		once     sync.Once
		wg       sync.WaitGroup
	)
	tasks := make(chan T)
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				if ctx.Err() != nil {
					continue
				}
				if err := process(ctx, item); err != nil {
					once.Do(func() {
						firstErr = err
						if onCancel != nil {
							onCancel()
						}
						cancel()
					})
				}
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case <-ctx.Done():
			break feed
		case tasks <- item:
		}
	}
	close(tasks)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
