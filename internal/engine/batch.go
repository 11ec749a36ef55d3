package engine

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultBatchSize is the number of items processed between sleeps.
	DefaultBatchSize = 10
	// DefaultBatchDelay is the pause between consecutive batches.
	DefaultBatchDelay = 2 * time.Second
)

// BatchResult reports how a batch run went. Errors holds one entry per
// failed item; failures never abort the run.
type BatchResult struct {
	Success int
	Errors  []error
}

// ProgressFunc is invoked after each processed item.
type ProgressFunc func(done, total int)

// RunBatches processes items in consecutive batches of batchSize, sleeping
// delay between batches. Items inside a batch run sequentially; a failing
// item is recorded and the batch continues. Cancellation is checked before
// every item, so at most the in-flight item completes after ctx is done.
func RunBatches[T any](ctx context.Context, items []T, batchSize int, delay time.Duration, progress ProgressFunc, action func(context.Context, T) error) BatchResult {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var res BatchResult
	total := len(items)
	done := 0

	for start := 0; start < total; start += batchSize {
		if ctx.Err() != nil {
			return res
		}
		end := start + batchSize
		if end > total {
			end = total
		}

		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				return res
			}
			if err := action(ctx, items[i]); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("item %d: %w", i, err))
			} else {
				res.Success++
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}

		if end < total && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return res
			case <-timer.C:
			}
		}
	}
	return res
}
