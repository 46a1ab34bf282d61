package workerpool

/*
Responsibilities
- Dispatch crawl tokens to a bounded set of workers
- Bound total in-flight tasks across all hosts via one weighted semaphore
- Surface per-slice progress to the caller

Pool knows nothing about fetching, extraction or scoring; it only decides
how many Task functions may run at once and reports what they returned.
*/

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is one unit of work dispatched to the pool. It receives a context
// derived from the one passed to Run (a Task's error never cancels its
// siblings) and must not block past that context's cancellation.
type Task func(ctx context.Context) (Result, error)

// Result is the outcome of a single Task.
type Result struct {
	Index int
	Value any
}

// Params configures a Pool.
type Params struct {
	// Workers and ConcurrencyPerWorker multiply to the size of the pool's
	// single semaphore, i.e. the most tasks running at once; each task runs
	// in its own goroutine.
	Workers              int
	ConcurrencyPerWorker int
}

func DefaultParams() Params {
	return Params{Workers: 4, ConcurrencyPerWorker: 2}
}

// Pool runs a slice of Tasks with bounded parallelism, calling onProgress
// after each completes. Every slot a Run acquires is released when its task
// returns, so one Pool may serve successive Run calls.
type Pool struct {
	params Params
	sem    *semaphore.Weighted
}

func NewPool(params Params) *Pool {
	if params.Workers <= 0 {
		params.Workers = DefaultParams().Workers
	}
	if params.ConcurrencyPerWorker <= 0 {
		params.ConcurrencyPerWorker = DefaultParams().ConcurrencyPerWorker
	}
	total := int64(params.Workers * params.ConcurrencyPerWorker)
	return &Pool{
		params: params,
		sem:    semaphore.NewWeighted(total),
	}
}

// Run executes tasks with bounded parallelism, invoking onProgress exactly
// once per task as soon as that task's Result is available (order of
// onProgress calls is completion order, not input order). Run does not
// abort the batch when an individual task returns an error: errors are
// folded into the Result stream via onProgress so the caller can classify
// and continue, matching the "surface via metadata sink, don't abort"
// convention used throughout the crawl pipeline. Run only returns an error
// itself if ctx is cancelled before every task has been dispatched; the
// tasks already dispatched are not waited for in that case.
func (p *Pool) Run(ctx context.Context, tasks []Task, onProgress func(Result, error)) error {
	group, groupCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, task := range tasks {
		index := i
		t := task
		if err := p.sem.Acquire(groupCtx, 1); err != nil {
			return err
		}
		group.Go(func() error {
			defer p.sem.Release(1)

			result, err := t(groupCtx)
			result.Index = index

			mu.Lock()
			onProgress(result, err)
			mu.Unlock()

			return nil
		})
	}

	return group.Wait()
}

// Batches splits items into batchSize-sized slices, preserving order. The
// last slice may be shorter; a batchSize <= 0 yields one slice of all items.
func Batches[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		batchSize = len(items)
	}
	if batchSize <= 0 {
		return nil
	}
	var batches [][]T
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
