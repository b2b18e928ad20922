// Package pool provides bounded concurrent execution of work units.
//
// A Pool admits at most Size units at a time; Size 0 means unbounded and
// Size 1 degrades to strictly sequential execution with no other behavior
// change. Results always come back in submission order regardless of
// completion order, and one unit's failure never cancels its siblings.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/sym"
)

// Task is a unit of work the pool can run. Implementations carry their own
// configuration; the pool only knows how to admit, run, and collect them.
type Task[I, O any] interface {
	// Name identifies the task in logs and results.
	Name() string
	// Run executes the task against one input.
	Run(ctx context.Context, input I) (O, error)
}

// Result pairs one task's outcome with its submission slot. Exactly one of
// Output or Err is meaningful, indicated by Err == nil.
type Result[O any] struct {
	// Index is the task's position in the submitted slice.
	Index int
	// Task is the name of the task that produced this result.
	Task string
	// Output is the task's result when Err is nil.
	Output O
	// Err is the task's failure, nil on success.
	Err error
	// Duration is wall-clock execution time, admission wait excluded.
	Duration time.Duration
}

// Pool executes tasks with bounded concurrency.
type Pool struct {
	size   int
	logger *zap.SugaredLogger
}

// New creates a Pool. size 0 means unbounded, 1 sequential, N at most N
// concurrent tasks. Negative sizes are rejected.
func New(size int, logger *zap.SugaredLogger) (*Pool, error) {
	if size < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "pool size %d", size)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pool{size: size, logger: logger}, nil
}

// Size returns the configured concurrency limit (0 = unbounded).
func (p *Pool) Size() int {
	return p.size
}

// Execute runs each task against the input at the same index and returns
// results in submission order. The call blocks until every admitted task
// has finished.
//
// Failure isolation: a task error is recorded in its Result slot and does
// not cancel the others. Context cancellation is different — tasks still
// waiting for admission fail fast with ctx.Err(), and running tasks see the
// cancellation through their own ctx.
//
// tasks and inputs must have equal length; a mismatch fails before any task
// starts.
func Execute[I, O any](ctx context.Context, p *Pool, tasks []Task[I, O], inputs []I) ([]Result[O], error) {
	if len(tasks) != len(inputs) {
		return nil, errors.Wrapf(errors.ErrInvalidArgument,
			"task/input length mismatch: %d tasks, %d inputs", len(tasks), len(inputs))
	}
	if len(tasks) == 0 {
		return []Result[O]{}, nil
	}

	var sem *semaphore.Weighted
	if p.size > 0 {
		sem = semaphore.NewWeighted(int64(p.size))
	}

	p.logger.Debugw("Dispatching tasks",
		"symbol", sym.Pool,
		"tasks", len(tasks),
		"pool_size", p.size,
	)

	results := make([]Result[O], len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[I, O]) {
			defer wg.Done()

			results[i].Index = i
			results[i].Task = task.Name()

			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i].Err = errors.Wrapf(err, "admission for %s", task.Name())
					return
				}
				defer sem.Release(1)
			} else if err := ctx.Err(); err != nil {
				results[i].Err = errors.Wrapf(err, "admission for %s", task.Name())
				return
			}

			start := time.Now()
			out, err := task.Run(ctx, inputs[i])
			results[i].Duration = time.Since(start)

			if err != nil {
				results[i].Err = err
				p.logger.Warnw("Task failed",
					"symbol", sym.Pool,
					"task", task.Name(),
					"index", i,
					"duration", results[i].Duration.Seconds(),
					"error", err,
				)
				return
			}
			results[i].Output = out
			p.logger.Debugw("Task completed",
				"symbol", sym.Pool,
				"task", task.Name(),
				"index", i,
				"duration", results[i].Duration.Seconds(),
			)
		}(i, task)
	}

	wg.Wait()
	return results, nil
}

// ExecuteFactory builds one task per input via factory and delegates to
// Execute. Stages that run the same unit against a batch of inputs use this
// instead of assembling the task slice by hand.
func ExecuteFactory[I, O any](ctx context.Context, p *Pool, factory func(I) Task[I, O], inputs []I) ([]Result[O], error) {
	tasks := make([]Task[I, O], len(inputs))
	for i, input := range inputs {
		tasks[i] = factory(input)
	}
	return Execute(ctx, p, tasks, inputs)
}

// Failed filters results down to the failures. Convenient for callers that
// need to report partial completion.
func Failed[O any](results []Result[O]) []Result[O] {
	var failed []Result[O]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Outputs extracts outputs from successful results, preserving order and
// skipping failures.
func Outputs[O any](results []Result[O]) []O {
	outs := make([]O, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			outs = append(outs, r.Output)
		}
	}
	return outs
}
