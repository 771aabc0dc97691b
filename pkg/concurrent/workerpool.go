// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package concurrent runs bounded fan-out work such as per-collection storage
// operations.
package concurrent

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work. It receives the context of the run it belongs to.
type Task func(ctx context.Context) error

// WorkerPool limits how many tasks run at once.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a pool running at most workerCount tasks at a time.
// Counts below one are raised to one.
func NewWorkerPool(workerCount int) *WorkerPool {
	return &WorkerPool{workerCount: max(workerCount, 1)}
}

// Run executes tasks and returns the first error. The first failure cancels
// the context handed to the remaining tasks, and tasks not yet started are
// skipped.
func (wp *WorkerPool) Run(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(wp.workerCount)
	for _, task := range tasks {
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return task(groupCtx)
		})
	}
	return g.Wait()
}

// RunAll executes every task even when some fail and returns the failures
// joined, or nil. A task whose turn comes after ctx is done reports ctx.Err().
func (wp *WorkerPool) RunAll(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	errs := make([]error, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(wp.workerCount)
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Each runs fn for every item on pool, stopping at the first error like Run.
func Each[T any](ctx context.Context, pool *WorkerPool, items []T, fn func(context.Context, T) error) error {
	tasks := make([]Task, len(items))
	for i, item := range items {
		tasks[i] = func(ctx context.Context) error { return fn(ctx, item) }
	}
	return pool.Run(ctx, tasks...)
}
