// Package fetch runs the independent reads needed to answer one user turn
// concurrently, joining results in caller order. Tasks inherit the caller's
// context, so the request-scoped credential and GET cache stay visible across
// the concurrency boundary.
package fetch

import (
	"context"
	"sync"
)

// DefaultMaxConcurrent caps simultaneous tasks per coordinator run so one
// inbound request cannot fan out unbounded.
const DefaultMaxConcurrent = 6

// Task is one zero-argument read operation.
type Task[T any] func(ctx context.Context) (T, error)

// Result pairs a task's value with its own error. One task failing never
// cancels or corrupts its siblings; the caller decides what a partial failure
// means.
type Result[T any] struct {
	Value T
	Err   error
}

// All executes tasks concurrently (bounded by DefaultMaxConcurrent) and
// returns results positionally: results[i] belongs to tasks[i] regardless of
// completion order. A single task runs inline with no goroutine overhead.
func All[T any](ctx context.Context, tasks ...Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))

	switch len(tasks) {
	case 0:
		return results
	case 1:
		results[0].Value, results[0].Err = tasks[0](ctx)
		return results
	}

	sem := make(chan struct{}, DefaultMaxConcurrent)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i].Value, results[i].Err = task(ctx)
		}(i, task)
	}
	wg.Wait()

	return results
}

// Join2 runs two differently typed reads concurrently.
func Join2[A, B any](ctx context.Context, a Task[A], b Task[B]) (Result[A], Result[B]) {
	var ra Result[A]
	var rb Result[B]

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ra.Value, ra.Err = a(ctx)
	}()
	go func() {
		defer wg.Done()
		rb.Value, rb.Err = b(ctx)
	}()
	wg.Wait()

	return ra, rb
}

// Join3 runs three differently typed reads concurrently.
func Join3[A, B, C any](ctx context.Context, a Task[A], b Task[B], c Task[C]) (Result[A], Result[B], Result[C]) {
	var ra Result[A]
	var rb Result[B]
	var rc Result[C]

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		ra.Value, ra.Err = a(ctx)
	}()
	go func() {
		defer wg.Done()
		rb.Value, rb.Err = b(ctx)
	}()
	go func() {
		defer wg.Done()
		rc.Value, rc.Err = c(ctx)
	}()
	wg.Wait()

	return ra, rb, rc
}
