// Package outcome provides a small success-or-failure combinator used to
// compose fallible setup steps without re-unwrapping at every stage.
package outcome

import (
	"context"
	"sync"
)

// Outcome carries either a value or an error, never both.
type Outcome[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Fail wraps a failure.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{err: err}
}

// Failed reports whether the outcome carries an error.
func (o Outcome[T]) Failed() bool {
	return o.err != nil
}

// Unwrap returns the value and error in Go's conventional shape.
func (o Outcome[T]) Unwrap() (T, error) {
	return o.value, o.err
}

// Err returns the carried error, nil on success.
func (o Outcome[T]) Err() error {
	return o.err
}

// MustValue returns the value; only valid when Failed() is false.
func (o Outcome[T]) MustValue() T {
	return o.value
}

// Pair groups two independently acquired values.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip combines two outcomes. Both successes yield a pair; otherwise the
// first operand's failure wins, regardless of the second.
func Zip[A, B any](a Outcome[A], b Outcome[B]) Outcome[Pair[A, B]] {
	if a.err != nil {
		return Fail[Pair[A, B]](a.err)
	}
	if b.err != nil {
		return Fail[Pair[A, B]](b.err)
	}
	return Ok(Pair[A, B]{First: a.value, Second: b.value})
}

// Then chains a fallible step onto a successful outcome. A failed outcome
// passes through untouched and f never runs.
func Then[A, B any](o Outcome[A], f func(A) Outcome[B]) Outcome[B] {
	if o.err != nil {
		return Fail[B](o.err)
	}
	return f(o.value)
}

// Map transforms a successful value; failures pass through.
func Map[A, B any](o Outcome[A], f func(A) B) Outcome[B] {
	if o.err != nil {
		return Fail[B](o.err)
	}
	return Ok(f(o.value))
}

// Join2 runs two fallible steps concurrently and zips their outcomes. Both
// steps always run to completion so each side can release what it acquired
// when the other fails.
func Join2[A, B any](ctx context.Context, fa func(context.Context) Outcome[A], fb func(context.Context) Outcome[B]) Outcome[Pair[A, B]] {
	var (
		wg sync.WaitGroup
		oa Outcome[A]
		ob Outcome[B]
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		oa = fa(ctx)
	}()
	go func() {
		defer wg.Done()
		ob = fb(ctx)
	}()
	wg.Wait()
	return Zip(oa, ob)
}
