// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package future provides single-assignment results of asynchronous
// operations which may fail.
package future

// outcome is the value or error an operation completed with.
type outcome[T any] struct {
	value T
	err   error
}

// Promise is the producing side of a Future. It must be completed exactly
// once, either by Resolve or by Fail.
type Promise[T any] struct {
	c chan<- outcome[T]
}

// Future is the consuming side of an asynchronous operation. It may be awaited
// by a single consumer.
type Future[T any] struct {
	c <-chan outcome[T]
}

// Create creates a connected promise and future.
func Create[T any]() (Promise[T], Future[T]) {
	ch := make(chan outcome[T], 1)
	return Promise[T]{c: ch}, Future[T]{c: ch}
}

// Resolved creates a future already completed with the given value.
func Resolved[T any](value T) Future[T] {
	promise, res := Create[T]()
	promise.Resolve(value)
	return res
}

// Failed creates a future already completed with the given error.
func Failed[T any](err error) Future[T] {
	promise, res := Create[T]()
	promise.Fail(err)
	return res
}

// Resolve completes the operation successfully.
func (p Promise[T]) Resolve(value T) {
	p.c <- outcome[T]{value: value}
	close(p.c)
}

// Fail completes the operation with an error.
func (p Promise[T]) Fail(err error) {
	p.c <- outcome[T]{err: err}
	close(p.c)
}

// Complete resolves the promise if err is nil and fails it otherwise.
func (p Promise[T]) Complete(value T, err error) {
	if err != nil {
		p.Fail(err)
		return
	}
	p.Resolve(value)
}

// Await blocks until the operation is completed and returns its outcome.
func (f Future[T]) Await() (T, error) {
	res := <-f.c
	return res.value, res.err
}

// Ready reports whether the operation has been completed. A ready future does
// not block on Await.
func (f Future[T]) Ready() bool {
	return len(f.c) > 0
}
