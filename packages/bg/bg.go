// Package bg runs response tasks in the background.
//
// Tasks never start their own goroutines; they are handed to a Runner. The
// CLI uses Async so every task gets a dedicated worker, while tests can use
// Sync to run a task to completion before CreateRequest returns.
package bg

// Runner executes a function, either on the calling goroutine or on a new one.
type Runner interface {
	Do(fn func())
}

// Async runs each function on its own goroutine.
type Async struct{}

func (Async) Do(fn func()) {
	go fn()
}

// Sync runs each function on the calling goroutine and returns when it is done.
type Sync struct{}

func (Sync) Do(fn func()) {
	fn()
}
