// Package bg abstracts the decision to run work in the background.
//
// The scheduler, the warm-up sync check, and the HTTP server all own
// long-running work; routing every "go func()" through a Runner lets the
// tests run the same code paths synchronously and deterministically.
package bg

// Runner executes functions, either synchronously or asynchronously.
type Runner interface {
	// Do executes the given function. The implementation decides whether
	// this happens in the calling goroutine or a new one.
	Do(fn func())
}
