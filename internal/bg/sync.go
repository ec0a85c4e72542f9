package bg

// Sync is a Runner that executes functions in the calling goroutine.
// Tests use it to make background work complete before assertions run.
type Sync struct{}

// Do executes the function immediately.
func (Sync) Do(fn func()) {
	fn()
}
