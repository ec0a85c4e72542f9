//go:build debug

package assert

import "fmt"

// Invariant checks an invariant condition and panics if violated in debug builds.
// Use this for internal sanity checks (postconditions, structural invariants),
// not for validating external input.
//
// Example:
//
//	assert.Invariant(cert.FingerprintSHA256 != "", "fingerprint must be set after construction")
func Invariant(ok bool, msg string) {
	if !ok {
		panic(fmt.Sprintf("INVARIANT VIOLATION: %s", msg))
	}
}
