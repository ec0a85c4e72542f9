// Package inmemory provides complete in-memory implementations of every
// outbound port. They are first-class adapters, not test scaffolding: the
// zero-config development mode runs on them, and the test suite uses them as
// doubles. All of them are safe for concurrent use.
package inmemory
