//go:build !debug

// Package debug provides consistency checks that are enabled with the debug
// build tag and compile to no-ops otherwise.
//
// Checks that guard a contract the caller can break at runtime (a nil buffer,
// a missing engine) are not debug assertions. Those always panic at the call
// site.
package debug

// Guard assertions that are expensive to evaluate with `if debug.Enabled
// {...}`, otherwise they are still computed in release builds.
const Enabled = false

// Assert panics with message if b is false.
func Assert(b bool, message string) {}

// Assertf is like Assert but formats the message lazily.
func Assertf(b bool, format string, args ...any) {}

// AssertErrNil panics if err is not nil.
func AssertErrNil(err error) {}
