//go:build testing

package build

// Release is pinned to "testing" when built with `-tags testing`, which is
// how this module's test suite is expected to be run: the Critical tests in
// this package rely on DEBUG being true, and build.Select then returns the
// Testing field of every build.Var.
var Release = "testing"

// DEBUG is true under the testing tag: invariant violations panic so that
// tests fail loudly instead of silently logging.
const DEBUG = true
