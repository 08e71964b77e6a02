//go:build !dev && !testing

package build

// Release is pinned to "standard" for a normal, production build. Dev and
// testing builds override it via the build tags above (see
// release_dev.go, release_testing.go).
var Release = "standard"

// DEBUG is false in a standard build: invariant violations are logged via
// Critical/Severe but do not panic the process.
const DEBUG = false
