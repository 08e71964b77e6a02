//go:build dev

package build

// Release is pinned to "dev" when built with `-tags dev`.
var Release = "dev"

// DEBUG is true in a dev build: invariant violations panic immediately so
// they surface during development instead of being merely logged.
const DEBUG = true
