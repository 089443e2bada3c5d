// Package sandbox runs deterministic program builds inside disposable
// containers and extracts the resulting binaries.
//
// The executor owns each container it creates. A container is registered with
// the session on creation and released exactly once on every exit path,
// including success and interruption.
package sandbox
