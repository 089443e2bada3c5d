// Package remote talks to the remote build farm: it submits verification
// requests, polls jobs until they reach a terminal status and queries the
// per-program verification records.
package remote
