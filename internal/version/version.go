// Package version carries build metadata. Version is also written into every
// provenance record this tool uploads.
package version

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/verifybuild/internal/version.Version=v0.2.0".
var Version = "0.1.0"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version line printed by --version.
func String() string {
	return "verifybuild " + Version + " (commit " + GitCommit + ", built " + BuildTime + ")"
}
