package sandbox

import "git.home.luguber.info/inful/verifybuild/internal/toolchain"

// Build subcommands.
const (
	CommandSBF = "build-sbf"
	CommandBPF = "build-bpf"
)

// sparseCutover is the first toolchain whose cargo defaults to the sparse registry.
var sparseCutover = toolchain.V(1, 17, 0)

// NeedsPrefetch reports whether dependencies must be fetched before the build.
// Older toolchains run out of memory on some hosts when resolving during the build.
func NeedsPrefetch(v toolchain.Version) bool {
	return v.Less(sparseCutover)
}

// PrefetchArgs is the dependency fetch run ahead of a build on old toolchains.
func PrefetchArgs() []string {
	return []string{"cargo", "--config", "net.git-fetch-with-cli=true", "fetch", "--locked"}
}

// LockedArgs returns the flags that pin dependency resolution to Cargo.lock.
func LockedArgs(v toolchain.Version) []string {
	if NeedsPrefetch(v) {
		return []string{"--frozen", "--locked"}
	}
	return []string{"--config", `registries.crates-io.protocol="sparse"`, "--locked"}
}

// BuildArgs assembles the cargo invocation run in the container.
// manifestPath is the absolute in-container path, or empty to build the workspace.
func BuildArgs(bpf bool, v toolchain.Version, manifestPath string, extra []string) []string {
	sub := CommandSBF
	if bpf {
		sub = CommandBPF
	}
	args := []string{"cargo", sub, "--"}
	args = append(args, LockedArgs(v)...)
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}
	return append(args, extra...)
}
