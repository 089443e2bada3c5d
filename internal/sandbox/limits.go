package sandbox

import (
	"context"
	"log/slog"
)

// Environment variables that cap build container resources, named in hints.
const (
	EnvMemoryLimit = "SVB_DOCKER_MEMORY_LIMIT"
	EnvCPULimit    = "SVB_DOCKER_CPU_LIMIT"
)

// reportLimits tells the operator which limits apply. Missing limits are
// reported rather than silently ignored.
func reportLimits(ctx context.Context, l Limits) {
	if l.IsZero() {
		slog.WarnContext(ctx, "No resource limits set for the build container; unconstrained builds can exhaust small hosts",
			slog.String("hint", "set "+EnvMemoryLimit+"=2g "+EnvCPULimit+"=2"))
		return
	}
	attrs := []any{}
	if l.Memory != "" {
		attrs = append(attrs, slog.String("memory", l.Memory))
	} else {
		attrs = append(attrs, slog.String("memory", "unlimited"))
	}
	if l.CPUs != "" {
		attrs = append(attrs, slog.String("cpus", l.CPUs))
	} else {
		attrs = append(attrs, slog.String("cpus", "unlimited"))
	}
	slog.InfoContext(ctx, "Using container resource limits", attrs...)
}
