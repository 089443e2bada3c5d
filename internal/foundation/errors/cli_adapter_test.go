package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation", err: ValidationError("invalid input").Build(), expected: 2},
		{name: "not found", err: NotFoundError("account missing").Build(), expected: 3},
		{name: "conflict", err: ConflictError("record exists").Build(), expected: 4},
		{name: "config", err: ConfigError("bad config").Build(), expected: 7},
		{name: "remote", err: RemoteError("farm unavailable").Build(), expected: 8},
		{name: "sandbox", err: SandboxError("docker failed").Build(), expected: 11},
		{name: "interrupted", err: InterruptedError("signal").Build(), expected: ExitInterrupted},
		{
			name:     "interrupted wrapped inside another classified error",
			err:      BuildError("build aborted").WithCause(InterruptedError("signal").Build()).Build(),
			expected: ExitInterrupted,
		},
		{name: "wrapped classified", err: fmt.Errorf("ctx: %w", SandboxError("x").Build()), expected: 11},
		{name: "unclassified error", err: errors.New("unknown error"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	err := NotFoundError("account not found").WithContext("address", "Abc").Build()

	quiet := NewCLIErrorAdapter(false, slog.Default())
	if got := quiet.FormatError(err); got != "Error: account not found" {
		t.Errorf("unexpected non-verbose output %q", got)
	}

	verbose := NewCLIErrorAdapter(true, slog.Default())
	got := verbose.FormatError(err)
	if !strings.Contains(got, "not_found") || !strings.Contains(got, "address: Abc") {
		t.Errorf("expected category and context in verbose output, got %q", got)
	}

	if quiet.FormatError(nil) != "" {
		t.Error("expected empty string for nil error")
	}
}
