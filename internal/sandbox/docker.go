package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/verifybuild/internal/logfields"
)

// ErrDockerNotFound is returned when the docker binary is not on PATH.
var ErrDockerNotFound = errors.New("docker binary not found")

// DockerRunner drives the docker CLI.
type DockerRunner struct {
	Binary string
	// Build output is streamed here. Defaults to stderr so stdout stays reserved for results.
	Output io.Writer
}

// NewDockerRunner returns a runner using the docker binary on PATH.
func NewDockerRunner() *DockerRunner {
	return &DockerRunner{Binary: "docker", Output: os.Stderr}
}

func (d *DockerRunner) binary() (string, error) {
	name := d.Binary
	if name == "" {
		name = "docker"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDockerNotFound, err)
	}
	return path, nil
}

// capture runs docker and returns trimmed stdout.
func (d *DockerRunner) capture(ctx context.Context, args ...string) (string, error) {
	bin, err := d.binary()
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	slog.DebugContext(ctx, "Invoking docker", slog.String("args", strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("docker %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("docker %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// stream runs docker with output forwarded to d.Output.
func (d *DockerRunner) stream(ctx context.Context, args ...string) error {
	bin, err := d.binary()
	if err != nil {
		return err
	}
	out := d.Output
	if out == nil {
		out = os.Stderr
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	slog.DebugContext(ctx, "Invoking docker", slog.String("args", strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker %s: %w", args[0], err)
	}
	return nil
}

func (d *DockerRunner) WorkDir(ctx context.Context, image string) (string, error) {
	wd, err := d.capture(ctx, "run", "--rm", image, "pwd")
	if err != nil {
		return "", err
	}
	if wd == "" {
		return "", fmt.Errorf("image %s reported an empty working directory", image)
	}
	return wd, nil
}

// CreateArgs returns the docker arguments used to start spec.
func CreateArgs(spec CreateSpec) []string {
	args := []string{"run", "--rm"}
	if spec.MountSource != "" {
		args = append(args, "-v", spec.MountSource+":"+spec.MountTarget)
	}
	args = append(args, "-dit")
	if spec.Limits.Memory != "" {
		args = append(args, "--memory", spec.Limits.Memory)
	}
	if spec.Limits.CPUs != "" {
		args = append(args, "--cpus", spec.Limits.CPUs)
	}
	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

func (d *DockerRunner) Create(ctx context.Context, spec CreateSpec) (Handle, error) {
	id, err := d.capture(ctx, CreateArgs(spec)...)
	if err != nil {
		return Handle{}, err
	}
	if id == "" {
		return Handle{}, fmt.Errorf("docker run returned no container id for %s", spec.Image)
	}
	slog.DebugContext(ctx, "Started container", logfields.ContainerID(id), logfields.Image(spec.Image))
	return Handle{ID: id}, nil
}

func (d *DockerRunner) Exec(ctx context.Context, h Handle, dir string, args ...string) error {
	full := []string{"exec"}
	if dir != "" {
		full = append(full, "-w", dir)
	}
	full = append(full, h.ID)
	return d.stream(ctx, append(full, args...)...)
}

func (d *DockerRunner) CopyOut(ctx context.Context, h Handle, src, dst string) error {
	_, err := d.capture(ctx, "cp", h.ID+":"+src, dst)
	return err
}

func (d *DockerRunner) Destroy(ctx context.Context, h Handle) error {
	_, err := d.capture(ctx, "kill", h.ID)
	return err
}
