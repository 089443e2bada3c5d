package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/session"
	"git.home.luguber.info/inful/verifybuild/internal/toolchain"
)

func newRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		MountPath:    t.TempDir(),
		Library:      "my_program",
		ManifestPath: "programs/my_program/Cargo.toml",
		Image:        "img:1.18.26",
		Toolchain:    toolchain.V(1, 18, 26),
		CargoArgs:    []string{"--features", "mainnet"},
		Limits:       Limits{Memory: "2g", CPUs: "2"},
	}
}

func TestExecuteSucceeds(t *testing.T) {
	runner := newFakeRunner()
	req := newRequest(t)
	runner.onExec = func([]string) {
		_ = writeArtifact(req.MountPath, req.Library, []byte{1, 2, 0, 0})
	}
	sess := session.New(context.Background())
	var transitions []State
	exec := NewExecutor(runner, sess).WithObserver(func(_, to State) { transitions = append(transitions, to) })

	art, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0}, art.Bytes)
	assert.Equal(t, []State{StateRunning, StateSucceeded}, transitions)

	require.Len(t, runner.created, 1)
	assert.Equal(t, "/work", runner.created[0].MountTarget)
	assert.Equal(t, req.MountPath, runner.created[0].MountSource)
	assert.Equal(t, req.Limits, runner.created[0].Limits)

	require.Len(t, runner.execs, 1)
	assert.Equal(t, []string{
		"cargo", "build-sbf", "--",
		"--config", `registries.crates-io.protocol="sparse"`, "--locked",
		"--manifest-path", "/work/programs/my_program/Cargo.toml",
		"--features", "mainnet",
	}, runner.execs[0])
	assert.Equal(t, "/work/programs/my_program", runner.execDirs[0])

	assert.Equal(t, []string{"ctr-1"}, runner.destroyed)
	assert.Empty(t, sess.Pending())
}

func TestExecutePrefetchesOnOldToolchain(t *testing.T) {
	runner := newFakeRunner()
	req := newRequest(t)
	req.Toolchain = toolchain.V(1, 16, 3)
	req.BPF = true
	runner.onExec = func([]string) { _ = writeArtifact(req.MountPath, req.Library, []byte{7}) }

	_, err := NewExecutor(runner, nil).Execute(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, runner.execs, 2)
	assert.Equal(t, PrefetchArgs(), runner.execs[0])
	assert.Equal(t, []string{"cargo", "build-bpf", "--", "--frozen", "--locked"}, runner.execs[1][:5])
}

func TestExecuteBuildFailureTearsDown(t *testing.T) {
	runner := newFakeRunner()
	runner.execErr["build-sbf"] = errors.New("exit status 101")
	var transitions []State
	exec := NewExecutor(runner, nil).WithObserver(func(_, to State) { transitions = append(transitions, to) })

	_, err := exec.Execute(context.Background(), newRequest(t))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	assert.Equal(t, []State{StateRunning, StateFailed}, transitions)
	assert.Equal(t, []string{"ctr-1"}, runner.destroyed)
}

func TestExecuteMissingArtifact(t *testing.T) {
	runner := newFakeRunner()
	_, err := NewExecutor(runner, nil).Execute(context.Background(), newRequest(t))
	require.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Len(t, runner.destroyed, 1)
}

func TestExecuteCancelledBeforeCreation(t *testing.T) {
	runner := newFakeRunner()
	sess := session.New(context.Background())
	sess.Trip()
	var transitions []State
	exec := NewExecutor(runner, sess).WithObserver(func(_, to State) { transitions = append(transitions, to) })

	_, err := exec.Execute(sess.Context(), newRequest(t))
	require.ErrorIs(t, err, session.ErrInterrupted)
	assert.Empty(t, runner.created)
	assert.Empty(t, runner.destroyed)
	assert.Equal(t, []State{StateCancelled}, transitions)
}

func TestExecuteCancelledDuringBuild(t *testing.T) {
	runner := newFakeRunner()
	sess := session.New(context.Background())
	runner.onExec = func([]string) { sess.Trip() }
	var transitions []State
	exec := NewExecutor(runner, sess).WithObserver(func(_, to State) { transitions = append(transitions, to) })

	_, err := exec.Execute(sess.Context(), newRequest(t))
	require.ErrorIs(t, err, session.ErrInterrupted)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryInterrupted))
	assert.Equal(t, []State{StateRunning, StateCancelled}, transitions)
	assert.Equal(t, []string{"ctr-1"}, runner.destroyed)
}

func TestTeardownIsIdempotent(t *testing.T) {
	runner := newFakeRunner()
	sess := session.New(context.Background())
	exec := NewExecutor(runner, sess)

	h, res, err := exec.acquire(context.Background(), CreateSpec{Image: "img"})
	require.NoError(t, err)
	require.Len(t, sess.Pending(), 1)

	require.NoError(t, res.Release(context.Background()))
	require.NoError(t, res.Release(context.Background()))
	require.NoError(t, sess.Teardown(context.Background()))

	assert.Equal(t, []string{h.ID}, runner.destroyed)
}

func TestSessionTeardownReleasesLiveContainer(t *testing.T) {
	runner := newFakeRunner()
	sess := session.New(context.Background())
	exec := NewExecutor(runner, sess)

	_, _, err := exec.acquire(context.Background(), CreateSpec{Image: "img"})
	require.NoError(t, err)
	sess.Trip()
	require.NoError(t, sess.Teardown(context.Background()))
	assert.Len(t, runner.destroyed, 1)
}

func TestExecuteCreateFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.createErr = errors.New("no space left")
	_, err := NewExecutor(runner, nil).Execute(context.Background(), newRequest(t))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategorySandbox))
	assert.Empty(t, runner.destroyed)
}

func TestExecuteRejectsRelativeMount(t *testing.T) {
	req := newRequest(t)
	req.MountPath = "relative/dir"
	_, err := NewExecutor(newFakeRunner(), nil).Execute(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestExtractFromImage(t *testing.T) {
	runner := newFakeRunner()
	runner.files["/work/target/deploy/prog.so"] = []byte{9, 9, 0}
	dst := t.TempDir()

	art, err := NewExecutor(runner, nil).ExtractFromImage(context.Background(), "img", "target/deploy/prog.so", dst, Limits{})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 0}, art.Bytes)
	assert.Len(t, runner.destroyed, 1)
	assert.Empty(t, runner.created[0].MountSource)
}
