package verify

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
	"git.home.luguber.info/inful/verifybuild/internal/remote"
	"git.home.luguber.info/inful/verifybuild/internal/sandbox"
	"git.home.luguber.info/inful/verifybuild/internal/session"
	"git.home.luguber.info/inful/verifybuild/internal/toolchain"
)

func testTable() *toolchain.Table {
	return toolchain.NewTable(
		toolchain.Image{Version: toolchain.V(1, 16, 0), Reference: "builder:v1.16.0"},
		toolchain.Image{Version: toolchain.V(1, 16, 10), Reference: "builder:v1.16.10"},
	)
}

type harness struct {
	runner   *fakeRunner
	chain    *fakeChain
	cloner   *fakeCloner
	verifier *Verifier
	tmp      string
}

func newHarness(t *testing.T, artifact, onChain []byte, files map[string]string) *harness {
	t.Helper()
	sess := session.New(context.Background())
	h := &harness{
		runner: &fakeRunner{artifact: artifact, library: "alpha"},
		chain:  newFakeChain(t, onChain),
		cloner: &fakeCloner{files: files},
		tmp:    t.TempDir(),
	}
	builder := NewBuilder(testTable(), sandbox.NewExecutor(h.runner, sess), sandbox.Limits{})
	h.verifier = NewVerifier(builder, h.chain, sess).
		WithTempDir(h.tmp).
		WithCloner(func(dir string) Cloner { h.cloner.dir = dir; return h.cloner })
	return h
}

func assertNoWorkspaces(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompareIgnoresTrailingPadding(t *testing.T) {
	v := Compare([]byte{0x01, 0x02, 0x00, 0x00}, []byte{0x01, 0x02})
	assert.True(t, v.Match)
	assert.Equal(t, v.BuiltHash, v.OnChainHash)

	v = Compare([]byte{0x01, 0x02}, []byte{0x01, 0x03})
	assert.False(t, v.Match)
}

func TestVerifyRepoMatch(t *testing.T) {
	h := newHarness(t, []byte{0x01, 0x02, 0x00, 0x00}, []byte{0x01, 0x02, 0x00}, crateFiles("", "alpha"))

	res, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha.git",
		ProgramID: targetProgram,
	})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Match)
	assert.Equal(t, "alpha", res.Library)
	assert.Equal(t, "builder:v1.16.0", res.Image)
	assert.Equal(t, uint64(4242), res.DeployedSlot)
	assert.Equal(t, 1, h.runner.destroyed)
	assert.Equal(t, []string{"https://github.com/acme/alpha.git"}, h.cloner.urls)
	assertNoWorkspaces(t, filepath.Join(h.tmp, "verifybuild"))
}

func TestVerifyRepoMismatch(t *testing.T) {
	h := newHarness(t, []byte{0x01, 0x02}, []byte{0x09}, crateFiles("", "alpha"))

	res, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		ProgramID: targetProgram,
	})
	require.NoError(t, err)
	assert.False(t, res.Verdict.Match)
	assert.NotEqual(t, res.Verdict.BuiltHash, res.Verdict.OnChainHash)
}

func TestVerifyRepoMountPath(t *testing.T) {
	h := newHarness(t, []byte{0x07}, []byte{0x07}, crateFiles("sub/", "alpha"))

	res, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/mono",
		ProgramID: targetProgram,
		MountPath: "sub",
		Library:   "alpha",
	})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Match)
	assert.Equal(t, "mono", filepath.Base(filepath.Dir(h.runner.mount)))
	assert.Equal(t, "sub", filepath.Base(h.runner.mount))
}

func TestVerifyRepoRejectsEscapingMountPath(t *testing.T) {
	h := newHarness(t, nil, []byte{0x01}, crateFiles("", "alpha"))

	_, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		ProgramID: targetProgram,
		MountPath: "../elsewhere",
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Empty(t, h.cloner.urls)
}

func TestVerifyRepoAmbiguousLibrary(t *testing.T) {
	h := newHarness(t, []byte{0x01}, []byte{0x01}, crateFiles("", "alpha", "beta"))

	_, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		ProgramID: targetProgram,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, toolchain.ErrAmbiguousLibrary)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Empty(t, h.runner.execs)
	assertNoWorkspaces(t, filepath.Join(h.tmp, "verifybuild"))
}

func TestVerifyRepoProgramNotDeployed(t *testing.T) {
	h := newHarness(t, []byte{0x01}, nil, crateFiles("", "alpha"))

	res, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		ProgramID: targetProgram,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ledger.ErrProgramNotDeployed)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestVerifyRepoAccountNotFound(t *testing.T) {
	h := newHarness(t, []byte{0x01}, []byte{0x01}, crateFiles("", "alpha"))
	other := ledger.MustPublicKey("9VWiUUhgNoRwTH5NVehYJEDwcotwYX3VgW4MChiHPAqU")

	_, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		ProgramID: other,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.NotErrorIs(t, err, ledger.ErrProgramNotDeployed)
}

func TestVerifyRepoCurrentDir(t *testing.T) {
	h := newHarness(t, []byte{0x05}, []byte{0x05}, crateFiles("", "alpha"))
	wd := t.TempDir()

	res, err := h.verifier.VerifyRepo(context.Background(), RepoOptions{
		RepoURL:    "https://github.com/acme/alpha",
		ProgramID:  targetProgram,
		CurrentDir: true,
		WorkDir:    wd,
	})
	require.NoError(t, err)
	assert.True(t, res.Verdict.Match)
	assert.Equal(t, wd, filepath.Dir(h.cloner.dir))
	assert.True(t, strings.HasPrefix(filepath.Base(h.cloner.dir), "."))
	assertNoWorkspaces(t, wd)
}

func TestVerifyRepoInterrupted(t *testing.T) {
	h := newHarness(t, []byte{0x01}, []byte{0x01}, crateFiles("", "alpha"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.verifier.VerifyRepo(ctx, RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		ProgramID: targetProgram,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryInterrupted))
	assert.Empty(t, h.cloner.urls)
	assertNoWorkspaces(t, filepath.Join(h.tmp, "verifybuild"))
}

func TestUploadArgs(t *testing.T) {
	got := UploadArgs(RepoOptions{
		MountPath: "programs",
		BaseImage: "img:1",
		BPF:       true,
		CargoArgs: []string{"--features", "prod"},
	}, "alpha")
	assert.Equal(t, []string{
		"--mount-path", "programs",
		"--library-name", "alpha",
		"--base-image", "img:1",
		"--bpf",
		"--", "--features", "prod",
	}, got)

	assert.Equal(t, []string{"--library-name", "alpha"}, UploadArgs(RepoOptions{}, "alpha"))
}

func TestBuildWithoutLibrary(t *testing.T) {
	runner := &fakeRunner{}
	builder := NewBuilder(testTable(), sandbox.NewExecutor(runner, nil), sandbox.Limits{})
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.lock"), []byte(lockfile), 0o600))

	res, err := builder.Build(context.Background(), BuildOptions{MountPath: root})
	require.NoError(t, err)
	assert.Nil(t, res.Artifact)
	assert.Empty(t, res.Hash)
	assert.Equal(t, "builder:v1.16.0", res.Selection.Image)
	assert.Equal(t, 1, runner.destroyed)
}

func TestBuildWithoutLockfile(t *testing.T) {
	builder := NewBuilder(testTable(), sandbox.NewExecutor(&fakeRunner{}, nil), sandbox.Limits{})

	_, err := builder.Build(context.Background(), BuildOptions{MountPath: t.TempDir()})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.lock"), []byte("version = 3\n"), 0o600))
	_, err = builder.Build(context.Background(), BuildOptions{MountPath: root})
	assert.ErrorIs(t, err, toolchain.ErrNoLockfileVersion)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestVerifyImage(t *testing.T) {
	h := newHarness(t, nil, []byte{0x0a, 0x0b}, nil)
	h.runner.files = map[string][]byte{"/work/target/deploy/prog.so": {0x0a, 0x0b, 0x00}}

	v, err := h.verifier.VerifyImage(context.Background(), ImageOptions{
		Image:          "acme/prog:1",
		ExecutablePath: "target/deploy/prog.so",
		ProgramID:      targetProgram,
	})
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, 1, h.runner.destroyed)
	assertNoWorkspaces(t, filepath.Join(h.tmp, "verifybuild"))
}

func TestBufferHash(t *testing.T) {
	c := newFakeChain(t, []byte{0x01})
	buffer := ledger.MustPublicKey("9VWiUUhgNoRwTH5NVehYJEDwcotwYX3VgW4MChiHPAqU")
	data := []byte{1, 0, 0, 0, 1}
	data = append(data, make([]byte, ledger.BufferHeaderSize-5)...)
	data = append(data, 0x01, 0x00)
	c.accounts[buffer] = &ledger.Account{Owner: ledger.UpgradeableLoaderID, Data: data}

	got, err := BufferHash(context.Background(), c, buffer)
	require.NoError(t, err)
	want, _, err := ProgramHash(context.Background(), c, targetProgram)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRemoteVerifyRequiresMainnet(t *testing.T) {
	c := newFakeChain(t, []byte{0x01})
	c.genesis = "devnet"
	farm := &fakeFarm{}

	_, err := NewRemoteVerifier(c, farm, nil).Verify(context.Background(), RepoOptions{RepoURL: "u", ProgramID: targetProgram})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Empty(t, farm.submitted)
}

func TestRequireMainnetCancelledIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RequireMainnet(ctx, newFakeChain(t, []byte{0x01}))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.HasCategory(err, errors.CategoryInterrupted))
	assert.False(t, errors.HasCategory(err, errors.CategoryLedger))
}

func TestRemoteVerifyCompleted(t *testing.T) {
	farm := &fakeFarm{jobs: []remote.Job{
		{Status: remote.StatusInProgress},
		{Status: remote.StatusCompleted, ExecutableHash: "abc", OnChainHash: "abc"},
	}}
	var signals []bool
	rv := NewRemoteVerifier(newFakeChain(t, []byte{0x01}), farm, nil).
		WithInterval(time.Millisecond).
		WithIndicator(func(ctx context.Context, done <-chan bool) {
			select {
			case ok := <-done:
				signals = append(signals, ok)
			case <-ctx.Done():
			}
		})

	out, err := rv.Verify(context.Background(), RepoOptions{
		RepoURL:   "https://github.com/acme/alpha",
		Commit:    "abc123",
		ProgramID: targetProgram,
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", out.RequestID)
	assert.True(t, out.Job.Match())
	assert.Equal(t, 2, farm.polls)
	assert.Equal(t, []bool{true}, signals)

	require.Len(t, farm.submitted, 1)
	req := farm.submitted[0]
	require.NotNil(t, req.CommitHash)
	assert.Equal(t, "abc123", *req.CommitHash)
	assert.Nil(t, req.LibName)
	assert.NotNil(t, req.CargoArgs)
}

func TestRemoteVerifyFailedJob(t *testing.T) {
	farm := &fakeFarm{jobs: []remote.Job{{Status: remote.StatusFailed, Message: "build broke"}}}

	out, err := NewRemoteVerifier(newFakeChain(t, []byte{0x01}), farm, nil).
		WithInterval(time.Millisecond).
		Verify(context.Background(), RepoOptions{RepoURL: "u", ProgramID: targetProgram})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrJobFailed)
	require.NotNil(t, out)
	assert.Equal(t, remote.StatusFailed, out.Job.Status)
	assert.Equal(t, 1, farm.polls)
}

func TestRemoteVerifyAlreadyProcessed(t *testing.T) {
	farm := &fakeFarm{submitErr: errors.NewError(errors.CategoryAlreadyExists, "verification already processed").
		WithCause(remote.ErrAlreadyProcessed).Info().
		WithContext("detail", "seen before").Build()}

	out, err := NewRemoteVerifier(newFakeChain(t, []byte{0x01}), farm, nil).
		Verify(context.Background(), RepoOptions{RepoURL: "u", ProgramID: targetProgram})
	require.NoError(t, err)
	assert.True(t, out.AlreadyProcessed)
	assert.Equal(t, "seen before", out.Detail)
	assert.Equal(t, "https://farm.test/status/"+targetProgram.String(), out.StatusURL)
	assert.Zero(t, farm.polls)
}
