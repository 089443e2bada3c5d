package verify

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/verifybuild/internal/git"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
	"git.home.luguber.info/inful/verifybuild/internal/remote"
	"git.home.luguber.info/inful/verifybuild/internal/sandbox"
)

var (
	targetProgram = ledger.MustPublicKey("EngB3ANqXh8nDFhzZYJkCfpCHWCHkTrJTCWKEuSFCh7B")
	mainnetHash   = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"
)

// fakeRunner writes the build output on the host when the cargo build runs.
type fakeRunner struct {
	mu        sync.Mutex
	artifact  []byte
	library   string
	files     map[string][]byte
	mount     string
	execs     [][]string
	destroyed int
}

func (f *fakeRunner) WorkDir(context.Context, string) (string, error) { return "/work", nil }

func (f *fakeRunner) Create(_ context.Context, spec sandbox.CreateSpec) (sandbox.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mount = spec.MountSource
	return sandbox.Handle{ID: "ctr-1"}, nil
}

func (f *fakeRunner) Exec(_ context.Context, _ sandbox.Handle, _ string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, args)
	if !strings.HasPrefix(strings.Join(args, " "), "cargo build-") || f.library == "" {
		return nil
	}
	dir := filepath.Join(f.mount, "target", "deploy")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, f.library+".so"), f.artifact, 0o600)
}

func (f *fakeRunner) CopyOut(_ context.Context, _ sandbox.Handle, src, dst string) error {
	data, ok := f.files[src]
	if !ok {
		return errors.New("no such file: " + src)
	}
	return os.WriteFile(dst, data, 0o600)
}

func (f *fakeRunner) Destroy(context.Context, sandbox.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return nil
}

// fakeChain serves a single upgradeable program.
type fakeChain struct {
	accounts map[ledger.PublicKey]*ledger.Account
	genesis  string
}

func newFakeChain(t *testing.T, executable []byte) *fakeChain {
	t.Helper()
	c := &fakeChain{accounts: map[ledger.PublicKey]*ledger.Account{}, genesis: mainnetHash}
	c.deploy(t, targetProgram, 4242, executable)
	return c
}

func (c *fakeChain) deploy(t *testing.T, program ledger.PublicKey, slot uint64, executable []byte) {
	t.Helper()
	dataAddr, err := ledger.ProgramDataAddress(program)
	require.NoError(t, err)
	prog := binary.LittleEndian.AppendUint32(nil, 2)
	prog = append(prog, dataAddr[:]...)
	c.accounts[program] = &ledger.Account{Owner: ledger.UpgradeableLoaderID, Executable: true, Data: prog}
	if executable == nil {
		return
	}
	pd := binary.LittleEndian.AppendUint32(nil, 3)
	pd = binary.LittleEndian.AppendUint64(pd, slot)
	pd = append(pd, make([]byte, ledger.ProgramDataHeaderSize-12)...)
	pd = append(pd, executable...)
	c.accounts[dataAddr] = &ledger.Account{Owner: ledger.UpgradeableLoaderID, Data: pd}
}

func (c *fakeChain) GetAccountInfo(_ context.Context, address ledger.PublicKey) (*ledger.Account, error) {
	acc, ok := c.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, address)
	}
	return acc, nil
}

func (c *fakeChain) GetGenesisHash(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.genesis, nil
}

// fakeCloner lays out a crate instead of cloning.
type fakeCloner struct {
	dir   string
	files map[string]string
	urls  []string
}

func (f *fakeCloner) Clone(_ context.Context, url, commit string) (*git.Checkout, error) {
	f.urls = append(f.urls, url)
	root := filepath.Join(f.dir, git.RepoName(url))
	for name, content := range f.files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, err
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			return nil, err
		}
	}
	if commit == "" {
		commit = "0123456789abcdef0123456789abcdef01234567"
	}
	return &git.Checkout{Path: root, Commit: commit}, nil
}

const lockfile = `version = 3

[[package]]
name = "solana-program"
version = "1.16.3"
`

func crateFiles(prefix string, libs ...string) map[string]string {
	files := map[string]string{prefix + "Cargo.lock": lockfile}
	for _, lib := range libs {
		files[prefix+"programs/"+lib+"/Cargo.toml"] = "[package]\nname = \"" + lib + "\"\n\n[lib]\nname = \"" + lib + "\"\n"
	}
	return files
}

// fakeFarm scripts the remote farm.
type fakeFarm struct {
	submitErr error
	submitted []remote.SubmitRequest
	jobs      []remote.Job
	polls     int
}

func (f *fakeFarm) Submit(_ context.Context, in remote.SubmitRequest) (*remote.SubmitResponse, error) {
	f.submitted = append(f.submitted, in)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &remote.SubmitResponse{Status: "accepted", RequestID: "req-1"}, nil
}

func (f *fakeFarm) Job(context.Context, string) (*remote.Job, error) {
	job := f.jobs[min(f.polls, len(f.jobs)-1)]
	f.polls++
	return &job, nil
}

func (f *fakeFarm) StatusURL(programID string) string {
	return "https://farm.test/status/" + programID
}
