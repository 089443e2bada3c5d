package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fakeRunner records calls and simulates a container engine on the host filesystem.
type fakeRunner struct {
	mu sync.Mutex

	workdir   string
	createErr error
	execErr   map[string]error // keyed by the first cargo subcommand word
	onExec    func(args []string)
	files     map[string][]byte // in-container path -> content for CopyOut

	created   []CreateSpec
	execs     [][]string
	execDirs  []string
	destroyed []string
	nextID    int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{workdir: "/work", execErr: map[string]error{}, files: map[string][]byte{}}
}

func (f *fakeRunner) WorkDir(context.Context, string) (string, error) { return f.workdir, nil }

func (f *fakeRunner) Create(_ context.Context, spec CreateSpec) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Handle{}, f.createErr
	}
	f.nextID++
	f.created = append(f.created, spec)
	return Handle{ID: "ctr-" + string(rune('0'+f.nextID))}, nil
}

func (f *fakeRunner) Exec(_ context.Context, _ Handle, dir string, args ...string) error {
	f.mu.Lock()
	f.execs = append(f.execs, args)
	f.execDirs = append(f.execDirs, dir)
	hook := f.onExec
	var err error
	for key, e := range f.execErr {
		if strings.Contains(strings.Join(args, " "), key) {
			err = e
		}
	}
	f.mu.Unlock()
	if hook != nil {
		hook(args)
	}
	return err
}

func (f *fakeRunner) CopyOut(_ context.Context, _ Handle, src, dst string) error {
	f.mu.Lock()
	data, ok := f.files[src]
	f.mu.Unlock()
	if !ok {
		return errors.New("no such file in container: " + src)
	}
	return os.WriteFile(dst, data, 0o600)
}

func (f *fakeRunner) Destroy(_ context.Context, h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, h.ID)
	return nil
}

func writeArtifact(root, library string, data []byte) error {
	dir := filepath.Join(root, "target", "deploy")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, library+".so"), data, 0o600)
}
