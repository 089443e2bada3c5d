package verify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/verifybuild/internal/eventstore"
	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/git"
	"git.home.luguber.info/inful/verifybuild/internal/ledger"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/session"
	"git.home.luguber.info/inful/verifybuild/internal/workspace"
)

// Cloner fetches a repository at a commit.
type Cloner interface {
	Clone(ctx context.Context, url, commit string) (*git.Checkout, error)
}

// ClonerFactory returns a Cloner writing into dir.
type ClonerFactory func(dir string) Cloner

// GitCloner is the default ClonerFactory.
func GitCloner(recorder metrics.Recorder) ClonerFactory {
	return func(dir string) Cloner {
		return git.NewClient(dir).WithRecorder(recorder)
	}
}

// RepoOptions describes a verify-from-repo run.
type RepoOptions struct {
	RepoURL   string
	Commit    string
	ProgramID ledger.PublicKey
	// MountPath is relative to the repository root.
	MountPath string
	Library   string
	BaseImage string
	BPF       bool
	CargoArgs []string
	// CurrentDir clones into a hidden directory under WorkDir instead of the
	// system temp directory.
	CurrentDir bool
	WorkDir    string
}

// RepoResult is the outcome of a verify-from-repo run.
type RepoResult struct {
	Verdict Verdict
	Commit  string
	Library string
	Image   string
	// DeployedSlot is the last deployment slot of the program.
	DeployedSlot uint64
}

// UploadArgs returns the build arguments recorded in provenance for opts
// verified with library.
func UploadArgs(opts RepoOptions, library string) []string {
	var args []string
	if opts.MountPath != "" {
		args = append(args, "--mount-path", opts.MountPath)
	}
	args = append(args, "--library-name", library)
	if opts.BaseImage != "" {
		args = append(args, "--base-image", opts.BaseImage)
	}
	if opts.BPF {
		args = append(args, "--bpf")
	}
	if len(opts.CargoArgs) > 0 {
		args = append(args, "--")
		args = append(args, opts.CargoArgs...)
	}
	return args
}

// Verifier runs the local verification workflows.
type Verifier struct {
	builder   *Builder
	chain     ledger.AccountReader
	session   *session.Session
	newCloner ClonerFactory
	journal   *eventstore.Journal
	recorder  metrics.Recorder
	tempBase  string
}

// NewVerifier returns a verifier building with builder and reading on-chain
// data from chain.
func NewVerifier(builder *Builder, chain ledger.AccountReader, sess *session.Session) *Verifier {
	return &Verifier{
		builder:   builder,
		chain:     chain,
		session:   sess,
		newCloner: GitCloner(metrics.NoopRecorder{}),
		recorder:  metrics.NoopRecorder{},
	}
}

// WithCloner replaces the repository cloner.
func (v *Verifier) WithCloner(f ClonerFactory) *Verifier {
	if f != nil {
		v.newCloner = f
	}
	return v
}

// WithJournal records verdicts in j.
func (v *Verifier) WithJournal(j *eventstore.Journal) *Verifier { v.journal = j; return v }

// WithRecorder sets the metrics recorder.
func (v *Verifier) WithRecorder(r metrics.Recorder) *Verifier {
	if r != nil {
		v.recorder = r
	}
	return v
}

// WithTempDir sets the parent of scratch directories. Empty means the system
// temp directory.
func (v *Verifier) WithTempDir(dir string) *Verifier { v.tempBase = dir; return v }

func (v *Verifier) workspace(currentDir bool, workDir string) (*workspace.Manager, error) {
	if !currentDir {
		return workspace.NewManager(v.tempBase, v.session), nil
	}
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "read working directory").Build()
		}
		workDir = wd
	}
	return workspace.NewHiddenManager(workDir, v.session), nil
}

// cleanup removes ws even after cancellation and logs a failure rather than
// masking the workflow result.
func cleanup(ctx context.Context, ws *workspace.Manager) {
	if err := ws.Cleanup(context.WithoutCancel(ctx)); err != nil {
		slog.WarnContext(ctx, "Failed to remove workspace", logfields.Path(ws.Path()), logfields.Error(err))
	}
}

func (v *Verifier) checkpoint(ctx context.Context) error {
	if v.session != nil {
		if err := v.session.Checkpoint(); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return errors.InterruptedError("verification cancelled").WithCause(ctx.Err()).Build()
	}
	return nil
}

func (v *Verifier) fail(err error) error {
	if err != nil && !errors.HasCategory(err, errors.CategoryInterrupted) {
		v.recorder.IncVerification(metrics.VerificationError)
	}
	return err
}

// VerifyRepo clones opts.RepoURL, builds it deterministically and compares the
// executable with the program deployed at opts.ProgramID. The clone is
// removed before VerifyRepo returns.
func (v *Verifier) VerifyRepo(ctx context.Context, opts RepoOptions) (*RepoResult, error) {
	if opts.RepoURL == "" {
		return nil, errors.ValidationError("repository url is required").Build()
	}
	if filepath.IsAbs(opts.MountPath) || strings.HasPrefix(filepath.Clean(opts.MountPath), "..") {
		return nil, errors.ValidationError("mount path must be relative to the repository root").
			WithContext("mount_path", opts.MountPath).Build()
	}

	ws, err := v.workspace(opts.CurrentDir, opts.WorkDir)
	if err != nil {
		return nil, err
	}
	if err := ws.Create(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create workspace").Build()
	}
	defer cleanup(ctx, ws)

	if err := v.checkpoint(ctx); err != nil {
		return nil, err
	}
	co, err := v.newCloner(ws.Path()).Clone(ctx, opts.RepoURL, opts.Commit)
	if err != nil {
		if cpErr := v.checkpoint(ctx); cpErr != nil {
			return nil, cpErr
		}
		return nil, v.fail(err)
	}

	mount := filepath.Join(co.Path, opts.MountPath)
	lib, err := ResolveLibrary(mount, opts.Library)
	if err != nil {
		return nil, v.fail(err)
	}
	slog.InfoContext(ctx, "Verifying program", logfields.ProgramID(opts.ProgramID.String()),
		logfields.Commit(co.Commit), slog.String("library", lib.Name))

	built, err := v.builder.Build(ctx, BuildOptions{
		MountPath: mount,
		Library:   lib.Name,
		BaseImage: opts.BaseImage,
		BPF:       opts.BPF,
		CargoArgs: opts.CargoArgs,
	})
	if err != nil {
		return nil, v.fail(err)
	}
	if err := v.checkpoint(ctx); err != nil {
		return nil, err
	}

	onChain, pd, err := ProgramHash(ctx, v.chain, opts.ProgramID)
	if err != nil {
		return nil, v.fail(err)
	}

	verdict := NewVerdict(built.Hash, onChain)
	v.recorder.IncVerification(verdict.Result())
	v.journal.Record(ctx, eventstore.VerificationCompleted{
		ProgramID:      opts.ProgramID.String(),
		Source:         "repo",
		RepoURL:        opts.RepoURL,
		Commit:         co.Commit,
		Image:          built.Selection.Image,
		ExecutableHash: verdict.BuiltHash.String(),
		OnChainHash:    verdict.OnChainHash.String(),
		Match:          verdict.Match,
	})
	return &RepoResult{
		Verdict:      verdict,
		Commit:       co.Commit,
		Library:      lib.Name,
		Image:        built.Selection.Image,
		DeployedSlot: pd.Slot,
	}, nil
}
