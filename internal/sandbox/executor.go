package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/metrics"
	"git.home.luguber.info/inful/verifybuild/internal/session"
	"git.home.luguber.info/inful/verifybuild/internal/toolchain"
)

// Request is one build invocation.
type Request struct {
	// MountPath is the absolute host path of the source tree containing Cargo.lock.
	MountPath string
	// Library selects the artifact to extract. Empty builds without extracting.
	Library string
	// ManifestPath is the Cargo.toml declaring Library, relative to MountPath.
	ManifestPath string
	Image        string
	// Toolchain is the SDK version pinned in Cargo.lock.
	Toolchain toolchain.Version
	BPF       bool
	CargoArgs []string
	Limits    Limits
}

func (r Request) validate() error {
	if r.MountPath == "" {
		return errors.ValidationError("build request has no mount path").Build()
	}
	if !filepath.IsAbs(r.MountPath) {
		return errors.ValidationError("mount path must be absolute").WithContext("path", r.MountPath).Build()
	}
	if r.Image == "" {
		return errors.ValidationError("build request has no image").Build()
	}
	return nil
}

// Executor runs builds through a Runner.
type Executor struct {
	runner   Runner
	session  *session.Session
	recorder metrics.Recorder
	observer func(from, to State)
	now      func() time.Time
}

// NewExecutor returns an executor that registers containers with sess.
func NewExecutor(runner Runner, sess *session.Session) *Executor {
	if sess == nil {
		sess = session.New(context.Background())
	}
	return &Executor{
		runner:   runner,
		session:  sess,
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
}

// WithRecorder sets the metrics recorder.
func (e *Executor) WithRecorder(r metrics.Recorder) *Executor {
	if r != nil {
		e.recorder = r
	}
	return e
}

// WithObserver registers a callback for every state transition.
func (e *Executor) WithObserver(fn func(from, to State)) *Executor {
	e.observer = fn
	return e
}

// checkpoint returns an interruption error once the session has tripped or ctx is done.
func (e *Executor) checkpoint(ctx context.Context) error {
	if err := e.session.Checkpoint(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.InterruptedError("build cancelled").WithCause(ctx.Err()).Build()
	}
	return nil
}

// acquire creates an environment and registers it for teardown.
func (e *Executor) acquire(ctx context.Context, spec CreateSpec) (Handle, *session.Resource, error) {
	h, err := e.runner.Create(ctx, spec)
	if err != nil {
		return Handle{}, nil, errors.WrapError(err, errors.CategorySandbox, "create build container").
			WithContext("image", spec.Image).Build()
	}
	res := e.session.Register(session.KindContainer, h.ID, func(ctx context.Context) error {
		err := e.runner.Destroy(ctx, h)
		e.recorder.IncTeardown(string(session.KindContainer), err == nil)
		return err
	})
	return h, res, nil
}

// release tears down res even when ctx is already cancelled and folds any
// failure into err.
func release(ctx context.Context, res *session.Resource, err *error) {
	if res == nil {
		return
	}
	if relErr := res.Release(context.WithoutCancel(ctx)); relErr != nil {
		*err = stderrors.Join(*err, fmt.Errorf("destroy container %s: %w", res.ID, relErr))
	}
}

// Execute builds the program described by req. The container is destroyed
// before Execute returns, whatever the outcome.
func (e *Executor) Execute(ctx context.Context, req Request) (art *Artifact, err error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	run := &execution{state: StateCreated, observer: e.observer}
	start := e.now()
	defer func() {
		final := StateSucceeded
		if err != nil {
			final = StateFailed
			if errors.HasCategory(err, errors.CategoryInterrupted) || e.session.Tripped() {
				final = StateCancelled
			}
		}
		if !run.state.Terminal() {
			_ = run.transition(final)
		}
		e.recorder.ObserveBuildDuration(e.now().Sub(start), metrics.OutcomeFor(err, final == StateCancelled))
	}()

	if err := e.checkpoint(ctx); err != nil {
		return nil, err
	}

	workdir, err := e.runner.WorkDir(ctx, req.Image)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategorySandbox, "read image working directory").
			WithContext("image", req.Image).Build()
	}

	reportLimits(ctx, req.Limits)
	h, res, err := e.acquire(ctx, CreateSpec{
		Image:       req.Image,
		MountSource: req.MountPath,
		MountTarget: workdir,
		Limits:      req.Limits,
		Command:     []string{"bash"},
	})
	if err != nil {
		return nil, err
	}
	defer release(ctx, res, &err)
	slog.InfoContext(ctx, "Build container started", logfields.ContainerID(h.ID), logfields.Image(req.Image))

	if err := e.checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := run.transition(StateRunning); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "build state").Build()
	}

	if NeedsPrefetch(req.Toolchain) {
		slog.InfoContext(ctx, "Fetching build dependencies", logfields.Version(req.Toolchain.String()))
		if err := e.runner.Exec(ctx, h, workdir, PrefetchArgs()...); err != nil {
			if cpErr := e.checkpoint(ctx); cpErr != nil {
				return nil, cpErr
			}
			return nil, errors.WrapError(err, errors.CategoryBuild, "fetch dependencies").Build()
		}
	}

	manifest := ""
	buildDir := workdir
	if req.ManifestPath != "" {
		manifest = path.Join(workdir, req.ManifestPath)
		buildDir = path.Dir(manifest)
	}

	if err := e.checkpoint(ctx); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Building program", logfields.Path(buildDir), logfields.Version(req.Toolchain.String()))
	if err := e.runner.Exec(ctx, h, buildDir, BuildArgs(req.BPF, req.Toolchain, manifest, req.CargoArgs)...); err != nil {
		if cpErr := e.checkpoint(ctx); cpErr != nil {
			return nil, cpErr
		}
		return nil, errors.WrapError(err, errors.CategoryBuild, "build program").
			WithContext("image", req.Image).Build()
	}
	if err := e.checkpoint(ctx); err != nil {
		return nil, err
	}

	if req.Library == "" {
		return nil, run.transition(StateSucceeded)
	}
	artifactPath, err := FindArtifact(filepath.Join(req.MountPath, filepath.FromSlash(DeployDir)), req.Library)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryBuild, "locate artifact").Build()
	}
	art, err = ReadArtifact(artifactPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read artifact").Build()
	}
	slog.InfoContext(ctx, "Build finished", logfields.Path(art.Path), slog.String("size", humanize.IBytes(art.Size())))
	if err := run.transition(StateSucceeded); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "build state").Build()
	}
	return art, nil
}

// ExtractFromImage copies the file at src (relative to the image working
// directory) out of a container started from image and reads it into dstDir.
func (e *Executor) ExtractFromImage(ctx context.Context, image, src, dstDir string, limits Limits) (art *Artifact, err error) {
	if err := e.checkpoint(ctx); err != nil {
		return nil, err
	}
	workdir, err := e.runner.WorkDir(ctx, image)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategorySandbox, "read image working directory").
			WithContext("image", image).Build()
	}
	reportLimits(ctx, limits)
	h, res, err := e.acquire(ctx, CreateSpec{Image: image, Limits: limits})
	if err != nil {
		return nil, err
	}
	defer release(ctx, res, &err)

	if err := e.checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create output directory").Build()
	}
	dst := filepath.Join(dstDir, "program.so")
	if err := e.runner.CopyOut(ctx, h, path.Join(workdir, src), dst); err != nil {
		return nil, errors.WrapError(err, errors.CategorySandbox, "copy executable out of image").
			WithContext("path", src).Build()
	}
	art, err = ReadArtifact(dst)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read extracted executable").Build()
	}
	return art, nil
}
