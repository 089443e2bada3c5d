package verify

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/verifybuild/internal/foundation/errors"
	"git.home.luguber.info/inful/verifybuild/internal/hashing"
	"git.home.luguber.info/inful/verifybuild/internal/logfields"
	"git.home.luguber.info/inful/verifybuild/internal/sandbox"
	"git.home.luguber.info/inful/verifybuild/internal/toolchain"
)

// BuildOptions describes a local deterministic build.
type BuildOptions struct {
	MountPath string
	// Library is the [lib] name to build and extract. Empty builds the whole
	// tree without extracting an artifact.
	Library   string
	BaseImage string
	BPF       bool
	CargoArgs []string
}

// BuildResult is a finished build.
type BuildResult struct {
	Selection toolchain.Selection
	Library   toolchain.Library
	// Artifact and Hash are unset when no library was requested.
	Artifact *sandbox.Artifact
	Hash     hashing.CanonicalHash
}

// Builder resolves the build image and runs the build in a sandbox.
type Builder struct {
	table    *toolchain.Table
	executor *sandbox.Executor
	limits   sandbox.Limits
}

// NewBuilder returns a builder using table for image resolution.
func NewBuilder(table *toolchain.Table, executor *sandbox.Executor, limits sandbox.Limits) *Builder {
	return &Builder{table: table, executor: executor, limits: limits}
}

func classifyToolchainError(err error) error {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.ValidationError("Cargo.lock not found; verifiable builds require a lockfile").WithCause(err).Build()
	case stderrors.Is(err, toolchain.ErrNoLockfileVersion):
		return errors.ValidationError("cannot determine toolchain version").WithCause(err).Build()
	case stderrors.Is(err, toolchain.ErrNoCompatibleImage):
		return errors.ValidationError("no compatible build image").WithCause(err).Build()
	case stderrors.Is(err, toolchain.ErrAmbiguousLibrary):
		return errors.ValidationError("multiple library targets found; pass --library-name").WithCause(err).Build()
	case stderrors.Is(err, toolchain.ErrLibraryNotFound):
		return errors.NotFoundError("library target not found").WithCause(err).Build()
	default:
		return errors.WrapError(err, errors.CategoryFileSystem, "read cargo metadata").Build()
	}
}

// ResolveLibrary finds the crate to build under mountPath. An empty name
// requires exactly one library target.
func ResolveLibrary(mountPath, name string) (toolchain.Library, error) {
	libs, err := toolchain.FindLibraries(mountPath)
	if err != nil {
		return toolchain.Library{}, classifyToolchainError(err)
	}
	lib, err := toolchain.SelectLibrary(libs, name)
	if err != nil {
		return toolchain.Library{}, classifyToolchainError(err)
	}
	return lib, nil
}

// Build runs a deterministic build of opts.MountPath.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	mount, err := filepath.Abs(opts.MountPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "resolve mount path").Build()
	}

	var lib toolchain.Library
	if opts.Library != "" {
		if lib, err = ResolveLibrary(mount, opts.Library); err != nil {
			return nil, err
		}
	}

	sel, err := b.table.Select(ctx, mount, toolchain.SelectOptions{BaseImage: opts.BaseImage, BPF: opts.BPF})
	if err != nil {
		return nil, classifyToolchainError(err)
	}
	slog.InfoContext(ctx, "Selected build image", logfields.Image(sel.Image), logfields.Version(sel.Requested.String()))

	art, err := b.executor.Execute(ctx, sandbox.Request{
		MountPath:    mount,
		Library:      lib.Name,
		ManifestPath: lib.ManifestPath,
		Image:        sel.Image,
		Toolchain:    sel.Requested,
		BPF:          opts.BPF,
		CargoArgs:    opts.CargoArgs,
		Limits:       b.limits,
	})
	if err != nil {
		return nil, err
	}

	res := &BuildResult{Selection: sel, Library: lib, Artifact: art}
	if art != nil {
		res.Hash = hashing.Normalize(art.Bytes)
	}
	return res, nil
}
