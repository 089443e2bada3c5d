package toolchain

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/verifybuild/internal/logfields"
)

// Selection is the image chosen for a build. Version is the toolchain the
// image provides (zero for a caller-supplied image); Requested is the version
// pinned in Cargo.lock.
type Selection struct {
	Image     string
	Version   Version
	Requested Version
	Exact     bool
	Legacy    bool
}

// SelectOptions captures the inputs that override lockfile-driven selection.
type SelectOptions struct {
	BaseImage string
	BPF       bool
}

// Select determines the build image for the source tree at mountPath. The
// tree must pin the SDK in Cargo.lock even when the image is overridden,
// since the pinned version also selects the dependency-locking flags.
// An explicit base image wins; otherwise the legacy BPF image when requested;
// otherwise the pinned version is resolved against the table.
func (t *Table) Select(ctx context.Context, mountPath string, opts SelectOptions) (Selection, error) {
	want, err := LockfileVersion(filepath.Join(mountPath, "Cargo.lock"), SDKPackage)
	if err != nil {
		return Selection{}, err
	}
	if opts.BaseImage != "" {
		return Selection{Image: opts.BaseImage, Requested: want, Exact: true}, nil
	}
	if opts.BPF {
		v, _ := ParseVersion(LegacyBPFVersion)
		return Selection{Image: LegacyBPFImage, Version: v, Requested: want, Exact: true, Legacy: true}, nil
	}
	res, err := t.Resolve(want)
	if err != nil {
		return Selection{}, err
	}
	if !res.Exact {
		slog.WarnContext(ctx, "No image for locked toolchain version, using nearest release",
			logfields.Version(want.String()),
			slog.String("substitute", res.Image.Version.String()),
			logfields.Image(res.Image.Reference))
	}
	return Selection{
		Image:     res.Image.Reference,
		Version:   res.Image.Version,
		Requested: want,
		Exact:     res.Exact,
	}, nil
}
