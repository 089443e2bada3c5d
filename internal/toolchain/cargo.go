package toolchain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// SDKPackage is the lockfile entry whose version selects the build image.
const SDKPackage = "solana-program"

var (
	// ErrLibraryNotFound means no manifest declares the requested library.
	ErrLibraryNotFound = errors.New("library not found in source tree")
	// ErrAmbiguousLibrary means several manifests declare libraries and none was named.
	ErrAmbiguousLibrary = errors.New("multiple libraries found, specify one explicitly")
)

type lockfile struct {
	Package []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

// LockfileVersion returns the version of pkg pinned in the Cargo.lock at path.
// The first entry with a well-formed version wins.
func LockfileVersion(path, pkg string) (Version, error) {
	var lf lockfile
	if _, err := toml.DecodeFile(path, &lf); err != nil {
		return Version{}, fmt.Errorf("read lockfile %s: %w", path, err)
	}
	for _, p := range lf.Package {
		if p.Name != pkg {
			continue
		}
		if v, err := ParseVersion(p.Version); err == nil {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %s in %s", ErrNoLockfileVersion, pkg, path)
}

type manifest struct {
	Lib *struct {
		Name string `toml:"name"`
	} `toml:"lib"`
	Package *struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// Library is a crate that declares an explicit [lib] name.
type Library struct {
	Name string
	// ManifestPath is relative to the scanned root, using forward slashes.
	ManifestPath string
}

// Dir returns the crate directory relative to the scanned root ("" for the root itself).
func (l Library) Dir() string {
	d := filepath.ToSlash(filepath.Dir(filepath.FromSlash(l.ManifestPath)))
	if d == "." {
		return ""
	}
	return d
}

// LibName reads the [lib] name from a single Cargo.toml.
func LibName(manifestPath string) (string, error) {
	var m manifest
	if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
		return "", fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	if m.Lib == nil || m.Lib.Name == "" {
		return "", fmt.Errorf("%s has no [lib] name", manifestPath)
	}
	return m.Lib.Name, nil
}

// FindLibraries walks root and returns every crate with a [lib] name, sorted
// by manifest path. Build output and VCS directories are skipped, as are
// manifests that fail to parse.
func FindLibraries(root string) ([]Library, error) {
	var libs []Library
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "target", ".git", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != "Cargo.toml" {
			return nil
		}
		name, err := LibName(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		libs = append(libs, Library{Name: name, ManifestPath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s for manifests: %w", root, err)
	}
	slices.SortFunc(libs, func(a, b Library) int { return strings.Compare(a.ManifestPath, b.ManifestPath) })
	return libs, nil
}

// SelectLibrary picks the library to build. With a name, the first manifest
// declaring it wins. Without one, exactly one library must exist.
func SelectLibrary(libs []Library, name string) (Library, error) {
	if name != "" {
		for _, l := range libs {
			if l.Name == name {
				return l, nil
			}
		}
		return Library{}, fmt.Errorf("%w: %s", ErrLibraryNotFound, name)
	}
	switch len(libs) {
	case 0:
		return Library{}, ErrLibraryNotFound
	case 1:
		return libs[0], nil
	default:
		names := make([]string, len(libs))
		for i, l := range libs {
			names[i] = l.Name
		}
		return Library{}, fmt.Errorf("%w: %s", ErrAmbiguousLibrary, strings.Join(names, ", "))
	}
}

// HasLockfile reports whether dir contains a Cargo.lock.
func HasLockfile(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "Cargo.lock"))
	return err == nil
}
