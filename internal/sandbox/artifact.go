package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	// ErrArtifactNotFound means the deploy directory holds no file for the library.
	ErrArtifactNotFound = errors.New("build artifact not found")
	// ErrAmbiguousArtifact means several files match the library.
	ErrAmbiguousArtifact = errors.New("multiple build artifacts match")
)

// DeployDir is where cargo places program binaries, relative to the mount.
const DeployDir = "target/deploy"

// Artifact is a built program binary.
type Artifact struct {
	Path  string
	Bytes []byte
}

// Size returns the artifact length in bytes.
func (a *Artifact) Size() uint64 { return uint64(len(a.Bytes)) }

// ArtifactName returns the file name produced for a library.
func ArtifactName(library string) string { return library + ".so" }

// FindArtifact searches deployDir for exactly one file named after library.
func FindArtifact(deployDir, library string) (string, error) {
	want := ArtifactName(library)
	var matches []string
	err := filepath.WalkDir(deployDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == want {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("search %s: %w", deployDir, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, want, deployDir)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %v", ErrAmbiguousArtifact, matches)
	}
}

// ReadArtifact loads the artifact at path.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return &Artifact{Path: path, Bytes: data}, nil
}
