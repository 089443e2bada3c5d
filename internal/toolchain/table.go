package toolchain

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoCompatibleImage means the table holds no image that could stand in for the requested version.
	ErrNoCompatibleImage = errors.New("no compatible build image")
	// ErrNoLockfileVersion means the lockfile does not pin the SDK package.
	ErrNoLockfileVersion = errors.New("sdk version not found in lockfile")
)

// LegacyBPFImage is the image used for `cargo build-bpf` builds when no base image is given.
const (
	LegacyBPFImage   = "projectserum/build@sha256:75b75eab447ebcca1f471c98583d9b5d82c4be122c470852a022afcf9c98bead"
	LegacyBPFVersion = "1.13.5"
)

//go:embed images.yaml
var defaultImagesYAML []byte

// Image is an immutable build-environment image for one toolchain version.
type Image struct {
	Version   Version
	Reference string
}

// Table is an ordered, duplicate-free set of images.
type Table struct {
	images []Image
}

type imageFile struct {
	Repository string `yaml:"repository"`
	Images     []struct {
		Version string `yaml:"version"`
		Digest  string `yaml:"digest,omitempty"`
		Image   string `yaml:"image,omitempty"`
	} `yaml:"images"`
}

// NewTable builds a table from images in any order. Later duplicates win.
func NewTable(images ...Image) *Table {
	byVersion := make(map[Version]Image, len(images))
	for _, img := range images {
		byVersion[img.Version] = img
	}
	t := &Table{images: make([]Image, 0, len(byVersion))}
	for _, img := range byVersion {
		t.images = append(t.images, img)
	}
	slices.SortFunc(t.images, func(a, b Image) int { return a.Version.Compare(b.Version) })
	return t
}

// DefaultTable returns the table compiled into the binary.
func DefaultTable() (*Table, error) {
	return parseTable(defaultImagesYAML)
}

// LoadTable reads an images file in the same format as the embedded table.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image table: %w", err)
	}
	return parseTable(data)
}

func parseTable(data []byte) (*Table, error) {
	var f imageFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse image table: %w", err)
	}
	images := make([]Image, 0, len(f.Images))
	for _, entry := range f.Images {
		v, err := ParseVersion(entry.Version)
		if err != nil {
			return nil, fmt.Errorf("image table: %w", err)
		}
		ref := entry.Image
		switch {
		case ref != "":
		case entry.Digest != "":
			ref = f.Repository + "@" + entry.Digest
		default:
			ref = f.Repository + ":" + v.String()
		}
		images = append(images, Image{Version: v, Reference: ref})
	}
	return NewTable(images...), nil
}

// Merge returns a new table where entries from other replace entries with the same version.
func (t *Table) Merge(other *Table) *Table {
	if other == nil {
		return t
	}
	return NewTable(append(slices.Clone(t.images), other.images...)...)
}

// Len returns the number of images.
func (t *Table) Len() int { return len(t.images) }

// Images returns a copy of the ordered entries.
func (t *Table) Images() []Image { return slices.Clone(t.images) }

// Resolution is the outcome of a lookup.
type Resolution struct {
	Image Image
	// Exact is false when a neighbouring version was substituted.
	Exact bool
}

// Resolve finds the image for v: an exact match, else the nearest lower
// version, else the nearest higher one.
func (t *Table) Resolve(v Version) (Resolution, error) {
	idx, found := slices.BinarySearchFunc(t.images, v, func(img Image, target Version) int {
		return img.Version.Compare(target)
	})
	if found {
		return Resolution{Image: t.images[idx], Exact: true}, nil
	}
	// idx is the insertion point: images[idx-1] < v < images[idx].
	if idx > 0 {
		return Resolution{Image: t.images[idx-1]}, nil
	}
	if idx < len(t.images) {
		return Resolution{Image: t.images[idx]}, nil
	}
	return Resolution{}, fmt.Errorf("%w for version %s", ErrNoCompatibleImage, v)
}
