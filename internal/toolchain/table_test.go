package toolchain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("v1.18.26")
	require.NoError(t, err)
	assert.Equal(t, V(1, 18, 26), v)
	assert.Equal(t, "1.18.26", v.String())
	assert.Equal(t, "v1.18.26", v.Tag())

	for _, bad := range []string{"", "1.18", "1.18.x", "1.2.3.4", "1.18.0-beta"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestVersionCompare(t *testing.T) {
	assert.True(t, V(1, 16, 9).Less(V(1, 16, 10)))
	assert.True(t, V(1, 18, 26).Less(V(2, 0, 0)))
	assert.Equal(t, 0, V(1, 17, 3).Compare(V(1, 17, 3)))
	assert.Equal(t, 1, V(1, 17, 0).Compare(V(1, 16, 99)))
}

func TestResolveExactMatch(t *testing.T) {
	table := NewTable(
		Image{Version: V(1, 16, 0), Reference: "img:1.16.0"},
		Image{Version: V(1, 16, 10), Reference: "img:1.16.10"},
	)
	res, err := table.Resolve(V(1, 16, 10))
	require.NoError(t, err)
	assert.True(t, res.Exact)
	assert.Equal(t, "img:1.16.10", res.Image.Reference)
}

func TestResolvePrefersNearestLower(t *testing.T) {
	table := NewTable(
		Image{Version: V(1, 16, 10), Reference: "img:1.16.10"},
		Image{Version: V(1, 16, 0), Reference: "img:1.16.0"},
	)
	res, err := table.Resolve(V(1, 16, 3))
	require.NoError(t, err)
	assert.False(t, res.Exact)
	assert.Equal(t, V(1, 16, 0), res.Image.Version)
}

func TestResolveFallsBackToNearestHigher(t *testing.T) {
	table := NewTable(
		Image{Version: V(1, 17, 0), Reference: "img:1.17.0"},
		Image{Version: V(1, 18, 0), Reference: "img:1.18.0"},
	)
	res, err := table.Resolve(V(1, 14, 2))
	require.NoError(t, err)
	assert.False(t, res.Exact)
	assert.Equal(t, V(1, 17, 0), res.Image.Version)
}

func TestResolveAboveNewestUsesNewest(t *testing.T) {
	table := NewTable(Image{Version: V(1, 17, 0)}, Image{Version: V(1, 18, 0)})
	res, err := table.Resolve(V(9, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, V(1, 18, 0), res.Image.Version)
}

func TestResolveEmptyTable(t *testing.T) {
	_, err := NewTable().Resolve(V(1, 18, 0))
	require.ErrorIs(t, err, ErrNoCompatibleImage)
}

func TestResolveIsDeterministicAcrossInsertionOrder(t *testing.T) {
	images := []Image{
		{Version: V(2, 0, 3), Reference: "a"},
		{Version: V(1, 18, 9), Reference: "b"},
		{Version: V(1, 17, 31), Reference: "c"},
	}
	forward := NewTable(images...)
	backward := NewTable(images[2], images[1], images[0])
	for _, v := range []Version{V(1, 17, 0), V(1, 18, 10), V(3, 0, 0), V(1, 18, 9)} {
		a, errA := forward.Resolve(v)
		b, errB := backward.Resolve(v)
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, a, b, v.String())
	}
}

func TestNewTableDeduplicatesLaterWins(t *testing.T) {
	table := NewTable(
		Image{Version: V(1, 18, 0), Reference: "old"},
		Image{Version: V(1, 18, 0), Reference: "new"},
	)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, "new", table.Images()[0].Reference)
}

func TestDefaultTableIsSortedAndTagged(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)
	require.Positive(t, table.Len())

	images := table.Images()
	for i := 1; i < len(images); i++ {
		assert.True(t, images[i-1].Version.Less(images[i].Version))
	}
	for _, img := range images {
		assert.True(t, strings.HasSuffix(img.Reference, ":"+img.Version.String()), img.Reference)
	}
}

func TestLoadTableDigestAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.yaml")
	content := `repository: example/builder
images:
  - version: 1.18.26
    digest: sha256:abc
  - version: 9.9.9
    image: custom/image:latest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	override, err := LoadTable(path)
	require.NoError(t, err)

	base := NewTable(Image{Version: V(1, 18, 26), Reference: "base:1.18.26"}, Image{Version: V(1, 17, 0), Reference: "base:1.17.0"})
	merged := base.Merge(override)
	require.Equal(t, 3, merged.Len())

	res, err := merged.Resolve(V(1, 18, 26))
	require.NoError(t, err)
	assert.Equal(t, "example/builder@sha256:abc", res.Image.Reference)

	res, err = merged.Resolve(V(9, 9, 9))
	require.NoError(t, err)
	assert.Equal(t, "custom/image:latest", res.Image.Reference)
}

func TestLoadTableRejectsBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.yaml")
	require.NoError(t, os.WriteFile(path, []byte("images:\n  - version: one\n"), 0o600))
	_, err := LoadTable(path)
	require.Error(t, err)
}
