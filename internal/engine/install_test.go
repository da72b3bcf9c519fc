package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func fakeInstallation(t *testing.T) (string, Installation) {
	root := t.TempDir()
	inst := Installation{
		Executable:   touch(t, filepath.Join(root, "bin", "x64", "TidePredictor.exe")),
		Constituents: touch(t, filepath.Join(root, "data", "global_tide_constituents_height_0.125deg.dfs2")),
		Prepack:      touch(t, filepath.Join(root, "data", "Tide_Constituents", "prepack.dat")),
	}
	// decoy prepack outside Tide_Constituents
	touch(t, filepath.Join(root, "a", "prepack.dat"))
	return root, inst
}

func TestDiscover(t *testing.T) {
	root, want := fakeInstallation(t)
	got, err := Discover(root, Installation{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDiscoverExplicit(t *testing.T) {
	root, want := fakeInstallation(t)
	other := touch(t, filepath.Join(t.TempDir(), "custom.dfs2"))
	got, err := Discover(root, Installation{Constituents: other})
	require.NoError(t, err)
	assert.Equal(t, other, got.Constituents)
	assert.Equal(t, want.Executable, got.Executable)

	// fully explicit paths need no root
	_, err = Discover("", want)
	assert.NoError(t, err)
}

func TestDiscoverMissing(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "TidePredictor.exe"))
	_, err := Discover(root, Installation{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineNotFound))
	assert.Contains(t, err.Error(), root)
	assert.Contains(t, err.Error(), "tidal constituents file")

	_, err = Discover(filepath.Join(root, "nope"), Installation{})
	assert.True(t, errors.Is(err, ErrEngineNotFound))

	_, err = Discover("", Installation{Executable: "/x"})
	assert.True(t, errors.Is(err, ErrEngineNotFound))

	_, err = Discover("", Installation{Executable: root, Constituents: root, Prepack: root})
	assert.True(t, errors.Is(err, ErrEngineNotFound))
}
