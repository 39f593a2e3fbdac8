package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureStateDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, EnsureStateDirs(root))

	p := PathsFor(root)
	for _, dir := range []string{p.Store, p.Retention, p.Tel, p.Logs, p.Tmp} {
		fi, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, fi.IsDir())
	}
	// idempotent
	require.NoError(t, EnsureStateDirs(root))
}

func TestEnsureStateDirsRejectsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "store"), []byte("x"), 0o600))
	err := EnsureStateDirs(root)
	assert.ErrorContains(t, err, "not a directory")
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	target := t.TempDir()
	require.NoError(t, os.Symlink(target, filepath.Join(root, "store")))
	err := EnsureStateDirs(root)
	assert.ErrorContains(t, err, "symlink")
}

func TestDisk(t *testing.T) {
	d, err := Disk(t.TempDir())
	if err != nil {
		t.Skip(err)
	}
	assert.NotZero(t, d.Total)
	assert.LessOrEqual(t, d.Available, d.Total)
	assert.GreaterOrEqual(t, d.UsedPct(), 0.0)
}
