package storage

import (
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_PathFor(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0o644, 0o755)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(d.Root(), "abc.png"), d.PathFor("abc", "png"))
	assert.Equal(t, filepath.Join(d.Root(), "abc.png"), d.PathFor("abc", ".png"))
	assert.Equal(t, filepath.Join(d.Root(), "abc"), d.PathFor("abc", ""))
	assert.Equal(t, filepath.Join(d.Root(), "passwd"), d.PathFor("../../etc/passwd", ""))
}

func TestDisk_CreateAppliesPermissions(t *testing.T) {
	old := syscall.Umask(0o077)
	defer syscall.Umask(old)

	root := filepath.Join(t.TempDir(), "uploads")
	d, err := NewDisk(root, 0o640, 0o750)
	require.NoError(t, err)

	p := filepath.Join(d.Root(), "nested", "f1.txt")
	f, err := d.Create(p)
	require.NoError(t, err)
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	st, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), st.Mode().Perm())

	for _, dir := range []string{root, filepath.Dir(p)} {
		st, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o750), st.Mode().Perm(), dir)
	}

	rf, info, err := d.Open(p)
	require.NoError(t, err)
	defer rf.Close()
	assert.Equal(t, int64(5), info.Size())
	b, err := io.ReadAll(rf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestDisk_ExistingParentsKeepTheirMode(t *testing.T) {
	old := syscall.Umask(0o077)
	defer syscall.Umask(old)

	base := t.TempDir()
	require.NoError(t, os.Chmod(base, 0o700))

	d, err := NewDisk(filepath.Join(base, "a", "b"), 0o644, 0o755)
	require.NoError(t, err)

	for _, dir := range []string{filepath.Join(base, "a"), d.Root()} {
		st, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), st.Mode().Perm(), dir)
	}
	st, err := os.Stat(base)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), st.Mode().Perm())
}

func TestDisk_CreateOutsideRoot(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0o644, 0o755)
	require.NoError(t, err)

	_, err = d.Create(filepath.Join(d.Root(), "..", "escape.txt"))
	assert.Error(t, err)
	assert.False(t, d.Contains(filepath.Join(d.Root(), "..")))
	assert.True(t, d.Contains(filepath.Join(d.Root(), "a", "b")))
}

func TestDisk_Remove(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 0o644, 0o755)
	require.NoError(t, err)

	p := d.PathFor("gone", "bin")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.NoError(t, d.Remove(p))
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, d.Remove(p), "removing a missing file is not an error")
}
