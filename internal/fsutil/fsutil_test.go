package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, AtomicWrite(path, []byte("hello"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// no temp file left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriteCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c.txt")

	require.NoError(t, AtomicWrite(path, []byte("deep"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}

func TestAtomicWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, AtomicWrite(path, []byte("first"), 0o644))
	require.NoError(t, AtomicWrite(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestAtomicWriteJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, AtomicWriteJSON(path, map[string]int{"n": 3}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 3}`, string(data))
	assert.Equal(t, byte('\n'), data[len(data)-1], "trailing newline")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAtomicWriteJSONRejectsNil(t *testing.T) {
	assert.Error(t, AtomicWriteJSON(filepath.Join(t.TempDir(), "x.json"), nil))
}

func TestWriteWorkspaceFile(t *testing.T) {
	root := t.TempDir()

	art, err := WriteWorkspaceFile(root, "src/app.js", []byte("console.log(1)"))
	require.NoError(t, err)

	assert.Equal(t, "src/app.js", art.Path)
	assert.Equal(t, int64(14), art.Size)
	assert.Contains(t, art.SHA256, "sha256:")

	data, err := os.ReadFile(filepath.Join(root, "src", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
}

func TestResolvePathRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name     string
		relative string
	}{
		{"absolute path", "/etc/passwd"},
		{"plain traversal", "../outside.txt"},
		{"nested traversal", "a/../../outside.txt"},
		{"bare dotdot", ".."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolvePath(root, tt.relative)
			assert.Error(t, err)
		})
	}
}

func TestResolvePathAllowsInternalDotDot(t *testing.T) {
	root := t.TempDir()

	full, err := ResolvePath(root, "a/../b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", filepath.Base(full))
}

func TestResolvePathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.txt")))

	_, err := ResolvePath(root, "link.txt")
	assert.Error(t, err)
}

func TestResolvePathSymlinkInsideWorkspace(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "alias.txt")))

	full, err := ResolvePath(root, "alias.txt")
	require.NoError(t, err)
	assert.Equal(t, "real.txt", filepath.Base(full))
}
