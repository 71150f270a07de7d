package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func TestLoadDir_MergesTopLevelFiles(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "a.cue", "class: Tag: properties: label: string\n")
	writeCUE(t, dir, "b.cue", "class: Note: properties: text: string\n")
	writeCUE(t, dir, "nested/c.cue", "class: Broken: properties: price: float\n")

	files, err := DirFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue"), filepath.Join(dir, "b.cue")}, files)

	m, err := LoadDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Tag", "Note"}, m.ClassNames())
}

func TestLoadDir_NoFiles(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestLoad_FileOrDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "tag.cue", "class: Tag: properties: label: string\n")

	fromFile, err := Load(filepath.Join(dir, "tag.cue"))
	require.NoError(t, err)
	fromDir, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, fromFile.ClassNames(), fromDir.ClassNames())

	_, err = Load(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}
