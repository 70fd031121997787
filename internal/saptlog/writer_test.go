package saptlog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sapt.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestRotatingWriterRotatesAtSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sapt.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	big := bytes.Repeat([]byte("x"), 1024*1024) // fills the 1 MB budget
	_, err = w.Write(big)
	require.NoError(t, err)
	_, err = w.Write([]byte("after rotation\n"))
	require.NoError(t, err)

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Len(t, rotated, len(big))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after rotation\n", string(current))
}

func TestRotatingWriterPrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sapt.log")
	require.NoError(t, os.WriteFile(path+".1", []byte("newest rotated"), 0o644))
	require.NoError(t, os.WriteFile(path+".2", []byte("oldest rotated"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	big := bytes.Repeat([]byte("y"), 1024*1024)
	_, err = w.Write(big)
	require.NoError(t, err)
	_, err = w.Write([]byte("tail\n"))
	require.NoError(t, err)

	// .2 (at the keep limit) was deleted, .1 shifted to .2, the filled
	// current file became the new .1.
	data, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "newest rotated", string(data))
	data, err = os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Len(t, data, len(big))
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}
