package fsio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	fs := OS{}
	path := filepath.Join(t.TempDir(), "nested", "deep", "file.txt")

	require.NoError(t, fs.WriteFile(path, []byte("payload")))
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// overwrite in place
	require.NoError(t, fs.WriteFile(path, []byte("v2")))
	data, err = fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestNotFound(t *testing.T) {
	fs := OS{}
	missing := filepath.Join(t.TempDir(), "absent.txt")

	_, err := fs.ReadFile(missing)
	assert.True(t, IsNotFound(err))
	_, err = fs.Stat(missing)
	assert.True(t, IsNotFound(err))
	_, err = fs.ReadDir(filepath.Join(t.TempDir(), "absent-dir"))
	assert.True(t, IsNotFound(err))

	// removing what is not there is not an error
	assert.NoError(t, fs.Remove(missing))
}
