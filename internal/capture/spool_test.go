package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpool_WriteReadRemove(t *testing.T) {
	spool, err := NewSpool(Config{Dir: t.TempDir(), MaxBytes: 100})
	require.NoError(t, err)

	path, err := spool.Write("a.raw", []byte("hello"))
	require.NoError(t, err)

	data, err := spool.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, spool.Remove(path))
	require.NoError(t, spool.Remove(path), "removing a missing blob is not an error")
}

func TestSpool_BudgetEnforced(t *testing.T) {
	spool, err := NewSpool(Config{Dir: t.TempDir(), MaxBytes: 8})
	require.NoError(t, err)

	_, err = spool.Write("a.raw", []byte("12345"))
	require.NoError(t, err)

	_, err = spool.Write("b.raw", []byte("12345"))
	assert.ErrorIs(t, err, ErrStorageExhausted)

	// Reclaiming space makes room again.
	require.NoError(t, spool.Remove(filepath.Join(spool.dir, "a.raw")))
	_, err = spool.Write("b.raw", []byte("12345"))
	assert.NoError(t, err)
}

func TestSpool_AdoptMovesFile(t *testing.T) {
	spool, err := NewSpool(Config{Dir: t.TempDir(), MaxBytes: 100})
	require.NoError(t, err)

	src := filepath.Join(spool.IncomingDir(), "sess_1.raw")
	require.NoError(t, os.WriteFile(src, []byte("dropped"), 0o600))

	dst, err := spool.Adopt(src)
	require.NoError(t, err)
	assert.FileExists(t, dst)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}
