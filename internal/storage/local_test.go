package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_WriteReadExistsDelete(t *testing.T) {
	root := t.TempDir()
	s := NewLocal(root)
	ctx := context.Background()
	key := ArtifactKey("proj-1", "proj-1-20250101T000000Z.tar.gz")

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Write(ctx, key, []byte("artifact")))

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("artifact"), data)

	assert.Equal(t, filepath.Join(root, "proj-1", "proj-1-20250101T000000Z.tar.gz"), s.Location(key))

	require.NoError(t, s.Delete(ctx, key))
	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocal_WriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s := NewLocal(root)
	require.NoError(t, s.Write(context.Background(), "p/a", []byte("x")))

	entries, err := os.ReadDir(filepath.Join(root, "p"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name())
}

func TestLocal_ReadMissingIsNotFound(t *testing.T) {
	s := NewLocal(t.TempDir())
	_, err := s.Read(context.Background(), "p/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocal_DeleteMissingIsNoop(t *testing.T) {
	s := NewLocal(t.TempDir())
	assert.NoError(t, s.Delete(context.Background(), "p/missing"))
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	s := NewLocal(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../outside", "."} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, s.Write(ctx, key, []byte("x")))
			_, err := s.Read(ctx, key)
			assert.Error(t, err)
		})
	}
}

func TestLocal_CancelledContext(t *testing.T) {
	s := NewLocal(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Write(ctx, "p/a", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/srv/backups/p1'`, shellQuote("/srv/backups/p1"))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
	assert.Equal(t, `'$(rm -rf /)'`, shellQuote("$(rm -rf /)"))
}
