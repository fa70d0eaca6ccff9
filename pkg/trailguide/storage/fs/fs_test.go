package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/storage/fs"
)

func TestNew(t *testing.T) {
	t.Run("creates the base directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "blobs")
		_, err := fs.New(fs.Config{BaseDir: dir})
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("requires a base directory", func(t *testing.T) {
		_, err := fs.New(fs.Config{})
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "photo.jpg", strings.NewReader("jpeg bytes")))

	t.Run("download", func(t *testing.T) {
		body, err := backend.Download(ctx, "photo.jpg")
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "jpeg bytes", string(data))
	})

	t.Run("meta", func(t *testing.T) {
		meta, err := backend.Meta(ctx, "photo.jpg")
		require.NoError(t, err)
		assert.Equal(t, "photo.jpg", meta.Key)
		assert.Equal(t, int64(10), meta.Size)
		assert.False(t, meta.UpdatedAt.IsZero())
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, backend.Upload(ctx, "photo.jpg", strings.NewReader("v2")))

		meta, err := backend.Meta(ctx, "photo.jpg")
		require.NoError(t, err)
		assert.Equal(t, int64(2), meta.Size)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, "photo.jpg"))

		_, err := backend.Download(ctx, "photo.jpg")
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
		_, err = backend.Meta(ctx, "photo.jpg")
		assert.ErrorIs(t, err, trailguide.ErrNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, "photo.jpg"), trailguide.ErrNotFound)
	})
}

func TestMissingKey(t *testing.T) {
	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = backend.Download(context.Background(), "nope.bin")
	assert.ErrorIs(t, err, trailguide.ErrNotFound)
}

func TestTraversalKeysAreRejected(t *testing.T) {
	base := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: filepath.Join(base, "blobs")})
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../escape.txt", "../../etc/passwd", ".."} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, backend.Upload(ctx, key, strings.NewReader("x")))
			_, err := backend.Download(ctx, key)
			assert.Error(t, err)
		})
	}

	// Nothing escaped into the parent directory.
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blobs", entries[0].Name())
}

// The temp-and-rename strategy must not leave scratch files behind.
func TestNoScratchFilesRemain(t *testing.T) {
	dir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, backend.Upload(context.Background(), "a.bin", strings.NewReader("abc")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.bin", entries[0].Name())
}
