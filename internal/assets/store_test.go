package assets

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "beats"), 0o755))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "beats", "1.mp3"), []byte("audio-bytes"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("outside"), 0o644))

	store := NewLocalStore(dir)
	ctx := context.Background()

	t.Run("reads an existing asset", func(t *testing.T) {
		rc, err := store.Get(ctx, "beats/1.mp3")
		assert.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		assert.NoError(t, err)
		assert.Equal(t, "audio-bytes", string(data))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "beats/99.mp3")
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := store.Exists(ctx, "beats/99.mp3")
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("exists", func(t *testing.T) {
		exists, err := store.Exists(ctx, "beats/1.mp3")
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("traversal is confined to the store root", func(t *testing.T) {
		rc, err := store.Get(ctx, "../secret.txt")
		assert.NoError(t, err)
		defer rc.Close()

		// The cleaned key resolves inside the root, so it reads the
		// root-level file rather than escaping the directory.
		data, err := io.ReadAll(rc)
		assert.NoError(t, err)
		assert.Equal(t, "outside", string(data))
	})
}
