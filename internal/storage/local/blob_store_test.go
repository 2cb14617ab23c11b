// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		_, err := local.NewWithFs(fsys, local.Config{BaseDir: "/data/scrapes"})
		require.NoError(t, err)
		ok, err := afero.DirExists(fsys, "/data/scrapes")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(tempFile, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: tempFile})
		assert.Error(t, err)
	})
}

func TestPutAndGetObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("ValidPut", func(t *testing.T) {
		data := []byte(`[{"name":"Ada"}]`)
		uri, err := store.PutObject(ctx, "professors.json", "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "professors.json"), uri)

		got, err := store.GetObject(ctx, "professors.json")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.PutObject(ctx, "a/b/courses.json", "", bytes.NewBufferString("[1]"))
		require.NoError(t, err)
		_, err = store.PutObject(ctx, "a/b/courses.json", "", bytes.NewBufferString("[2]"))
		require.NoError(t, err)
		got, err := store.GetObject(ctx, "a/b/courses.json")
		require.NoError(t, err)
		assert.Equal(t, "[2]", string(got))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := store.GetObject(ctx, "events.json")
		require.ErrorIs(t, err, extract.ErrNotFound)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(ctx, "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(ctx, "../escape.json", "", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})
}
