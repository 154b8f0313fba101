// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package media_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignette-dev/vignette/internal/media"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func newTestLibrary(t *testing.T) *media.Library {
	t.Helper()
	lib, err := media.NewLibrary(t.TempDir(), t.TempDir(), t.TempDir(), nil)
	require.NoError(t, err)
	return lib
}

func TestResolveThumbnail(t *testing.T) {
	lib := newTestLibrary(t)
	path := filepath.Join(lib.Root(), "Movies", "a.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))

	abs, err := lib.ResolveThumbnail("Movies/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, path, abs)
}

func TestResolveRejectsTraversal(t *testing.T) {
	lib := newTestLibrary(t)

	for _, rel := range []string{
		"../outside.jpg",
		"Movies/../../outside.jpg",
		"/etc/passwd",
		"",
	} {
		_, err := lib.ResolveThumbnail(rel)
		require.Error(t, err, "path %q must be rejected", rel)
		assert.True(t, vgerr.IsInvalidInput(err), "path %q must be invalid input, got %v", rel, err)
	}
}

func TestResolveMissingFile(t *testing.T) {
	lib := newTestLibrary(t)

	_, err := lib.ResolveThumbnail("Movies/absent.jpg")
	require.Error(t, err)
	assert.True(t, vgerr.IsNotFound(err))
}

func TestResolveRejectsDirectory(t *testing.T) {
	lib := newTestLibrary(t)
	require.NoError(t, os.MkdirAll(filepath.Join(lib.Root(), "Movies"), 0o755))

	_, err := lib.ResolveThumbnail("Movies")
	require.Error(t, err)
	assert.True(t, vgerr.IsInvalidInput(err))
}

func TestSaveReference(t *testing.T) {
	lib := newTestLibrary(t)

	abs, err := lib.SaveReference("My Photo.JPG", strings.NewReader("ref-bytes"))
	require.NoError(t, err)

	// The stored name is a fresh UUID keeping only the extension.
	base := filepath.Base(abs)
	assert.True(t, strings.HasSuffix(base, ".jpg"), "got %q", base)
	assert.NotContains(t, base, "My Photo")

	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "ref-bytes", string(data))

	// Round-trips through the upload resolver.
	resolved, err := lib.ResolveUpload(base)
	require.NoError(t, err)
	assert.Equal(t, abs, resolved)
}

func TestSaveReferenceRejectsNonImage(t *testing.T) {
	lib := newTestLibrary(t)

	_, err := lib.SaveReference("script.sh", strings.NewReader("#!/bin/sh"))
	require.Error(t, err)
	assert.True(t, vgerr.IsInvalidInput(err))
}

func TestSaveThumbnail(t *testing.T) {
	lib := newTestLibrary(t)

	rel, err := lib.SaveThumbnail("Movies", "new.png", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, "Movies/new.png", rel)

	abs, err := lib.ResolveThumbnail(rel)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))
}

func TestSaveThumbnailKeepsExistingFile(t *testing.T) {
	lib := newTestLibrary(t)

	first, err := lib.SaveThumbnail("Movies", "a.jpg", strings.NewReader("original"))
	require.NoError(t, err)
	require.Equal(t, "Movies/a.jpg", first)

	second, err := lib.SaveThumbnail("Movies", "a.jpg", strings.NewReader("new-bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, "Movies/a_"), "suffixed name, got %q", second)
	assert.True(t, strings.HasSuffix(second, ".jpg"))

	// The original upload is untouched.
	abs, err := lib.ResolveThumbnail(first)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	abs, err = lib.ResolveThumbnail(second)
	require.NoError(t, err)
	data, err = os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "new-bytes", string(data))
}

func TestSaveThumbnailSanitizesFilename(t *testing.T) {
	lib := newTestLibrary(t)

	// Directory components in the client name are stripped.
	rel, err := lib.SaveThumbnail("Movies", "../../evil.png", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, "Movies/evil.png", rel)
}

func TestSaveThumbnailRejectsBadCategory(t *testing.T) {
	lib := newTestLibrary(t)

	for _, category := range []string{"", "..", "a/b", `a\b`, ".hidden"} {
		_, err := lib.SaveThumbnail(category, "a.png", strings.NewReader("img"))
		require.Error(t, err, "category %q must be rejected", category)
		assert.True(t, vgerr.IsInvalidInput(err))
	}
}

func TestGallery(t *testing.T) {
	lib := newTestLibrary(t)

	items, err := lib.Gallery()
	require.NoError(t, err)
	assert.Empty(t, items)

	old := filepath.Join(lib.GeneratedDir(), "volcano_001.png")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	require.NoError(t, os.WriteFile(filepath.Join(lib.GeneratedDir(), "volcano_002.png"), []byte("newer"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(lib.GeneratedDir(), "notes.txt"), []byte("skip"), 0o644))

	items, err = lib.Gallery()
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Newest first, non-PNG entries excluded.
	assert.Equal(t, "volcano_002.png", items[0].Filename)
	assert.Equal(t, "volcano_001.png", items[1].Filename)
	assert.Equal(t, int64(3), items[1].Size)
}

func TestGalleryMissingDir(t *testing.T) {
	lib, err := media.NewLibrary(t.TempDir(), t.TempDir(), filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)

	items, err := lib.Gallery()
	require.NoError(t, err)
	assert.Empty(t, items)
}
