// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package index_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vignette-dev/vignette/internal/embed/embedtest"
	"github.com/vignette-dev/vignette/internal/index"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func testSnapshot(extractor string, dims int) *index.Snapshot {
	records := []index.ImageRecord{
		{Path: "Movies/a.jpg", Category: "Movies", Embedding: []float32{1, 0, 0, 0}},
		{Path: "Movies/b.jpg", Category: "Movies", Embedding: []float32{0, 1, 0, 0}},
		{Path: "Podcast/c.jpg", Category: "Podcast", Embedding: []float32{0, 0, 1, 0}},
	}
	return index.NewSnapshot(records, index.Manifest{
		SchemaVersion: index.SchemaVersion,
		FileCount:     3,
		BuiltAt:       time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Extractor:     extractor,
		Dimensions:    dims,
	})
}

func TestArtifactRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	snap := testSnapshot("stub-extractor", 4)

	require.NoError(t, index.SaveArtifact(snap, path))

	loaded, err := index.LoadArtifact(path, embedtest.New(4))
	require.NoError(t, err)

	assert.Equal(t, snap.Manifest(), loaded.Manifest())
	require.Equal(t, snap.Len(), loaded.Len())
	for i, rec := range snap.Records() {
		assert.Equal(t, rec, loaded.Records()[i], "record %d must survive with order intact", i)
	}
}

func TestLoadMissingArtifactIsNotFound(t *testing.T) {
	_, err := index.LoadArtifact(filepath.Join(t.TempDir(), "absent.db"), embedtest.New(4))
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeIndexLoadNotFound))
}

func TestLoadGarbageArtifactIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))

	_, err := index.LoadArtifact(path, embedtest.New(4))
	require.Error(t, err)
	assert.True(t, vgerr.IsCorrupt(err))
}

func TestLoadRejectsExtractorMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, index.SaveArtifact(testSnapshot("clip-ViT-B-32", 4), path))

	_, err := index.LoadArtifact(path, embedtest.New(4)) // reports "stub-extractor"
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeIndexLoadCorrupt))
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, index.SaveArtifact(testSnapshot("stub-extractor", 4), path))

	_, err := index.LoadArtifact(path, embedtest.New(8))
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeIndexLoadCorrupt))
}

func TestSaveReplacesPreviousArtifactAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	require.NoError(t, index.SaveArtifact(testSnapshot("stub-extractor", 4), path))

	replacement := index.NewSnapshot(
		[]index.ImageRecord{{Path: "Movies/z.jpg", Category: "Movies", Embedding: []float32{0, 0, 0, 1}}},
		index.Manifest{
			SchemaVersion: index.SchemaVersion,
			FileCount:     1,
			BuiltAt:       time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC),
			Extractor:     "stub-extractor",
			Dimensions:    4,
		},
	)
	require.NoError(t, index.SaveArtifact(replacement, path))

	loaded, err := index.LoadArtifact(path, embedtest.New(4))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	// No temp file may linger after a successful swap.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
