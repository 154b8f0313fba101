// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package index_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vignette-dev/vignette/internal/embed/embedtest"
	"github.com/vignette-dev/vignette/internal/index"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func newTestService(t *testing.T, root string, ex *embedtest.Stub) *index.Service {
	t.Helper()
	svc, err := index.NewService(index.ServiceConfig{
		LibraryRoot:  root,
		ArtifactPath: filepath.Join(t.TempDir(), "index.db"),
		DefaultK:     12,
	}, ex)
	require.NoError(t, err)
	return svc
}

func TestEnsureBuildsWhenArtifactMissing(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")
	writeImage(t, root, "Podcast/c.jpg", "img-c")

	svc := newTestService(t, root, embedtest.New(4))
	require.NoError(t, svc.Ensure(context.Background()))

	snap := svc.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Len())
}

func TestEnsureLoadsFreshArtifactWithoutRebuilding(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	artifact := filepath.Join(t.TempDir(), "index.db")
	ex := embedtest.New(4)

	svc, err := index.NewService(index.ServiceConfig{LibraryRoot: root, ArtifactPath: artifact}, ex)
	require.NoError(t, err)
	require.NoError(t, svc.Ensure(context.Background()))
	built := svc.Snapshot().Manifest().BuiltAt

	// A second service over the same artifact must load rather than
	// rebuild; embedding is made to fail to prove no re-embedding happens.
	ex2 := embedtest.New(4)
	ex2.Fail["img-a"] = true

	svc2, err := index.NewService(index.ServiceConfig{LibraryRoot: root, ArtifactPath: artifact}, ex2)
	require.NoError(t, err)
	require.NoError(t, svc2.Ensure(context.Background()))

	require.NotNil(t, svc2.Snapshot())
	assert.Equal(t, 1, svc2.Snapshot().Len())
	assert.Equal(t, built, svc2.Snapshot().Manifest().BuiltAt)
}

func TestEnsureRebuildsWhenFileCountChanges(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	artifact := filepath.Join(t.TempDir(), "index.db")
	ex := embedtest.New(4)

	svc, err := index.NewService(index.ServiceConfig{LibraryRoot: root, ArtifactPath: artifact}, ex)
	require.NoError(t, err)
	require.NoError(t, svc.Ensure(context.Background()))
	require.Equal(t, 1, svc.Snapshot().Len())

	writeImage(t, root, "Movies/b.jpg", "img-b")

	svc2, err := index.NewService(index.ServiceConfig{LibraryRoot: root, ArtifactPath: artifact}, ex)
	require.NoError(t, err)
	require.NoError(t, svc2.Ensure(context.Background()))
	assert.Equal(t, 2, svc2.Snapshot().Len())
}

func TestEnsureRebuildsAfterArtifactDeleted(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	artifact := filepath.Join(t.TempDir(), "index.db")
	ex := embedtest.New(4)

	svc, err := index.NewService(index.ServiceConfig{LibraryRoot: root, ArtifactPath: artifact}, ex)
	require.NoError(t, err)
	require.NoError(t, svc.Ensure(context.Background()))

	require.NoError(t, os.Remove(artifact))

	svc2, err := index.NewService(index.ServiceConfig{LibraryRoot: root, ArtifactPath: artifact}, ex)
	require.NoError(t, err)
	require.NoError(t, svc2.Ensure(context.Background()))

	require.NotNil(t, svc2.Snapshot())
	assert.Equal(t, 1, svc2.Snapshot().Len())
}

func TestFailedRebuildKeepsPreviousSnapshotAndArtifact(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	svc := newTestService(t, root, embedtest.New(4))
	require.NoError(t, svc.Ensure(context.Background()))
	require.Equal(t, 1, svc.Snapshot().Len())

	// Make the scan fail wholesale.
	require.NoError(t, os.RemoveAll(root))

	_, err := svc.Rebuild(context.Background())
	require.Error(t, err)

	// Readers still see the previous complete snapshot.
	require.NotNil(t, svc.Snapshot())
	assert.Equal(t, 1, svc.Snapshot().Len())
}

func TestSearchValidation(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	svc := newTestService(t, root, embedtest.New(4))

	_, err := svc.Search(context.Background(), index.SearchQuery{})
	assert.True(t, vgerr.IsInvalidInput(err))

	_, err = svc.Search(context.Background(), index.SearchQuery{Text: "q", ImagePath: "x.jpg"})
	assert.True(t, vgerr.IsInvalidInput(err))

	// Before Ensure there is no snapshot to search.
	_, err = svc.Search(context.Background(), index.SearchQuery{Text: "q"})
	assert.True(t, vgerr.HasCode(err, vgerr.CodeIndexUnavailable))
}

func TestSearchScenarioMoviesAndPodcast(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")
	writeImage(t, root, "Movies/b.jpg", "img-b")
	writeImage(t, root, "Podcast/c.jpg", "img-c")

	ex := embedtest.New(4)
	ex.ImageVecs["img-a"] = []float32{1, 0, 0, 0}
	ex.ImageVecs["img-b"] = []float32{0.9, 0.1, 0, 0}
	ex.ImageVecs["img-c"] = []float32{0, 0, 1, 0}
	ex.TextVecs[index.QueryText("drama movie poster", "")] = []float32{1, 0, 0, 0}

	svc := newTestService(t, root, ex)
	require.NoError(t, svc.Ensure(context.Background()))
	assert.Equal(t, []string{"Movies", "Podcast"}, svc.Categories())

	results, err := svc.Search(context.Background(), index.SearchQuery{
		Text:     index.QueryText("drama movie poster", ""),
		Category: "Movies",
		K:        2,
	})
	require.NoError(t, err)

	require.LessOrEqual(t, len(results), 2)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "Movies", r.Record.Category)
	}
	assert.Equal(t, "Movies/a.jpg", results[0].Record.Path)
}

func TestSearchByImage(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	ex := embedtest.New(4)
	ex.ImageVecs["img-a"] = []float32{1, 0, 0, 0}
	ex.ImageVecs["query-img"] = []float32{1, 0, 0, 0}

	svc := newTestService(t, root, ex)
	require.NoError(t, svc.Ensure(context.Background()))

	query := filepath.Join(t.TempDir(), "query.jpg")
	require.NoError(t, os.WriteFile(query, []byte("query-img"), 0o644))

	results, err := svc.Search(context.Background(), index.SearchQuery{ImagePath: query})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestSearchEmbedFailurePropagates(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	ex := embedtest.New(4)
	ex.Fail["unreachable query"] = true

	svc := newTestService(t, root, ex)
	require.NoError(t, svc.Ensure(context.Background()))

	_, err := svc.Search(context.Background(), index.SearchQuery{Text: "unreachable query"})
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeEmbedUpstreamFailure))
}

func TestStats(t *testing.T) {
	root := t.TempDir()
	writeImage(t, root, "Movies/a.jpg", "img-a")

	svc := newTestService(t, root, embedtest.New(4))
	assert.Equal(t, index.Stats{}, svc.Stats())

	require.NoError(t, svc.Ensure(context.Background()))

	stats := svc.Stats()
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, []string{"Movies"}, stats.Categories)
	assert.Equal(t, "stub-extractor", stats.Extractor)
	assert.Equal(t, 4, stats.Dimensions)
}
