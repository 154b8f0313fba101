// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package server

import (
	"context"
	"io"

	"github.com/vignette-dev/vignette/internal/analyzer"
	"github.com/vignette-dev/vignette/internal/generator"
	"github.com/vignette-dev/vignette/internal/index"
	"github.com/vignette-dev/vignette/internal/media"
)

// IndexService is the similarity index surface the API depends on.
type IndexService interface {
	Search(ctx context.Context, q index.SearchQuery) ([]index.Result, error)
	Categories() []string
	Stats() index.Stats
	Rebuild(ctx context.Context) (int, error)
	Snapshot() *index.Snapshot
}

// AnalyzerService runs thumbnail analysis.
type AnalyzerService interface {
	Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Analysis, error)
	Backend() string
}

// GeneratorService renders new thumbnails.
type GeneratorService interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
	Services() []string
}

// MediaService resolves and stores image files.
type MediaService interface {
	ResolveThumbnail(rel string) (string, error)
	ResolveGenerated(name string) (string, error)
	ResolveUpload(name string) (string, error)
	SaveReference(filename string, r io.Reader) (string, error)
	SaveThumbnail(category, filename string, r io.Reader) (string, error)
	Gallery() ([]media.GalleryItem, error)
}

// Services bundles the dependencies the API routes call into.
type Services struct {
	Index     IndexService
	Analyzer  AnalyzerService
	Generator GeneratorService
	Media     MediaService
}
