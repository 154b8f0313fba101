// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package index

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vignette-dev/vignette/internal/embed"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// DefaultK is the result cap applied when a query does not specify one.
const DefaultK = 12

// ServiceConfig configures the index service.
type ServiceConfig struct {
	// LibraryRoot is the directory tree of categorized reference images.
	LibraryRoot string
	// ArtifactPath is where the persisted index lives.
	ArtifactPath string
	// DefaultK caps search results when the query leaves K unset.
	DefaultK int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Service owns the in-memory snapshot and serializes rebuilds. Searches
// read whatever snapshot is current; a rebuild swaps the pointer only after
// the new artifact is fully persisted, so readers never observe a partial
// index.
type Service struct {
	cfg       ServiceConfig
	extractor embed.Extractor
	log       *slog.Logger

	snap  atomic.Pointer[Snapshot]
	group singleflight.Group
}

// NewService creates the index service. Call Ensure before serving queries.
func NewService(cfg ServiceConfig, extractor embed.Extractor) (*Service, error) {
	if cfg.LibraryRoot == "" {
		return nil, vgerr.New(vgerr.CodeIndexQueryInvalid, "index: missing library root")
	}
	if cfg.ArtifactPath == "" {
		return nil, vgerr.New(vgerr.CodeIndexQueryInvalid, "index: missing artifact path")
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{cfg: cfg, extractor: extractor, log: cfg.Logger}, nil
}

// Ensure makes a snapshot available: it loads the persisted artifact when
// present and fresh, and rebuilds otherwise. Staleness is a file-count
// comparison only; in-place edits that keep the count unchanged are not
// detected (use Rebuild to force).
func (s *Service) Ensure(ctx context.Context) error {
	snap, err := LoadArtifact(s.cfg.ArtifactPath, s.extractor)
	if err == nil {
		live, countErr := CountImages(s.cfg.LibraryRoot)
		if countErr == nil && live == snap.Manifest().FileCount {
			s.snap.Store(snap)
			s.log.Info("loaded index artifact",
				"path", s.cfg.ArtifactPath,
				"records", snap.Len(),
				"built_at", snap.Manifest().BuiltAt.Format(time.RFC3339),
			)
			return nil
		}
		s.log.Info("index artifact is stale, rebuilding",
			"manifest_count", snap.Manifest().FileCount, "live_count", live)
	} else if vgerr.IsNotFound(err) {
		s.log.Info("no index artifact, building", "path", s.cfg.ArtifactPath)
	} else {
		s.log.Warn("index artifact unusable, rebuilding", "error", err)
	}

	_, err = s.Rebuild(ctx)
	return err
}

// Rebuild scans and embeds the whole library, persists the new artifact,
// and swaps it in. Concurrent callers share a single in-flight build.
// Returns the record count of the new snapshot.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("rebuild", func() (any, error) {
		builder := NewBuilder(s.cfg.LibraryRoot, s.extractor, s.log)

		snap, err := builder.Build(ctx)
		if err != nil {
			return nil, err
		}

		if err := SaveArtifact(snap, s.cfg.ArtifactPath); err != nil {
			return nil, err
		}

		s.snap.Store(snap)
		return snap.Len(), nil
	})
	if err != nil {
		if s.snap.Load() == nil {
			return 0, vgerr.Wrap(err, vgerr.CodeIndexUnavailable, "no index could be loaded or built")
		}
		return 0, err
	}

	return v.(int), nil
}

// Snapshot returns the current snapshot, or nil before Ensure succeeds.
func (s *Service) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Search embeds the query and ranks the current snapshot.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]Result, error) {
	if q.Text == "" && q.ImagePath == "" {
		return nil, vgerr.New(vgerr.CodeIndexQueryInvalid, "search: query needs text or an image path")
	}
	if q.Text != "" && q.ImagePath != "" {
		return nil, vgerr.New(vgerr.CodeIndexQueryInvalid, "search: text and image queries are mutually exclusive")
	}

	snap := s.snap.Load()
	if snap == nil {
		return nil, vgerr.New(vgerr.CodeIndexUnavailable, "search: index not loaded")
	}

	var vec []float32
	var err error
	if q.ImagePath != "" {
		data, readErr := os.ReadFile(q.ImagePath)
		if readErr != nil {
			return nil, vgerr.Wrap(readErr, vgerr.CodeEmbedRequestInvalid, "reading query image", vgerr.FieldPath(q.ImagePath))
		}
		vec, err = s.extractor.EmbedImage(ctx, data)
	} else {
		vec, err = s.extractor.EmbedText(ctx, q.Text)
	}
	if err != nil {
		return nil, err
	}

	k := q.K
	if k <= 0 {
		k = s.cfg.DefaultK
	}

	return snap.Rank(vec, q.Category, k), nil
}

// Categories lists the categories in the current snapshot.
func (s *Service) Categories() []string {
	snap := s.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.Categories()
}

// Stats summarizes the current snapshot for status surfaces.
type Stats struct {
	Records    int       `json:"records"`
	Categories []string  `json:"categories,omitempty"`
	FileCount  int       `json:"file_count"`
	BuiltAt    time.Time `json:"built_at"`
	Extractor  string    `json:"extractor,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
}

// Stats returns snapshot statistics; zero value when no snapshot is loaded.
func (s *Service) Stats() Stats {
	snap := s.snap.Load()
	if snap == nil {
		return Stats{}
	}

	m := snap.Manifest()
	return Stats{
		Records:    snap.Len(),
		Categories: snap.Categories(),
		FileCount:  m.FileCount,
		BuiltAt:    m.BuiltAt,
		Extractor:  m.Extractor,
		Dimensions: m.Dimensions,
	}
}
