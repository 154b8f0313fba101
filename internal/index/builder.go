// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vignette-dev/vignette/internal/embed"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// imageExtensions are the accepted reference image formats.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Builder produces a complete Snapshot from a library directory tree.
type Builder struct {
	root      string
	extractor embed.Extractor
	log       *slog.Logger
}

// NewBuilder creates a Builder over the given library root.
func NewBuilder(root string, extractor embed.Extractor, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{root: root, extractor: extractor, log: log}
}

// Build scans the library tree and embeds every accepted image file.
// Unreadable or unembeddable files are skipped with a warning; only a
// failed directory scan or a cancelled context aborts the build.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	paths, err := ScanImages(b.root)
	if err != nil {
		return nil, err
	}

	b.log.Info("building index", "root", b.root, "files", len(paths))

	records := make([]ImageRecord, 0, len(paths))
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return nil, vgerr.Wrapf(err, vgerr.CodeIndexBuildScanFailure, "index build cancelled")
		}

		data, err := os.ReadFile(filepath.Join(b.root, rel))
		if err != nil {
			b.log.Warn("skipping unreadable image", "path", rel, "error", err)
			continue
		}

		vec, err := b.extractor.EmbedImage(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, vgerr.Wrapf(err, vgerr.CodeIndexBuildScanFailure, "index build cancelled")
			}
			b.log.Warn("skipping unembeddable image", "path", rel, "error", err)
			continue
		}

		records = append(records, ImageRecord{
			Path:      rel,
			Category:  categoryOf(rel),
			Embedding: vec,
		})
		b.log.Debug("indexed image", "path", rel, "category", categoryOf(rel))
	}

	b.log.Info("index build complete", "records", len(records), "skipped", len(paths)-len(records))

	return NewSnapshot(records, Manifest{
		SchemaVersion: SchemaVersion,
		FileCount:     len(paths),
		BuiltAt:       time.Now().UTC(),
		Extractor:     b.extractor.ModelID(),
		Dimensions:    b.extractor.Dimensions(),
	}), nil
}

// ScanImages enumerates accepted image files under root, returned as
// library-relative paths in lexical order.
func ScanImages(root string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeIndexBuildScanFailure, "scanning library root %s", root)
	}

	return paths, nil
}

// CountImages returns the number of accepted image files under root.
func CountImages(root string) (int, error) {
	paths, err := ScanImages(root)
	if err != nil {
		return 0, err
	}
	return len(paths), nil
}

// categoryOf derives the category from a library-relative path: the
// immediate parent directory name, or empty at the root.
func categoryOf(rel string) string {
	dir := filepath.Dir(filepath.FromSlash(rel))
	if dir == "." {
		return ""
	}
	return filepath.Base(dir)
}
