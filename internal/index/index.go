// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package index builds, persists, and searches the embedding index over the
// reference image library. The index is rebuilt whole and searched linearly;
// readers always see a complete immutable Snapshot, swapped atomically after
// a rebuild.
package index

import (
	"sort"
	"time"
)

// SchemaVersion marks the persisted artifact layout. Artifacts with a
// different version are treated as corrupt and force a rebuild.
const SchemaVersion = 1

// ImageRecord is one indexed reference image.
type ImageRecord struct {
	// Path is the library-relative file path, unique within a snapshot.
	Path string
	// Category is the immediate parent directory name, empty for files
	// directly under the library root.
	Category string
	// Embedding is the extractor vector for the file's content.
	Embedding []float32
}

// Manifest carries build metadata persisted alongside the records.
type Manifest struct {
	SchemaVersion int
	// FileCount is the number of image files enumerated under the root at
	// build time, including files that were skipped. Compared against a
	// live count to detect staleness.
	FileCount  int
	BuiltAt    time.Time
	Extractor  string
	Dimensions int
}

// Snapshot is an immutable view of the full index. Records preserve
// insertion (build) order, which search uses for tie-breaking.
type Snapshot struct {
	records  []ImageRecord
	byPath   map[string]int
	manifest Manifest
}

// NewSnapshot assembles a Snapshot from ordered records and a manifest.
func NewSnapshot(records []ImageRecord, manifest Manifest) *Snapshot {
	byPath := make(map[string]int, len(records))
	for i, rec := range records {
		byPath[rec.Path] = i
	}
	return &Snapshot{records: records, byPath: byPath, manifest: manifest}
}

// Len returns the number of indexed records.
func (s *Snapshot) Len() int { return len(s.records) }

// Manifest returns the build metadata.
func (s *Snapshot) Manifest() Manifest { return s.manifest }

// Records returns the indexed records in insertion order. Callers must not
// mutate the returned slice.
func (s *Snapshot) Records() []ImageRecord { return s.records }

// Get returns the record for a library-relative path.
func (s *Snapshot) Get(path string) (ImageRecord, bool) {
	i, ok := s.byPath[path]
	if !ok {
		return ImageRecord{}, false
	}
	return s.records[i], true
}

// Categories returns the sorted set of non-empty categories present in the
// snapshot. Recomputed per call; snapshots are small and read-mostly.
func (s *Snapshot) Categories() []string {
	seen := map[string]bool{}
	for _, rec := range s.records {
		if rec.Category != "" {
			seen[rec.Category] = true
		}
	}

	cats := make([]string, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}
