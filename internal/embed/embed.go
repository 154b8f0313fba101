// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package embed defines the feature-extraction boundary. An Extractor maps
// raw image bytes or query text into fixed-length vectors in a shared
// embedding space; the index and search layers treat it as a pure function.
package embed

import "context"

// Extractor produces embedding vectors for images and text queries.
// Vectors from the same extractor (model + dimensions) are comparable;
// vectors from different extractors are not.
type Extractor interface {
	// EmbedImage returns the embedding for raw image bytes.
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)

	// EmbedText returns the embedding for a text query.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// ModelID identifies the underlying model, recorded in the index
	// manifest so stale artifacts are rejected on load.
	ModelID() string

	// Dimensions returns the length of vectors this extractor produces.
	Dimensions() int
}
