// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package embedtest provides a deterministic in-process Extractor for tests.
package embedtest

import (
	"context"
	"hash/fnv"

	"github.com/vignette-dev/vignette/internal/embed"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// Compile-time interface check.
var _ embed.Extractor = (*Stub)(nil)

// Stub is a deterministic embed.Extractor. Inputs registered in TextVecs or
// ImageVecs return the registered vector; anything else gets a stable
// hash-derived vector. Inputs listed in Fail return an upstream error,
// which lets tests exercise the skip-and-continue build path.
type Stub struct {
	Model     string
	Dims      int
	TextVecs  map[string][]float32
	ImageVecs map[string][]float32
	Fail      map[string]bool
}

// New returns a Stub with the given dimensionality.
func New(dims int) *Stub {
	return &Stub{
		Model:     "stub-extractor",
		Dims:      dims,
		TextVecs:  map[string][]float32{},
		ImageVecs: map[string][]float32{},
		Fail:      map[string]bool{},
	}
}

func (s *Stub) ModelID() string { return s.Model }

func (s *Stub) Dimensions() int { return s.Dims }

func (s *Stub) EmbedText(_ context.Context, text string) ([]float32, error) {
	return s.lookup(text, s.TextVecs)
}

func (s *Stub) EmbedImage(_ context.Context, data []byte) ([]float32, error) {
	return s.lookup(string(data), s.ImageVecs)
}

func (s *Stub) lookup(key string, vecs map[string][]float32) ([]float32, error) {
	if s.Fail[key] {
		return nil, vgerr.New(vgerr.CodeEmbedUpstreamFailure, "embedtest: forced failure", vgerr.Field("input", key))
	}
	if v, ok := vecs[key]; ok {
		return v, nil
	}
	return s.derive(key), nil
}

// derive produces a stable pseudo-embedding from the input bytes.
func (s *Stub) derive(key string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	seed := h.Sum64()

	vec := make([]float32, s.Dims)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33))/float32(1<<30) - 1
	}
	return vec
}
