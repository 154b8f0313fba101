// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package index

import (
	"fmt"
	"math"
	"sort"
)

// SearchQuery describes one similarity search.
type SearchQuery struct {
	// Text is a free-text query; mutually exclusive with ImagePath.
	Text string
	// ImagePath points at an image file to use as the query.
	ImagePath string
	// Category restricts results to one category; empty means all.
	Category string
	// K caps the result count; zero falls back to the service default.
	K int
}

// Result is a ranked search hit.
type Result struct {
	Record ImageRecord
	// Score is the cosine similarity in [-1, 1]; higher is more similar.
	Score float64
}

// QueryText composes the search phrasing for a topic and optional point of
// view, matching what the analysis prompt is tuned for.
func QueryText(topic, pov string) string {
	q := fmt.Sprintf("YouTube thumbnail about %s", topic)
	if pov != "" {
		q += fmt.Sprintf(" from %s perspective", pov)
	}
	return q
}

// Rank scores every eligible record against the query vector and returns
// the top k by cosine similarity, descending. Ties keep insertion order
// (stable sort). An empty eligible set yields an empty slice.
func (s *Snapshot) Rank(query []float32, category string, k int) []Result {
	if k <= 0 {
		return nil
	}

	results := make([]Result, 0, len(s.records))
	for _, rec := range s.records {
		if category != "" && rec.Category != category {
			continue
		}
		results = append(results, Result{
			Record: rec,
			Score:  cosine(query, rec.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// cosine returns the cosine similarity of two vectors. Mismatched lengths
// and zero vectors score 0 rather than erroring; both only arise from a
// corrupted record, and the loader already rejects those.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
