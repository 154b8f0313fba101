// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package generator renders new thumbnails from analysis prompts through
// pluggable image generation services.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// Request describes one generation run.
type Request struct {
	// Prompt is the full image generation prompt, normally the
	// generation_prompt from a prior analysis.
	Prompt string
	// Topic names the video topic; it drives the output file name.
	Topic string
	// ReferencePath optionally points at a reference thumbnail whose
	// style the generated image should follow.
	ReferencePath string
	// Service selects the generation backend. Empty uses the default.
	Service string
}

// Result describes a finished generation.
type Result struct {
	// Path is where the rendered PNG was written.
	Path string
	// Filename is the base name of the rendered PNG.
	Filename string
	// Service is the backend that rendered the image.
	Service string
	// Model is the concrete model the backend used.
	Model string
}

// Generator renders a single image from a prompt. Reference bytes are
// optional; backends that cannot condition on a reference fold its intent
// into the prompt instead.
type Generator interface {
	// Name identifies the service, e.g. "openai" or "google".
	Name() string
	// Render produces PNG image bytes for the prompt and reports the
	// model that produced them.
	Render(ctx context.Context, prompt string, reference []byte, refMIME string) (png []byte, model string, err error)
}

// Registry holds the available generation services.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Generator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Generator)}
}

// Register adds a generator under its own name, replacing any previous
// registration with that name.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[g.Name()] = g
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.backends[name]
	if !ok {
		return nil, vgerr.New(vgerr.CodeGeneratorNotFound,
			fmt.Sprintf("no generation service registered under %q", name),
			vgerr.FieldService(name))
	}
	return g, nil
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnhancePrompt wraps a raw generation prompt with the framing every
// rendered thumbnail needs regardless of backend.
func EnhancePrompt(prompt string) string {
	var b strings.Builder
	b.WriteString("Create a YouTube thumbnail in 16:9 landscape format. ")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString(" The image must be vivid and high contrast, readable at small sizes, with a single clear focal point.")
	return b.String()
}

// Slugify reduces a topic to a lowercase file-name-safe slug. Runs of
// non-alphanumeric characters collapse into single underscores.
func Slugify(topic string) string {
	var b strings.Builder
	lastUnderscore := true // trims leading separators
	for _, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	slug := strings.TrimSuffix(b.String(), "_")
	if slug == "" {
		return "thumbnail"
	}
	if len(slug) > 48 {
		slug = strings.TrimSuffix(slug[:48], "_")
	}
	return slug
}
