// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package analyzer turns a reference thumbnail plus a video topic into a
// structured redesign brief using a vision-capable chat model.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// Request describes one analysis run.
type Request struct {
	// ImagePath is the reference thumbnail on disk.
	ImagePath string
	// Topic is the new video's topic the thumbnail must be adapted to.
	Topic string
	// POV optionally names the perspective the video is told from.
	POV string
}

// Analysis is the structured brief produced by the vision model.
type Analysis struct {
	CurrentAnalysis        string            `json:"current_analysis"`
	SuggestedModifications string            `json:"suggested_modifications"`
	PsychologicalReasoning map[string]string `json:"psychological_reasoning"`
	GenerationPrompt       string            `json:"generation_prompt"`
}

// Backend is a vision-capable chat completion backend.
type Backend interface {
	// Name identifies the backend, e.g. "openai" or "anthropic".
	Name() string
	// Complete sends a prompt with an attached image and returns the raw
	// text of the model's reply.
	Complete(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// Analyzer runs thumbnail analysis against a configured backend.
type Analyzer struct {
	backend Backend
	log     *slog.Logger
}

// New returns an Analyzer over the given backend.
func New(backend Backend, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{backend: backend, log: log}
}

// Backend returns the backend this analyzer runs against.
func (a *Analyzer) Backend() string { return a.backend.Name() }

// NewBackend constructs a vision backend by name.
func NewBackend(name, apiKey, model string) (Backend, error) {
	switch name {
	case "openai":
		return NewOpenAIBackend(OpenAIConfig{APIKey: apiKey, Model: model})
	case "anthropic":
		return NewAnthropicBackend(AnthropicConfig{APIKey: apiKey, Model: model})
	default:
		return nil, vgerr.Errorf(vgerr.CodeAnalyzerRequestInvalid,
			"unknown analysis backend %q", name)
	}
}

// Analyze reads the reference image, queries the backend, and parses the
// reply into a structured Analysis.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, vgerr.New(vgerr.CodeAnalyzerRequestInvalid, "analyze: topic must not be empty")
	}
	if req.ImagePath == "" {
		return nil, vgerr.New(vgerr.CodeAnalyzerRequestInvalid, "analyze: image path must not be empty")
	}

	mimeType := MIMEType(req.ImagePath)
	if mimeType == "" {
		return nil, vgerr.New(vgerr.CodeAnalyzerRequestInvalid,
			"analyze: unsupported image type", vgerr.FieldPath(req.ImagePath))
	}

	image, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, vgerr.Wrap(err, vgerr.CodeAnalyzerRequestInvalid,
			"analyze: reading reference image", vgerr.FieldPath(req.ImagePath))
	}

	prompt := BuildPrompt(req.Topic, req.POV)

	a.log.Info("analyzing reference thumbnail",
		"backend", a.backend.Name(),
		"image", req.ImagePath,
		"topic", req.Topic,
	)

	raw, err := a.backend.Complete(ctx, prompt, image, mimeType)
	if err != nil {
		return nil, err
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return nil, err
	}

	return analysis, nil
}

// MIMEType maps an image file extension to its MIME type, empty when the
// extension is not a supported image format.
func MIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}

// BuildPrompt renders the strategist prompt sent alongside the reference
// image. The reply contract is strict JSON so the response can be parsed
// without the backend's cooperation on formatting.
func BuildPrompt(topic, pov string) string {
	var b strings.Builder

	b.WriteString("You are an expert YouTube thumbnail strategist. Analyze the attached reference thumbnail and design a new thumbnail concept for a different video.\n\n")
	fmt.Fprintf(&b, "New video topic: %s\n", topic)
	if pov != "" {
		fmt.Fprintf(&b, "The story is told from this perspective: %s\n", pov)
	}

	b.WriteString(`
Requirements for the new concept:
- Keep the compositional style and emotional energy of the reference.
- The thumbnail MUST feature a human face with a strong, readable emotion.
- Remove any podcast elements such as microphones, headphones, or studio desks.
- Optimize for curiosity and click-through: the viewer should need to know what happens.
- Any text must be at most four words and readable at small sizes.

Respond with ONLY a JSON object, no prose before or after, in exactly this shape:
{
  "current_analysis": "what makes the reference thumbnail work",
  "suggested_modifications": "how to adapt it to the new topic",
  "psychological_reasoning": {
    "curiosity": "...",
    "emotion": "...",
    "clarity": "..."
  },
  "generation_prompt": "a complete, self-contained prompt for an image generation model"
}
`)

	return b.String()
}

// ParseAnalysis decodes a model reply into an Analysis. Replies wrapped in
// markdown code fences are unwrapped first, since vision models routinely
// fence JSON even when told not to.
func ParseAnalysis(raw string) (*Analysis, error) {
	cleaned := StripFences(raw)

	var analysis Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeAnalyzerResponseInvalid,
			"parsing analysis reply as JSON")
	}

	if analysis.GenerationPrompt == "" {
		return nil, vgerr.New(vgerr.CodeAnalyzerResponseInvalid,
			"analysis reply missing generation_prompt")
	}

	return &analysis, nil
}

// StripFences removes a surrounding markdown code fence from a reply,
// tolerating a ```json language tag. Unfenced input passes through.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}
