// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package generator

import (
	"context"
	"log/slog"

	"google.golang.org/genai"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// googleImageModels are tried in order until one accepts the request.
// Preview model names rotate, so the list carries known fallbacks.
var googleImageModels = []string{
	"gemini-2.5-flash-image",
	"gemini-2.5-flash-image-preview",
	"gemini-2.0-flash-preview-image-generation",
}

// GoogleConfig holds Google generation configuration.
type GoogleConfig struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	// Models overrides the fallback model list, mainly for tests.
	Models []string
}

// GoogleGenerator renders thumbnails with the Gemini image models. Unlike
// the OpenAI backend it can take the reference image directly as input.
type GoogleGenerator struct {
	client *genai.Client
	models []string
	log    *slog.Logger
}

// NewGoogleGenerator creates the Google generation backend. Returns an
// error if the API key is missing.
func NewGoogleGenerator(cfg GoogleConfig, log *slog.Logger) (*GoogleGenerator, error) {
	if cfg.APIKey == "" {
		return nil, vgerr.New(vgerr.CodeGeneratorRequestInvalid, "google generator: missing api key")
	}
	if log == nil {
		log = slog.Default()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeGeneratorUpstreamFailure, "google generator: creating client")
	}

	models := cfg.Models
	if len(models) == 0 {
		models = googleImageModels
	}

	return &GoogleGenerator{client: client, models: models, log: log}, nil
}

func (g *GoogleGenerator) Name() string { return "google" }

func (g *GoogleGenerator) Render(ctx context.Context, prompt string, reference []byte, refMIME string) ([]byte, string, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	png, model, err := g.tryModels(ctx, buildGoogleContents(prompt, reference, refMIME), config)
	if err != nil && len(reference) > 0 {
		// A reference rejected by every model is dropped, not fatal.
		g.log.Warn("reference-guided generation failed with every model, retrying text-only", "error", err)
		png, model, err = g.tryModels(ctx, buildGoogleContents(prompt, nil, ""), config)
	}
	return png, model, err
}

func (g *GoogleGenerator) tryModels(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) ([]byte, string, error) {
	var lastErr error
	for _, model := range g.models {
		resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			g.log.Warn("image model rejected request, trying fallback", "model", model, "error", err)
			lastErr = err
			continue
		}

		if png := extractInlineImage(resp); png != nil {
			return png, model, nil
		}

		g.log.Warn("image model returned no image data, trying fallback", "model", model)
		lastErr = vgerr.New(vgerr.CodeGeneratorUpstreamFailure,
			"google generator: reply contained no image data", vgerr.FieldModel(model))
	}

	return nil, "", vgerr.Wrapf(lastErr, vgerr.CodeGeneratorUpstreamFailure,
		"google generator: all image models failed")
}

func buildGoogleContents(prompt string, reference []byte, refMIME string) []*genai.Content {
	parts := []*genai.Part{}
	if len(reference) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: refMIME, Data: reference},
		})
	}
	parts = append(parts, &genai.Part{Text: prompt})

	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
}

func extractInlineImage(resp *genai.GenerateContentResponse) []byte {
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
