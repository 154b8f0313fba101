// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package analyzer

import (
	"context"
	"encoding/base64"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicConfig holds Anthropic backend configuration.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string // defaults to claude-sonnet-4-5
}

// AnthropicBackend implements Backend using the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropicsdk.Client
	model  string
}

// NewAnthropicBackend creates an Anthropic vision backend. Returns an error
// if the API key is missing.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, vgerr.New(vgerr.CodeAnalyzerRequestInvalid, "anthropic analyzer: missing api key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicBackend{client: anthropicsdk.NewClient(opts...), model: model}, nil
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Complete(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(b.model),
		MaxTokens: 2048,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(
				anthropicsdk.NewImageBlockBase64(mimeType, encoded),
				anthropicsdk.NewTextBlock(prompt),
			),
		},
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", vgerr.Wrapf(err, vgerr.CodeAnalyzerUpstreamFailure,
			"anthropic analyzer: message with model %s", b.model)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}

	if sb.Len() == 0 {
		return "", vgerr.New(vgerr.CodeAnalyzerResponseInvalid,
			"anthropic analyzer: reply contained no text blocks", vgerr.FieldModel(b.model))
	}

	return sb.String(), nil
}
