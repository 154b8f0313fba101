// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package analyzer

import (
	"context"
	"encoding/base64"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIConfig holds OpenAI backend configuration.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string // defaults to gpt-4o
}

// OpenAIBackend implements Backend using the OpenAI Chat Completions API.
type OpenAIBackend struct {
	client openaisdk.Client
	model  string
}

// NewOpenAIBackend creates an OpenAI vision backend. Returns an error if the
// API key is missing.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, vgerr.New(vgerr.CodeAnalyzerRequestInvalid, "openai analyzer: missing api key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIBackend{client: openaisdk.NewClient(opts...), model: model}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage([]openaisdk.ChatCompletionContentPartUnionParam{
				openaisdk.TextContentPart(prompt),
				openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", vgerr.Wrapf(err, vgerr.CodeAnalyzerUpstreamFailure,
			"openai analyzer: chat completion with model %s", b.model)
	}

	if len(resp.Choices) == 0 {
		return "", vgerr.New(vgerr.CodeAnalyzerResponseInvalid,
			"openai analyzer: reply contained no choices", vgerr.FieldModel(b.model))
	}

	return resp.Choices[0].Message.Content, nil
}
