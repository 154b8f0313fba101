// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package generator

import (
	"context"
	"encoding/base64"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

const (
	openaiImageModel  = openaisdk.ImageModelDallE3
	openaiVisionModel = "gpt-4o"
)

// OpenAIConfig holds OpenAI generation configuration.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// OpenAIGenerator renders thumbnails with DALL-E 3. The image API cannot
// take a reference image directly, so when one is supplied a vision chat
// model first rewrites the prompt to carry the reference's style.
type OpenAIGenerator struct {
	client openaisdk.Client
}

// NewOpenAIGenerator creates the OpenAI generation backend. Returns an
// error if the API key is missing.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, vgerr.New(vgerr.CodeGeneratorRequestInvalid, "openai generator: missing api key")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{client: openaisdk.NewClient(opts...)}, nil
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Render(ctx context.Context, prompt string, reference []byte, refMIME string) ([]byte, string, error) {
	if len(reference) > 0 {
		adapted, err := g.adaptPrompt(ctx, prompt, reference, refMIME)
		if err != nil {
			return nil, "", err
		}
		prompt = adapted
	}

	resp, err := g.client.Images.Generate(ctx, openaisdk.ImageGenerateParams{
		Model:          openaiImageModel,
		Prompt:         prompt,
		N:              param.NewOpt(int64(1)),
		Size:           openaisdk.ImageGenerateParamsSize1792x1024,
		ResponseFormat: openaisdk.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, "", vgerr.Wrapf(err, vgerr.CodeGeneratorUpstreamFailure,
			"openai generator: image generation with %s", openaiImageModel)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, "", vgerr.New(vgerr.CodeGeneratorUpstreamFailure,
			"openai generator: reply contained no image data")
	}

	png, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, "", vgerr.Wrapf(err, vgerr.CodeGeneratorUpstreamFailure,
			"openai generator: decoding image payload")
	}

	return png, string(openaiImageModel), nil
}

// adaptPrompt asks a vision model to fold the reference thumbnail's
// composition and style into the generation prompt.
func (g *OpenAIGenerator) adaptPrompt(ctx context.Context, prompt string, reference []byte, refMIME string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", refMIME, base64.StdEncoding.EncodeToString(reference))

	instruction := "Study the attached reference thumbnail. Rewrite the following image generation prompt so the result matches the reference's composition, color grading, and energy while keeping the prompt's subject. Reply with the rewritten prompt only.\n\nPrompt: " + prompt

	resp, err := g.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(openaiVisionModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage([]openaisdk.ChatCompletionContentPartUnionParam{
				openaisdk.TextContentPart(instruction),
				openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return "", vgerr.Wrapf(err, vgerr.CodeGeneratorUpstreamFailure,
			"openai generator: adapting prompt with %s", openaiVisionModel)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", vgerr.New(vgerr.CodeGeneratorUpstreamFailure,
			"openai generator: prompt adaptation returned no text")
	}

	return resp.Choices[0].Message.Content, nil
}
