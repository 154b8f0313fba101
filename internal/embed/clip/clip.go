// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package clip implements embed.Extractor against a self-hosted CLIP
// inference service. The service exposes a single /embed endpoint taking
// either text or base64 image bytes and returning a float vector; text and
// image vectors live in the same space, which is what makes text-to-image
// search work.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/vignette-dev/vignette/internal/embed"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// DefaultModel is the CLIP variant the default deployment serves.
const DefaultModel = "clip-ViT-B-32"

// DefaultDimensions is the vector length of DefaultModel.
const DefaultDimensions = 512

// Config holds CLIP service connection settings.
type Config struct {
	// Endpoint is the base URL of the inference service, e.g.
	// "http://127.0.0.1:8191".
	Endpoint string
	// Model is the expected model identifier; responses reporting a
	// different model are rejected.
	Model string
	// Dimensions is the expected vector length.
	Dimensions int
	// Timeout bounds a single embed call. Zero means 60s.
	Timeout time.Duration
}

// Compile-time interface check.
var _ embed.Extractor = (*Client)(nil)

// Client is an HTTP client for the CLIP inference service.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client. Returns an error if the endpoint is missing.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, vgerr.New(vgerr.CodeEmbedRequestInvalid, "clip: missing endpoint in config")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) ModelID() string { return c.cfg.Model }

func (c *Client) Dimensions() int { return c.cfg.Dimensions }

func (c *Client) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, vgerr.New(vgerr.CodeEmbedRequestInvalid, "clip: empty image payload")
	}
	return c.embed(ctx, embedRequest{ImageB64: base64.StdEncoding.EncodeToString(data)})
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, vgerr.New(vgerr.CodeEmbedRequestInvalid, "clip: empty text query")
	}
	return c.embed(ctx, embedRequest{Text: text})
}

type embedRequest struct {
	Text     string `json:"text,omitempty"`
	ImageB64 string `json:"image_b64,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Error     string    `json:"error,omitempty"`
}

func (c *Client) embed(ctx context.Context, payload embedRequest) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeEmbedRequestInvalid, "clip: encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeEmbedRequestInvalid, "clip: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeEmbedUpstreamFailure, "clip: calling %s", c.cfg.Endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeEmbedUpstreamFailure, "clip: reading response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, vgerr.New(vgerr.CodeEmbedUpstreamFailure, "clip: extractor returned non-OK status",
			vgerr.Field("status", resp.StatusCode),
			vgerr.Field("body", truncate(string(raw), 200)),
		)
	}

	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, vgerr.Wrapf(err, vgerr.CodeEmbedResponseInvalid, "clip: decoding response")
	}

	if out.Error != "" {
		return nil, vgerr.New(vgerr.CodeEmbedUpstreamFailure, "clip: extractor reported failure",
			vgerr.Field("detail", out.Error))
	}

	if out.Model != "" && out.Model != c.cfg.Model {
		return nil, vgerr.New(vgerr.CodeEmbedResponseInvalid, "clip: extractor model mismatch",
			vgerr.FieldModel(out.Model),
			vgerr.Field("expected", c.cfg.Model),
		)
	}

	if len(out.Embedding) != c.cfg.Dimensions {
		return nil, vgerr.New(vgerr.CodeEmbedResponseInvalid, "clip: unexpected vector length",
			vgerr.Field("got", len(out.Embedding)),
			vgerr.Field("expected", c.cfg.Dimensions),
		)
	}

	return out.Embedding, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
