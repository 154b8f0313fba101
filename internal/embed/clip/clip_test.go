// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package clip_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vignette-dev/vignette/internal/embed/clip"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedTextRoundTrip(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)

		var req struct {
			Text     string `json:"text"`
			ImageB64 string `json:"image_b64"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "drama movie poster", req.Text)
		assert.Empty(t, req.ImageB64)

		vec := make([]float32, 4)
		vec[0] = 1
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": vec,
			"model":     "clip-test",
		})
	})

	c, err := clip.New(clip.Config{Endpoint: srv.URL, Model: "clip-test", Dimensions: 4})
	require.NoError(t, err)

	vec, err := c.EmbedText(context.Background(), "drama movie poster")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, float32(1), vec[0])
}

func TestEmbedImageSendsBase64(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImageB64 string `json:"image_b64"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, err := base64.StdEncoding.DecodeString(req.ImageB64)
		require.NoError(t, err)
		assert.Equal(t, raw, decoded)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": make([]float32, 4),
			"model":     "clip-test",
		})
	})

	c, err := clip.New(clip.Config{Endpoint: srv.URL, Model: "clip-test", Dimensions: 4})
	require.NoError(t, err)

	_, err = c.EmbedImage(context.Background(), raw)
	require.NoError(t, err)
}

func TestEmbedRejectsEmptyInputs(t *testing.T) {
	c, err := clip.New(clip.Config{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.EmbedText(context.Background(), "")
	assert.True(t, vgerr.HasCode(err, vgerr.CodeEmbedRequestInvalid))

	_, err = c.EmbedImage(context.Background(), nil)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeEmbedRequestInvalid))
}

func TestEmbedUpstreamErrorStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	c, err := clip.New(clip.Config{Endpoint: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	_, err = c.EmbedText(context.Background(), "query")
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeEmbedUpstreamFailure))
}

func TestEmbedModelMismatchRejected(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": make([]float32, 4),
			"model":     "clip-ViT-L-14",
		})
	})

	c, err := clip.New(clip.Config{Endpoint: srv.URL, Model: "clip-ViT-B-32", Dimensions: 4})
	require.NoError(t, err)

	_, err = c.EmbedText(context.Background(), "query")
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeEmbedResponseInvalid))
}

func TestEmbedDimensionMismatchRejected(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": make([]float32, 8),
			"model":     "clip-test",
		})
	})

	c, err := clip.New(clip.Config{Endpoint: srv.URL, Model: "clip-test", Dimensions: 4})
	require.NoError(t, err)

	_, err = c.EmbedText(context.Background(), "query")
	require.Error(t, err)
	assert.True(t, vgerr.HasCode(err, vgerr.CodeEmbedResponseInvalid))
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := clip.New(clip.Config{})
	require.Error(t, err)
	assert.True(t, vgerr.IsInvalidInput(err))
}
