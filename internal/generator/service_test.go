// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package generator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignette-dev/vignette/internal/generator"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func newTestService(t *testing.T, outputDir string, backends ...generator.Generator) *generator.Service {
	t.Helper()
	reg := generator.NewRegistry()
	for _, b := range backends {
		reg.Register(b)
	}
	svc, err := generator.NewService(reg, outputDir, "openai", nil)
	require.NoError(t, err)
	return svc
}

func TestGenerateWritesSequencedFiles(t *testing.T) {
	out := t.TempDir()
	stub := &stubGenerator{name: "openai", png: []byte("png-bytes"), model: "dall-e-3"}
	svc := newTestService(t, out, stub)

	first, err := svc.Generate(context.Background(), generator.Request{
		Prompt: "a shocked detective",
		Topic:  "True Crime",
	})
	require.NoError(t, err)
	assert.Equal(t, "true_crime_001.png", first.Filename)
	assert.Equal(t, "openai", first.Service)
	assert.Equal(t, "dall-e-3", first.Model)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	// A second run for the same topic takes the next sequence number and
	// leaves the first file untouched.
	second, err := svc.Generate(context.Background(), generator.Request{
		Prompt: "a shocked detective, wider shot",
		Topic:  "True Crime",
	})
	require.NoError(t, err)
	assert.Equal(t, "true_crime_002.png", second.Filename)

	_, err = os.Stat(first.Path)
	assert.NoError(t, err)
}

func TestGenerateEnhancesPrompt(t *testing.T) {
	stub := &stubGenerator{name: "openai", png: []byte("png"), model: "dall-e-3"}
	svc := newTestService(t, t.TempDir(), stub)

	_, err := svc.Generate(context.Background(), generator.Request{Prompt: "a volcano", Topic: "volcano"})
	require.NoError(t, err)
	assert.Contains(t, stub.prompt, "16:9")
	assert.Contains(t, stub.prompt, "a volcano")
}

func TestGeneratePassesReference(t *testing.T) {
	stub := &stubGenerator{name: "openai", png: []byte("png"), model: "dall-e-3"}
	svc := newTestService(t, t.TempDir(), stub)

	ref := filepath.Join(t.TempDir(), "ref.jpg")
	require.NoError(t, os.WriteFile(ref, []byte("ref-bytes"), 0o644))

	_, err := svc.Generate(context.Background(), generator.Request{
		Prompt:        "a volcano",
		Topic:         "volcano",
		ReferencePath: ref,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ref-bytes"), stub.reference)
	assert.Equal(t, "image/jpeg", stub.refMIME)
}

func TestGenerateSelectsService(t *testing.T) {
	openaiStub := &stubGenerator{name: "openai", png: []byte("png"), model: "dall-e-3"}
	googleStub := &stubGenerator{name: "google", png: []byte("png"), model: "gemini-2.5-flash-image"}
	svc := newTestService(t, t.TempDir(), openaiStub, googleStub)

	res, err := svc.Generate(context.Background(), generator.Request{
		Prompt:  "a volcano",
		Topic:   "volcano",
		Service: "google",
	})
	require.NoError(t, err)
	assert.Equal(t, "google", res.Service)
	assert.Equal(t, 0, openaiStub.calls)
	assert.Equal(t, 1, googleStub.calls)

	// Empty service falls back to the default.
	res, err = svc.Generate(context.Background(), generator.Request{Prompt: "p", Topic: "volcano"})
	require.NoError(t, err)
	assert.Equal(t, "openai", res.Service)
}

func TestGenerateValidation(t *testing.T) {
	svc := newTestService(t, t.TempDir(), &stubGenerator{name: "openai", png: []byte("png")})

	_, err := svc.Generate(context.Background(), generator.Request{Topic: "t"})
	assert.True(t, vgerr.IsInvalidInput(err), "empty prompt must be rejected")

	_, err = svc.Generate(context.Background(), generator.Request{
		Prompt: "p", Topic: "t", Service: "midjourney",
	})
	assert.True(t, vgerr.HasCode(err, vgerr.CodeGeneratorNotFound))

	_, err = svc.Generate(context.Background(), generator.Request{
		Prompt: "p", Topic: "t", ReferencePath: filepath.Join(t.TempDir(), "absent.jpg"),
	})
	assert.True(t, vgerr.IsInvalidInput(err), "missing reference must be rejected")

	_, err = svc.Generate(context.Background(), generator.Request{
		Prompt: "p", Topic: "t", ReferencePath: "ref.txt",
	})
	assert.True(t, vgerr.IsInvalidInput(err), "non-image reference must be rejected")
}

func TestGenerateBackendFailureLeavesNoFile(t *testing.T) {
	out := t.TempDir()
	stub := &stubGenerator{
		name: "openai",
		err:  vgerr.New(vgerr.CodeGeneratorUpstreamFailure, "model unavailable"),
	}
	svc := newTestService(t, out, stub)

	_, err := svc.Generate(context.Background(), generator.Request{Prompt: "p", Topic: "t"})
	require.Error(t, err)
	assert.True(t, vgerr.IsUpstreamFailure(err))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
