// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vignette-dev/vignette/internal/analyzer"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// Service orchestrates generation runs: it selects a backend, renders the
// image, and writes it under the output directory with a unique name.
type Service struct {
	registry       *Registry
	outputDir      string
	defaultService string
	log            *slog.Logger

	// nameMu serializes sequence-number allocation so two concurrent runs
	// for the same topic cannot claim the same file name.
	nameMu sync.Mutex
}

// NewService returns a generation Service writing into outputDir.
func NewService(registry *Registry, outputDir, defaultService string, log *slog.Logger) (*Service, error) {
	if registry == nil {
		return nil, vgerr.New(vgerr.CodeGeneratorRequestInvalid, "generator service: registry must not be nil")
	}
	if outputDir == "" {
		return nil, vgerr.New(vgerr.CodeGeneratorRequestInvalid, "generator service: output directory must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		registry:       registry,
		outputDir:      outputDir,
		defaultService: defaultService,
		log:            log,
	}, nil
}

// Services returns the names of the registered generation backends.
func (s *Service) Services() []string { return s.registry.Names() }

// Generate renders the request and writes the resulting PNG. Previously
// generated files are never overwritten; each run for a topic gets the next
// free sequence number.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, vgerr.New(vgerr.CodeGeneratorRequestInvalid, "generate: prompt must not be empty")
	}

	name := req.Service
	if name == "" {
		name = s.defaultService
	}

	backend, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	var reference []byte
	var refMIME string
	if req.ReferencePath != "" {
		refMIME = analyzer.MIMEType(req.ReferencePath)
		if refMIME == "" {
			return nil, vgerr.New(vgerr.CodeGeneratorRequestInvalid,
				"generate: unsupported reference image type", vgerr.FieldPath(req.ReferencePath))
		}
		reference, err = os.ReadFile(req.ReferencePath)
		if err != nil {
			return nil, vgerr.Wrap(err, vgerr.CodeGeneratorRequestInvalid,
				"generate: reading reference image", vgerr.FieldPath(req.ReferencePath))
		}
	}

	s.log.Info("generating thumbnail",
		"service", backend.Name(),
		"topic", req.Topic,
		"reference", req.ReferencePath != "",
	)

	png, model, err := backend.Render(ctx, EnhancePrompt(req.Prompt), reference, refMIME)
	if err != nil {
		return nil, err
	}

	path, err := s.writeImage(Slugify(req.Topic), png)
	if err != nil {
		return nil, err
	}

	s.log.Info("thumbnail generated", "service", backend.Name(), "model", model, "path", path)

	return &Result{
		Path:     path,
		Filename: filepath.Base(path),
		Service:  backend.Name(),
		Model:    model,
	}, nil
}

// writeImage picks the next free <slug>_NNN.png name and writes the bytes
// atomically via a temp file rename.
func (s *Service) writeImage(slug string, png []byte) (string, error) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", vgerr.Wrap(err, vgerr.CodeGeneratorWriteFailure,
			"creating output directory", vgerr.FieldPath(s.outputDir))
	}

	seq, err := s.nextSequence(slug)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.outputDir, fmt.Sprintf("%s_%03d.png", slug, seq))
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, png, 0o644); err != nil {
		return "", vgerr.Wrap(err, vgerr.CodeGeneratorWriteFailure,
			"writing generated image", vgerr.FieldPath(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", vgerr.Wrap(err, vgerr.CodeGeneratorWriteFailure,
			"finalizing generated image", vgerr.FieldPath(path))
	}

	return path, nil
}

// nextSequence scans the output directory for existing files of this slug
// and returns one past the highest sequence seen.
func (s *Service) nextSequence(slug string) (int, error) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return 0, vgerr.Wrap(err, vgerr.CodeGeneratorWriteFailure,
			"listing output directory", vgerr.FieldPath(s.outputDir))
	}

	highest := 0
	prefix := slug + "_"
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".png") {
			continue
		}
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".png")
		n, err := strconv.Atoi(numPart)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}

	return highest + 1, nil
}
