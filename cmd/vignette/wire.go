// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/vignette-dev/vignette/internal/config"
	"github.com/vignette-dev/vignette/internal/embed/clip"
	"github.com/vignette-dev/vignette/internal/index"
	"github.com/vignette-dev/vignette/internal/secrets"
)

// loadConfig resolves keyring:// secrets on the global Viper and validates
// the effective configuration.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	secrets.ResolveViperSecrets(v, secrets.NewKeyringStore())
	return config.FromViper(v)
}

// newLogger builds the process logger. Verbose mode lowers the level to
// debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log
}

// newIndexService wires the CLIP extractor and the similarity index from
// configuration.
func newIndexService(cfg *config.Config, log *slog.Logger) (*index.Service, error) {
	extractor, err := clip.New(clip.Config{
		Endpoint:   cfg.Embedding.Endpoint,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    60 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return index.NewService(index.ServiceConfig{
		LibraryRoot:  cfg.Library.Root,
		ArtifactPath: cfg.Index.Path,
		DefaultK:     cfg.Index.DefaultK,
		Logger:       log,
	}, extractor)
}
