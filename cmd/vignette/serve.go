// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vignette-dev/vignette/internal/analyzer"
	"github.com/vignette-dev/vignette/internal/config"
	"github.com/vignette-dev/vignette/internal/generator"
	"github.com/vignette-dev/vignette/internal/media"
	"github.com/vignette-dev/vignette/internal/server"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Vignette HTTP API",
		Long:  "Load configuration, build or load the similarity index, and serve the search, analysis, and generation API.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	indexSvc, err := newIndexService(cfg, log)
	if err != nil {
		return err
	}
	if err := indexSvc.Ensure(ctx); err != nil {
		// The API can still serve reindex and uploads; search reports
		// the index as unavailable until a rebuild succeeds.
		log.Warn("index not ready at startup", "error", err)
	}

	lib, err := media.NewLibrary(cfg.Library.Root, cfg.Uploads.Dir, cfg.Generation.OutputDir, log)
	if err != nil {
		return err
	}

	analyzerSvc := buildAnalyzer(cfg, log)
	generatorSvc, err := buildGenerators(cfg, log)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Networking.CORSOrigins,
	}, log)
	if err != nil {
		return err
	}

	srv.RegisterServices(&server.Services{
		Index:     indexSvc,
		Analyzer:  analyzerSvc,
		Generator: generatorSvc,
		Media:     lib,
	})

	log.Info("vignette starting",
		"listen", cfg.Networking.Listen,
		"library", cfg.Library.Root,
		"analysis_backend", analyzerSvc.Backend(),
		"generation_services", generatorSvc.Services(),
	)

	return srv.Start(ctx)
}

// buildAnalyzer wires the configured analysis backend. Without an API key
// the analyzer stays registered but rejects requests, so the rest of the
// API keeps working.
func buildAnalyzer(cfg *config.Config, log *slog.Logger) server.AnalyzerService {
	backendName := cfg.Analysis.Backend
	key := cfg.APIKey(backendName)
	if key == "" {
		log.Warn("analysis disabled: no api key configured", "backend", backendName)
		return disabledAnalyzer{backend: backendName}
	}

	backend, err := analyzer.NewBackend(backendName, key, cfg.Analysis.Model)
	if err != nil {
		log.Warn("analysis disabled", "backend", backendName, "error", err)
		return disabledAnalyzer{backend: backendName}
	}

	return analyzer.New(backend, log)
}

// buildGenerators registers every generation service that has an API key.
func buildGenerators(cfg *config.Config, log *slog.Logger) (*generator.Service, error) {
	registry := generator.NewRegistry()

	if key := cfg.APIKey("openai"); key != "" {
		g, err := generator.NewOpenAIGenerator(generator.OpenAIConfig{APIKey: key})
		if err != nil {
			return nil, err
		}
		registry.Register(g)
	}

	if key := cfg.APIKey("google"); key != "" {
		g, err := generator.NewGoogleGenerator(generator.GoogleConfig{APIKey: key}, log)
		if err != nil {
			return nil, err
		}
		registry.Register(g)
	}

	if len(registry.Names()) == 0 {
		log.Warn("generation disabled: no provider api keys configured")
	}

	return generator.NewService(registry, cfg.Generation.OutputDir, cfg.Generation.DefaultService, log)
}

// disabledAnalyzer rejects analysis requests when no backend is configured.
type disabledAnalyzer struct {
	backend string
}

func (d disabledAnalyzer) Analyze(context.Context, analyzer.Request) (*analyzer.Analysis, error) {
	return nil, vgerr.New(vgerr.CodeAnalyzerRequestInvalid,
		"analysis backend not configured: set providers."+d.backend+".api_key")
}

func (d disabledAnalyzer) Backend() string { return d.backend + " (disabled)" }
