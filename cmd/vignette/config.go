// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vignette-dev/vignette/internal/config"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after merging defaults, config file, environment, and flags. Provider API keys are redacted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return vgerr.Wrapf(err, vgerr.CodeCLISetupFailure, "rendering config")
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

// effectiveConfig mirrors config.Config with yaml tags for display.
type effectiveConfig struct {
	Networking config.NetworkingConfig   `yaml:"networking"`
	Library    config.LibraryConfig      `yaml:"library"`
	Index      config.IndexConfig        `yaml:"index"`
	Embedding  config.EmbeddingConfig    `yaml:"embedding"`
	Analysis   config.AnalysisConfig     `yaml:"analysis"`
	Generation config.GenerationConfig   `yaml:"generation"`
	Uploads    config.UploadsConfig      `yaml:"uploads"`
	Providers  map[string]providerStatus `yaml:"providers"`
}

type providerStatus struct {
	APIKey string `yaml:"api_key"`
}

func redacted(cfg *config.Config) effectiveConfig {
	providers := make(map[string]providerStatus, len(cfg.Providers))
	for name, p := range cfg.Providers {
		status := "(not set)"
		if p.APIKey != "" {
			status = "(set, redacted)"
		}
		providers[name] = providerStatus{APIKey: status}
	}

	return effectiveConfig{
		Networking: cfg.Networking,
		Library:    cfg.Library,
		Index:      cfg.Index,
		Embedding:  cfg.Embedding,
		Analysis:   cfg.Analysis,
		Generation: cfg.Generation,
		Uploads:    cfg.Uploads,
		Providers:  providers,
	}
}
