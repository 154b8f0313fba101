// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// Config is the top-level Vignette configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking" yaml:"networking"`
	Library    LibraryConfig             `mapstructure:"library" yaml:"library"`
	Index      IndexConfig               `mapstructure:"index" yaml:"index"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding" yaml:"embedding"`
	Analysis   AnalysisConfig            `mapstructure:"analysis" yaml:"analysis"`
	Generation GenerationConfig          `mapstructure:"generation" yaml:"generation"`
	Uploads    UploadsConfig             `mapstructure:"uploads" yaml:"uploads"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// NetworkingConfig controls how Vignette listens for connections.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LibraryConfig locates the reference image library.
type LibraryConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// IndexConfig controls the persisted embedding index.
type IndexConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	DefaultK int    `mapstructure:"default_k" yaml:"default_k"`
}

// EmbeddingConfig points at the feature-extraction service.
type EmbeddingConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	Model      string `mapstructure:"model" yaml:"model"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
}

// AnalysisConfig selects the vision-analysis backend.
type AnalysisConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// GenerationConfig controls image generation output.
type GenerationConfig struct {
	OutputDir      string `mapstructure:"output_dir" yaml:"output_dir"`
	DefaultService string `mapstructure:"default_service" yaml:"default_service"`
}

// UploadsConfig locates the scratch directory for uploaded references.
type UploadsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ProviderConfig holds credentials for an AI provider. The api_key value
// may be a keyring://service/key URI, resolved after load.
type ProviderConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// SetDefaults installs Vignette's default configuration on a Viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8461")
	v.SetDefault("library.root", "thumbnails")
	v.SetDefault("index.path", "data/index.db")
	v.SetDefault("index.default_k", 12)
	v.SetDefault("embedding.endpoint", "http://127.0.0.1:8191")
	v.SetDefault("embedding.model", "clip-ViT-B-32")
	v.SetDefault("embedding.dimensions", 512)
	v.SetDefault("analysis.backend", "openai")
	v.SetDefault("analysis.model", "")
	v.SetDefault("generation.output_dir", "generated")
	v.SetDefault("generation.default_service", "openai")
	v.SetDefault("uploads.dir", "uploads")
}

// SetupEnv binds environment variables with the VIGNETTE_ prefix, so e.g.
// VIGNETTE_NETWORKING_LISTEN overrides networking.listen.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("VIGNETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults only when the
// path is empty) with environment overrides, and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, vgerr.Errorf(vgerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by a Viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// APIKey returns the configured key for a provider, empty when absent.
func (c *Config) APIKey(provider string) string {
	if c.Providers == nil {
		return ""
	}
	return c.Providers[provider].APIKey
}

// Validate checks the configuration for logical errors, collecting all
// issues rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validatePaths()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateServices()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validatePaths() []error {
	var errs []error

	if c.Library.Root == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: library.root must not be empty"))
	}
	if c.Index.Path == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: index.path must not be empty"))
	}
	if c.Index.DefaultK <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: index.default_k must be greater than 0, got %d", c.Index.DefaultK))
	}
	if c.Generation.OutputDir == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: generation.output_dir must not be empty"))
	}
	if c.Uploads.Dir == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: uploads.dir must not be empty"))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if c.Embedding.Endpoint == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: embedding.endpoint must not be empty"))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue, "config: embedding.model must not be empty"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}

	return errs
}

func (c *Config) validateServices() []error {
	var errs []error

	validBackends := map[string]bool{"openai": true, "anthropic": true}
	if !validBackends[c.Analysis.Backend] {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: analysis.backend must be one of [openai, anthropic], got %q", c.Analysis.Backend))
	}

	validServices := map[string]bool{"openai": true, "google": true}
	if !validServices[c.Generation.DefaultService] {
		errs = append(errs, vgerr.Errorf(vgerr.CodeConfigValidateInvalidValue,
			"config: generation.default_service must be one of [openai, google], got %q", c.Generation.DefaultService))
	}

	return errs
}
