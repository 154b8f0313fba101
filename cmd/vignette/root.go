// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vignette-dev/vignette/internal/config"
	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// NewRootCmd creates the root vignette command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vignette",
		Short:         "Vignette, a reference-driven thumbnail workbench",
		Long:          "Vignette indexes a library of reference thumbnails, finds the ones closest to a new video topic, and turns them into generated thumbnails through AI analysis.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("library", "", "path to the reference thumbnail library")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newCategoriesCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return vgerr.Errorf(vgerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// Auto-discover vignette.yaml from standard locations.
		// Note: SetConfigType is intentionally omitted. When set, Viper
		// falls back to trying the bare config name without extension,
		// which collides with the ./vignette binary in the project root.
		v.SetConfigName("vignette")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/vignette")
		v.AddConfigPath("/etc/vignette")
		// No config file is fine, defaults and env vars still apply.
		// Parse or permission errors must surface.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return vgerr.Errorf(vgerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			// No config found anywhere, bootstrap a default to ~/.config/vignette/.
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return vgerr.Errorf(vgerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	// Bind persistent flags to viper keys.
	if err := v.BindPFlag("library.root", cmd.Root().PersistentFlags().Lookup("library")); err != nil {
		return vgerr.Errorf(vgerr.CodeCLISetupFailure, "binding library flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return vgerr.Errorf(vgerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}
