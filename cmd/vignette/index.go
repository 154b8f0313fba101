// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the similarity index",
		Long:  "Scan the reference library, embed every image, and write a fresh index artifact.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := newIndexService(cfg, log)
			if err != nil {
				return err
			}

			n, err := svc.Rebuild(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d images from %s\n", n, cfg.Library.Root)
			return err
		},
	}
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List library categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := newIndexService(cfg, log)
			if err != nil {
				return err
			}
			if err := svc.Ensure(cmd.Context()); err != nil {
				return err
			}

			for _, category := range svc.Categories() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), category); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
