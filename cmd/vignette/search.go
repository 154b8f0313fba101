// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vignette-dev/vignette/internal/index"
)

// defaultCLIMatches keeps terminal output short; the API default is wider.
const defaultCLIMatches = 3

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <topic>",
		Short: "Find reference thumbnails matching a topic",
		Long:  "Embed the topic text and rank the indexed reference thumbnails by cosine similarity.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().String("pov", "", "narrative perspective the video is told from")
	cmd.Flags().String("category", "", "restrict matches to one category")
	cmd.Flags().String("image", "", "search by image file instead of the topic text")
	cmd.Flags().IntP("matches", "k", defaultCLIMatches, "number of matches to print")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	topic := strings.Join(args, " ")
	pov, _ := cmd.Flags().GetString("pov")
	category, _ := cmd.Flags().GetString("category")
	imagePath, _ := cmd.Flags().GetString("image")
	k, _ := cmd.Flags().GetInt("matches")

	q := index.SearchQuery{Category: category, K: k}
	if imagePath != "" {
		q.ImagePath = imagePath
	} else {
		q.Text = index.QueryText(topic, pov)
	}

	results, err := svc.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
		return err
	}

	for i, r := range results {
		label := r.Record.Category
		if label == "" {
			label = "-"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%2d. %-40s %-12s %.4f\n", i+1, r.Record.Path, label, r.Score); err != nil {
			return err
		}
	}
	return nil
}
