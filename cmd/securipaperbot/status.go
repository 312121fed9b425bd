// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sesla/securipaperbot/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the download ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		ledger, err := store.Open(filepath.Join(cfg.Download.Path, ".ledger"))
		if err != nil {
			return err
		}
		defer ledger.Close()

		summary, err := ledger.Summarize(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("papers:     %d\n", summary.Papers)
		fmt.Printf("collisions: %d\n", summary.Collisions)

		states := make([]string, 0, len(summary.ByState))
		for state := range summary.ByState {
			states = append(states, state)
		}
		sort.Strings(states)
		for _, state := range states {
			fmt.Printf("  %-10s %d\n", state, summary.ByState[state])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
