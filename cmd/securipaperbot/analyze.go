// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sesla/securipaperbot/internal/agents"
	"github.com/sesla/securipaperbot/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis pipeline for conference years",
	Long: `Analyze downloads papers for the given conferences and years and runs
each one through the stage pipeline: repository link extraction, per-repository
code analysis, quality assessment, and report generation. A report is written
for every paper, with sections flagged absent when an earlier stage failed.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("conference", "", "conference ids, comma separated (ccs, sp, ndss, usenix)")
	analyzeCmd.Flags().String("year", "", "two-digit years, comma separated (e.g. 23,24)")
	analyzeCmd.Flags().String("url", "", "override the publisher base URL")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	conferences, years, err := conferenceYearArgs(cmd)
	if err != nil {
		return err
	}
	cfg := loadConfig()
	if baseURL, _ := cmd.Flags().GetString("url"); baseURL != "" {
		for id, conf := range cfg.Conferences {
			conf.BaseURL = baseURL
			cfg.Conferences[id] = conf
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newDownloadEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	records, err := env.listRecords(ctx, cfg, conferences, years, os.Stdout)
	if err != nil {
		return err
	}

	coordinator := pipeline.NewCoordinator(env.downloader, env.cache, pipeline.Agents{
		Research:      agents.Research{},
		CodeAnalysis:  agents.CodeAnalysis{},
		Quality:       agents.Quality{},
		Documentation: agents.Documentation{Format: cfg.Output.Format},
	}, cfg.Output, env.logger)

	summary, contexts, err := coordinator.ProcessPapers(ctx, records, os.Stdout)
	if err != nil {
		return err
	}

	for _, pc := range contexts {
		collided, recErr := env.ledger.RecordPaper(ctx, pc.Record, pc.PDFPath)
		if recErr != nil {
			env.logger.Warn("ledger paper write failed", "id", pc.Record.CanonicalID, "err", recErr)
		} else if collided {
			env.logger.Warn("canonical id collision in ledger", "id", pc.Record.CanonicalID)
		}
	}

	if summary.Errored > 0 {
		return fmt.Errorf("%d paper(s) errored during analysis", summary.Errored)
	}
	return nil
}
