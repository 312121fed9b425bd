// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sesla/securipaperbot/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the artifact cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if !cfg.Cache.Enabled {
			fmt.Println("cache is disabled")
			return nil
		}
		c, err := cache.New(cfg.Cache, nil)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, bytes := c.Stats()
		fmt.Printf("cache path: %s\n", cfg.Cache.Path)
		fmt.Printf("entries:    %d\n", entries)
		fmt.Printf("size:       %d bytes (limit %d)\n", bytes, cfg.Cache.MaxSize)
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Evict expired cache entries and remove old downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		if cfg.Cache.Enabled {
			c, err := cache.New(cfg.Cache, nil)
			if err != nil {
				return err
			}
			before, _ := c.Stats()
			c.Sweep(time.Now())
			after, _ := c.Stats()
			c.Close()
			fmt.Printf("evicted %d expired cache entries\n", before-after)
		}

		env, err := newDownloadEnv(cfg)
		if err != nil {
			return err
		}
		defer env.close()

		removed, err := env.downloader.CleanupOld(time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d downloads older than %d days\n", removed, cfg.Download.CleanupDays)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
	rootCmd.AddCommand(cacheCmd)
}
