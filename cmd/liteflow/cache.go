package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/config"
	"github.com/zulandar/liteflow/internal/remote"
	"github.com/zulandar/liteflow/internal/storage"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the lookup cache",
	}
	cmd.AddCommand(newCacheClearCmd(configPath))
	cmd.AddCommand(newCachePurgeCmd(configPath))
	return cmd
}

// cachePrefixes maps clear categories to key prefixes; "all" clears everything.
var cachePrefixes = map[string]string{
	"github": remote.CachePrefix,
	"s3":     storage.CachePrefix,
	"all":    "",
}

func newCacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "clear [github|s3|all]",
		Short:     "Remove cached GitHub or S3 lookups",
		Long:      "Removes cached entries for one category. Without an argument every entry is removed.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"github", "s3", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			category := "all"
			if len(args) == 1 {
				category = args[0]
			}
			prefix, ok := cachePrefixes[category]
			if !ok {
				return fmt.Errorf("unknown cache category %q (want github, s3 or all)", category)
			}
			return runCacheClear(cmd, *configPath, category, prefix)
		},
	}
}

// openSharedCache opens the on-disk cache for maintenance. A memory cache
// lives only inside the serve process and a locked file means serve is
// running; both are reported instead of touching an unrelated store.
func openSharedCache(cfg *config.Config) (*cache.Cache, error) {
	if cfg.Cache.Type == config.CacheMemory {
		return nil, errors.New("cache type is memory: entries live inside the running serve process, use Clear cache in the console")
	}
	c, err := openCache(cfg)
	if errors.Is(err, cache.ErrLocked) {
		return nil, fmt.Errorf("cache is in use by a running liteflow serve, use Clear cache in the console or stop the server: %w", err)
	}
	return c, err
}

func runCacheClear(cmd *cobra.Command, configPath, category, prefix string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	c, err := openSharedCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var n int
	if prefix == "" {
		n, err = c.Clear()
	} else {
		n, err = c.ClearPrefix(prefix)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s cache entries.\n", n, category)
	return nil
}

func newCachePurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c, err := openSharedCache(cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			n, err := c.PurgeExpired()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries.\n", n)
			return nil
		},
	}
}
