package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pathmap/internal/config"
	"github.com/matzehuels/pathmap/pkg/cache"
)

var cacheBindings = map[string]string{
	"cache.backend": "cache",
}

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the tile cache",
	}
	cmd.PersistentFlags().String("cache", "", "cache backend: file, redis, none")

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached tiles and tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, cacheBindings)
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == config.BackendNone {
				printInfo("Caching is disabled")
				return nil
			}

			store, err := cfg.OpenCache(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			var count int
			switch s := store.(type) {
			case *cache.FileCache:
				if count, err = s.Purge(); err != nil {
					return fmt.Errorf("clear %s: %w", s.Dir(), err)
				}
				printSuccess("Cleared %d cached entries", count)
				printDetail("Directory: %s", s.Dir())
			case *cache.RedisCache:
				if count, err = s.Purge(cmd.Context(), config.RedisKeyPrefix); err != nil {
					return fmt.Errorf("clear redis: %w", err)
				}
				printSuccess("Cleared %d cached entries", count)
				printDetail("Redis keys: %s*", config.RedisKeyPrefix)
			default:
				printWarning("Backend %q cannot be cleared", cfg.Cache.Backend)
			}
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where tiles are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, cacheBindings)
			if err != nil {
				return err
			}
			switch cfg.Cache.Backend {
			case config.BackendRedis:
				fmt.Fprintln(cmd.OutOrStdout(), cfg.Cache.RedisURL)
			case config.BackendNone:
				printInfo("Caching is disabled")
			default:
				dir, err := cfg.CacheDir()
				if err != nil {
					return fmt.Errorf("get cache dir: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
			}
			return nil
		},
	}
}
