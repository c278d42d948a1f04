package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cachePruneCommand())

	return cmd
}

// localCacheDir returns the directory of a file or sqlite cache.
func (c *CLI) localCacheDir() (string, error) {
	cfg := c.config()
	switch cfg.Cache.Backend {
	case cache.BackendFile, cache.BackendSQLite:
		return cfg.CacheDir()
	}
	return "", errors.New(errors.ErrCodeUnsupported, "the %s cache backend has no local directory", cfg.Cache.Backend)
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			dir, err := c.localCacheDir()
			if err != nil {
				return err
			}

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo(out, "Cache is empty")
				return nil
			}

			count, err := clearDir(dir)
			if err != nil {
				return err
			}
			printSuccess(out, "Cleared %d cached entries", count)
			printDetail(out, "Directory: %s", dir)
			return nil
		},
	}
}

// clearDir removes every file below dir, then the emptied subdirectories.
// Unreadable entries are skipped.
func clearDir(dir string) (int, error) {
	count := 0
	var subdirs []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if info.IsDir() {
			subdirs = append(subdirs, path)
			return nil
		}
		if err := os.Remove(path); err == nil {
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	for i := len(subdirs) - 1; i >= 0; i-- {
		os.Remove(subdirs[i])
	}
	return count, nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.config().CacheDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// cachePruneCommand creates the "cache prune" subcommand.
func (c *CLI) cachePruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop expired entries from the sqlite cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if b := c.config().Cache.Backend; b != cache.BackendSQLite {
				return errors.New(errors.ErrCodeUnsupported, "prune needs the sqlite backend (configured: %s)", b)
			}
			dir, err := c.localCacheDir()
			if err != nil {
				return err
			}
			db, err := cache.NewSQLiteCache(filepath.Join(dir, "cache.db"))
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Prune(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Pruned %d expired entries", n)
			return nil
		},
	}
}
