package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vilaca/labelage/internal/cache"
)

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached API records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete cached issue and event files",
		Long: `Delete the cached issue and event files of the current configuration so the
next run fetches them again. Each platform, repository and label query is
cached in its own directory below --cache-dir; other queries and files not
written by labelage are left alone.`,
		Args: cobra.NoArgs,
		RunE: a.runCacheClear,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the cache directory of the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cleanup, err := a.load(cmd.Context())
			defer cleanup()
			if err != nil {
				return err
			}
			dir, err := cacheDir(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, dir)
			return nil
		},
	})

	return cmd
}

func (a *app) runCacheClear(cmd *cobra.Command, _ []string) error {
	cfg, cleanup, err := a.load(cmd.Context())
	defer cleanup()
	if err != nil {
		return err
	}

	dir, err := cacheDir(cfg)
	if err != nil {
		return err
	}

	store := cache.NewFileCache(dir, a.logger(cfg))
	n, err := store.Clear(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %d cached files from %s\n", n, store.Dir())
	return nil
}
