package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(c *cli) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the dataset cache",
	}
	cmd.PersistentFlags().StringVar(&dir, "cache", "", "cache directory (default from config)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show the number and size of cached datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openCacheDir(dir)
			if err != nil {
				return err
			}
			st, err := store.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, %d bytes\n", store.Dir(), st.Entries, st.Bytes)
			return nil
		},
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openCacheDir(dir)
			if err != nil {
				return err
			}
			removed, err := store.Purge(olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "only remove entries older than this (0 removes all)")

	cmd.AddCommand(stats, purge)
	return cmd
}
