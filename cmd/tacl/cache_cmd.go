package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/tacfg"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local SQLite work caches",
	}

	cmd.AddCommand(newCacheOverviewCmd(), newCacheClearCmd())

	return cmd
}

func newCacheOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "List every directory tracked by each work cache",
		Args:  cobra.NoArgs,
		RunE:  runCacheOverview,
	}
}

func runCacheOverview(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())

	bundle, err := cache.OpenBundle(cmd.Context(), tacfg.CacheDir(), cc.Logger)
	if err != nil {
		return fmt.Errorf("tacl: opening cache: %w", err)
	}
	defer bundle.Close()

	overview, err := bundle.TenantOverview(cmd.Context())
	if err != nil {
		return fmt.Errorf("tacl: reading cache overview: %w", err)
	}

	for kind, entries := range overview {
		if len(entries) == 0 {
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", kind)

		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", e.Path, e.DisplayName)
		}
	}

	return nil
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every tracked directory's work table across all four caches",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	}
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())

	bundle, err := cache.OpenBundle(cmd.Context(), tacfg.CacheDir(), cc.Logger)
	if err != nil {
		return fmt.Errorf("tacl: opening cache: %w", err)
	}
	defer bundle.Close()

	if err := bundle.DestroyAllTenant(cmd.Context()); err != nil {
		return fmt.Errorf("tacl: clearing cache: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")

	return nil
}
