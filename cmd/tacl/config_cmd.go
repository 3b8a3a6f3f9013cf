package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/token"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage per-tenant API keys",
	}

	cmd.AddCommand(newConfigSetKeyCmd(), newConfigShowCmd())

	return cmd
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <pnum> <api-key>",
		Short: "Record a long-lived API key for a tenant in the current environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := cliContextFrom(cmd.Context())

			if err := cc.Config.SetAPIKey(string(cc.Env), args[0], args[1]); err != nil {
				return fmt.Errorf("tacl: saving API key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "API key saved for %s/%s\n", cc.Env, args[0])

			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the config file path in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := cliContextFrom(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), cc.Config.Path())
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show every persisted token pair's expiry",
		Args:  cobra.NoArgs,
		RunE:  runSession,
	}
}

func runSession(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())

	all, err := cc.Store.All()
	if err != nil {
		return fmt.Errorf("tacl: reading sessions: %w", err)
	}

	if len(all) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions persisted; run 'tacl login'")
		return nil
	}

	for env, byTenant := range all {
		for tenant, byKind := range byTenant {
			for kind, pair := range byKind {
				expiry := "unknown"

				if claims, claimErr := token.DecodeClaims(pair.Access); claimErr == nil {
					expiry = claims.ExpiresAt().Format("2006-01-02 15:04:05")
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\texpires %s\n", env, tenant, kind, expiry)
			}
		}
	}

	return nil
}
