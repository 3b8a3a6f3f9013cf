package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/orchestrator"
	"github.com/unioslo/tacl/internal/token"
)

var (
	flagFlavor     string
	flagUser       string
	flagAPIKey     string
	flagInstanceID string
	flagKind       string
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <pnum>",
		Short: "Authenticate and persist a token pair for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogin,
	}

	cmd.Flags().StringVar(&flagFlavor, "flavor", "apikey", "auth flavor: credentials, apikey, instance")
	cmd.Flags().StringVar(&flagUser, "user", "", "username (flavor=credentials)")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "long-lived API key (flavor=apikey; falls back to config)")
	cmd.Flags().StringVar(&flagInstanceID, "instance-id", "", "instance link id (flavor=instance)")
	cmd.Flags().StringVar(&flagKind, "kind", string(token.KindImport), "token kind: import, export")

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	pnum := args[0]

	params := orchestrator.LoginParams{
		Env:  cc.Env,
		Pnum: pnum,
		Kind: token.Kind(flagKind),
	}

	switch flagFlavor {
	case "credentials":
		params.Flavor = orchestrator.FlavorCredentials
		params.User = flagUser
		params.Prompter = newStdinPrompter()
	case "apikey":
		params.Flavor = orchestrator.FlavorAPIKey

		apiKey := flagAPIKey
		if apiKey == "" {
			if fromConfig, ok := cc.Config.APIKey(string(cc.Env), pnum); ok {
				apiKey = fromConfig
			}
		}

		if apiKey == "" {
			return fmt.Errorf("tacl: no API key given and none configured for %s/%s", cc.Env, pnum)
		}

		params.APIKey = apiKey
	case "instance":
		params.Flavor = orchestrator.FlavorInstance
		params.InstanceID = flagInstanceID
		params.Prompter = newStdinPrompter()
	default:
		return fmt.Errorf("tacl: unknown --flavor %q", flagFlavor)
	}

	pair, err := orchestrator.Login(cmd.Context(), cc.Auth, cc.Store, params)
	if err != nil {
		return fmt.Errorf("tacl: login failed: %w", err)
	}

	claims, claimErr := token.DecodeClaims(pair.Access)
	if claimErr == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "logged in: %s/%s (%s), expires %s\n",
			cc.Env, pnum, claims.Name, claims.ExpiresAt().Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "logged in: %s/%s\n", cc.Env, pnum)
	}

	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the persisted session for every environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := cliContextFrom(cmd.Context())

			if err := cc.Store.Clear(); err != nil {
				return fmt.Errorf("tacl: logout: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")

			return nil
		},
	}
}
