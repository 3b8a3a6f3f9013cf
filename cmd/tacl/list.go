package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/dirsync"
	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/token"
)

func newListCmd() *cobra.Command {
	var remotePath string

	cmd := &cobra.Command{
		Use:   "list <pnum>",
		Short: "List the remote export namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, args[0], remotePath)
		},
	}

	cmd.Flags().StringVar(&remotePath, "remote-path", "", "remote sub-path to list (default: namespace root)")

	return cmd
}

func runList(cmd *cobra.Command, pnum, remotePath string) error {
	cc := cliContextFrom(cmd.Context())

	sess, err := requireSession(cc, pnum, token.KindExport)
	if err != nil {
		return err
	}

	tc := &dirsync.TransferContext{
		Env:        cc.Env,
		Pnum:       pnum,
		RemotePath: remotePath,
		Logger:     cc.Logger,
		Client:     metadataHTTPClient(),
		Access:     sess.access,
		RefreshFn:  sess.refreshFn(cc, pnum, configuredAPIKey(cc, pnum)),
	}

	entries, err := dirsync.RemoteEnumerate(cmd.Context(), tc, tacapi.DefaultBackend)
	if err != nil {
		return fmt.Errorf("tacl: listing %s: %w", pnum, err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}

	sort.Strings(names)

	// A non-interactive stdout (piped to a file, redirected in a script)
	// gets a plain name-per-line listing; a real terminal gets the
	// reference column too.
	interactive := false
	if f, ok := cmd.OutOrStdout().(interface{ Fd() uintptr }); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}

	for _, name := range names {
		if !interactive {
			fmt.Fprintln(cmd.OutOrStdout(), name)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%-60s %s\n", name, entries[name])
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", humanize.Comma(int64(len(names))))

	return nil
}
