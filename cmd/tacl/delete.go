package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/token"
	"github.com/unioslo/tacl/internal/transfer"
)

func newDeleteCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "delete <pnum> <remote-path>",
		Short: "Delete one resource from the upload namespace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, args[0], args[1], group)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "upload group (default: <pnum>-member-group)")

	return cmd
}

func runDelete(cmd *cobra.Command, pnum, remotePath, group string) error {
	cc := cliContextFrom(cmd.Context())

	sess, err := requireSession(cc, pnum, token.KindImport)
	if err != nil {
		return err
	}

	if group == "" {
		group = transfer.DefaultGroup(pnum)
	}

	endpoint := fmt.Sprintf("stream/%s/%s", group, remotePath)
	reqURL := tacapi.FileAPIURL(cc.Env, pnum, tacapi.DefaultBackend, endpoint)

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("tacl: building delete request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+sess.access)

	resp, err := metadataHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("tacl: delete request failed: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("tacl: delete of %s: server returned %d", remotePath, resp.StatusCode)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", remotePath)

	return nil
}
