package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/token"
)

// resumeRecord is one resumable-upload record as the resumables API
// returns it.
type resumeRecord struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	ChunkSize      int64  `json:"chunk_size"`
	MaxChunk       int64  `json:"max_chunk"`
	PreviousOffset int64  `json:"previous_offset"`
	NextOffset     int64  `json:"next_offset"`
}

func newResumeListCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "resume-list <pnum>",
		Short: "List resumable uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeList(cmd, args[0], key)
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "directory key to list resumables for (directory-mode uploads)")

	return cmd
}

func runResumeList(cmd *cobra.Command, pnum, key string) error {
	cc := cliContextFrom(cmd.Context())

	sess, err := requireSession(cc, pnum, token.KindImport)
	if err != nil {
		return err
	}

	reqURL := tacapi.FileAPIURL(cc.Env, pnum, tacapi.DefaultBackend, "resumables")
	if key != "" {
		reqURL += "?key=" + key
	}

	return fetchAndPrintResumables(cmd, sess.access, reqURL)
}

func fetchAndPrintResumables(cmd *cobra.Command, access, reqURL string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("tacl: building resume-list request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := metadataHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("tacl: resume-list request failed: %w", err)
	}

	defer resp.Body.Close()

	var records []resumeRecord
	if decErr := json.NewDecoder(resp.Body).Decode(&records); decErr != nil {
		return fmt.Errorf("tacl: decoding resume-list response: %w", decErr)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no resumable uploads")
		return nil
	}

	for _, r := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tchunk %d\t%d/%d bytes committed\n",
			r.ID, r.Filename, r.MaxChunk, r.NextOffset, r.NextOffset)
	}

	return nil
}

func newResumeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume-delete <pnum> <filename> <id>",
		Short: "Delete a server-side resumable upload",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeDelete(cmd, args[0], args[1], args[2])
		},
	}
}

func runResumeDelete(cmd *cobra.Command, pnum, filename, id string) error {
	cc := cliContextFrom(cmd.Context())

	sess, err := requireSession(cc, pnum, token.KindImport)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s?id=%s", tacapi.FileAPIURL(cc.Env, pnum, tacapi.DefaultBackend, "resumables/"+filename), id)

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("tacl: building resume-delete request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+sess.access)

	resp, err := metadataHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("tacl: resume-delete request failed: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("tacl: resume-delete: server returned %d", resp.StatusCode)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deleted resumable %s for %s\n", id, filename)

	return nil
}
