package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/crypto"
	"github.com/unioslo/tacl/internal/dirsync"
	"github.com/unioslo/tacl/internal/orchestrator"
	"github.com/unioslo/tacl/internal/tacapi"
	"github.com/unioslo/tacl/internal/tacfg"
	"github.com/unioslo/tacl/internal/token"
	"github.com/unioslo/tacl/internal/transfer"
)

// Flags shared across the transfer subcommands.
var (
	flagGroup              string
	flagRemotePath         string
	flagChunkSize          int
	flagResumableThreshold int64
	flagForceResumable     bool
	flagSetMtime           bool
	flagEncrypt            bool
	flagIgnorePrefixes     []string
	flagIgnoreSuffixes     []string
	flagKeepMissing        bool
	flagKeepUpdated        bool
	flagSyncMtime          bool
	flagNoCache            bool
)

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagGroup, "group", "", "upload group (default: <pnum>-member-group)")
	cmd.Flags().StringVar(&flagRemotePath, "remote-path", "", "remote sub-path prefix")
	cmd.Flags().IntVar(&flagChunkSize, "chunk-size", 50<<20, "resumable chunk size in bytes")
	cmd.Flags().Int64Var(&flagResumableThreshold, "resumable-threshold", 1<<30, "files above this size use the resumable protocol")
	cmd.Flags().BoolVar(&flagForceResumable, "force-resumable", false, "always use the resumable protocol")
	cmd.Flags().BoolVar(&flagSetMtime, "set-mtime", false, "sync modification times")
	cmd.Flags().BoolVar(&flagEncrypt, "encrypt", false, "encrypt with the server's published public key")
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&flagIgnorePrefixes, "ignore-prefix", nil, "skip subtree(s) whose relative path starts with this")
	cmd.Flags().StringSliceVar(&flagIgnoreSuffixes, "ignore-suffix", nil, "skip file(s) whose name ends with this")
	cmd.Flags().BoolVar(&flagKeepMissing, "keep-missing", false, "never delete resources missing from the source")
	cmd.Flags().BoolVar(&flagKeepUpdated, "keep-updated", false, "only transfer resources strictly newer at the source")
	cmd.Flags().BoolVar(&flagSyncMtime, "sync-mtime", false, "compare modification time instead of etag")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "do not use the SQLite work cache (no crash resume)")
}

// publicKeyForTransfer fetches the server's published public key when
// --encrypt is set, or returns nil unencrypted.
func publicKeyForTransfer(cc *CLIContext, pnum, access string) (*[32]byte, error) {
	if !flagEncrypt {
		return nil, nil
	}

	fetcher := &crypto.ServerKeyFetcher{Client: metadataHTTPClient()}

	pub, err := fetcher.FetchPublicKey(cc.Env, pnum, access)
	if err != nil {
		return nil, fmt.Errorf("tacl: fetching server public key: %w", err)
	}

	return pub, nil
}

// envelopeForTransfer fetches the server's public key and seals one
// Envelope when --encrypt is set, or returns nil unencrypted. Downloads
// decrypt the whole file under a single envelope, unlike resumable
// uploads which seal a fresh one per chunk.
func envelopeForTransfer(cc *CLIContext, pnum, access string) (*crypto.Envelope, error) {
	pub, err := publicKeyForTransfer(cc, pnum, access)
	if err != nil {
		return nil, err
	}

	if pub == nil {
		return nil, nil
	}

	return crypto.NewEnvelope(pub)
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <pnum> <local-path>",
		Short: "Upload one file (streaming or resumable, chosen by size)",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpload,
	}

	addTransferFlags(cmd)

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	pnum, localPath := args[0], args[1]

	if err := probeConnectivity(cc.Env); err != nil {
		return err
	}

	sess, err := requireSession(cc, pnum, token.KindImport)
	if err != nil {
		return err
	}

	resolution, err := orchestrator.Resolve(string(cc.Env), pnum, flagGroup, flagRemotePath)
	if err != nil {
		return fmt.Errorf("tacl: %w", err)
	}

	pub, err := publicKeyForTransfer(cc, pnum, sess.access)
	if err != nil {
		return err
	}

	result, err := transfer.Upload(cmd.Context(), transfer.UploadParams{
		Env:                cc.Env,
		Pnum:               pnum,
		Client:             transferHTTPClient(),
		Logger:             cc.Logger,
		Refresh:            sess.refreshFn(cc, pnum, configuredAPIKey(cc, pnum)),
		LocalPath:          localPath,
		Group:              resolution.Group,
		RemotePath:         resolution.RemotePath,
		ChunkSize:          flagChunkSize,
		ResumableThreshold: flagResumableThreshold,
		ForceResumable:     flagForceResumable,
		SetMtime:           flagSetMtime,
		PublicKey:          pub,
	})
	if err != nil {
		return fmt.Errorf("tacl: upload failed: %w", err)
	}

	if result.UploadID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (resumable id %s)\n", localPath, result.UploadID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", localPath)
	}

	return nil
}

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <pnum> <remote-path> <local-path>",
		Short: "Download one file, resuming a matching partial if present",
		Args:  cobra.ExactArgs(3),
		RunE:  runDownload,
	}

	cmd.Flags().BoolVar(&flagSetMtime, "set-mtime", false, "sync modification times")
	cmd.Flags().BoolVar(&flagEncrypt, "encrypt", false, "decrypt using a per-transfer envelope")

	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	pnum, remotePath, localPath := args[0], args[1], args[2]

	if err := probeConnectivity(cc.Env); err != nil {
		return err
	}

	sess, err := requireSession(cc, pnum, token.KindExport)
	if err != nil {
		return err
	}

	envelope, err := envelopeForTransfer(cc, pnum, sess.access)
	if err != nil {
		return err
	}

	result, err := transfer.Download(cmd.Context(), transfer.DownloadParams{
		Env:        cc.Env,
		Pnum:       pnum,
		Client:     transferHTTPClient(),
		Logger:     cc.Logger,
		Refresh:    sess.refreshFn(cc, pnum, configuredAPIKey(cc, pnum)),
		RemotePath: remotePath,
		LocalPath:  localPath,
		SetMtime:   flagSetMtime,
		Envelope:   envelope,
	})
	if err != nil {
		return fmt.Errorf("tacl: download failed: %w", err)
	}

	resumed := ""
	if result.Resumed {
		resumed = " (resumed)"
	}

	fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s: %s%s\n", remotePath, humanize.Bytes(uint64(result.BytesWritten)), resumed)

	return nil
}

func newUploadSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload-sync <pnum> <local-dir>",
		Short: "Recursively sync a local directory up to the remote namespace",
		Args:  cobra.ExactArgs(2),
		RunE:  runUploadSync,
	}

	addTransferFlags(cmd)
	addSyncFlags(cmd)

	return cmd
}

func runUploadSync(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	pnum, localDir := args[0], args[1]

	if err := probeConnectivity(cc.Env); err != nil {
		return err
	}

	sess, err := requireSession(cc, pnum, token.KindImport)
	if err != nil {
		return err
	}

	tc, closeCache, err := buildTransferContext(cmd.Context(), cc, pnum, localDir, sess, false)
	if err != nil {
		return err
	}

	defer closeCache()

	if flagEncrypt {
		pub, keyErr := (&crypto.ServerKeyFetcher{Client: metadataHTTPClient()}).FetchPublicKey(cc.Env, pnum, sess.access)
		if keyErr != nil {
			return fmt.Errorf("tacl: fetching server public key: %w", keyErr)
		}

		tc.PublicKey = pub
	}

	uploader := dirsync.NewUploadSync(tc, tacapi.DefaultBackend)

	if err := dirsync.Sync(cmd.Context(), uploader, tc); err != nil {
		return fmt.Errorf("tacl: upload-sync failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "upload-sync of %s complete\n", localDir)

	return nil
}

func newDownloadSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download-sync <pnum> <local-dir>",
		Short: "Recursively sync the remote namespace down to a local directory",
		Args:  cobra.ExactArgs(2),
		RunE:  runDownloadSync,
	}

	addTransferFlags(cmd)
	addSyncFlags(cmd)

	return cmd
}

func runDownloadSync(cmd *cobra.Command, args []string) error {
	cc := cliContextFrom(cmd.Context())
	pnum, localDir := args[0], args[1]

	if err := probeConnectivity(cc.Env); err != nil {
		return err
	}

	sess, err := requireSession(cc, pnum, token.KindExport)
	if err != nil {
		return err
	}

	tc, closeCache, err := buildTransferContext(cmd.Context(), cc, pnum, localDir, sess, true)
	if err != nil {
		return err
	}

	defer closeCache()

	if flagEncrypt {
		pub, keyErr := (&crypto.ServerKeyFetcher{Client: metadataHTTPClient()}).FetchPublicKey(cc.Env, pnum, sess.access)
		if keyErr != nil {
			return fmt.Errorf("tacl: fetching server public key: %w", keyErr)
		}

		tc.PublicKey = pub
	}

	downloader := dirsync.NewDownloadSync(tc, tacapi.DefaultBackend)

	if err := dirsync.Sync(cmd.Context(), downloader, tc); err != nil {
		return fmt.Errorf("tacl: download-sync failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "download-sync into %s complete\n", localDir)

	return nil
}

// buildTransferContext assembles a dirsync.TransferContext from the
// shared sync flags, opening the SQLite cache bundle unless --no-cache
// was given. forDownload picks the download-side cache pair instead of
// the upload-side one. The returned close func must be deferred by the
// caller.
func buildTransferContext(
	ctx context.Context,
	cc *CLIContext,
	pnum, localDir string,
	sess *loadedSession,
	forDownload bool,
) (*dirsync.TransferContext, func(), error) {
	resolution, err := orchestrator.Resolve(string(cc.Env), pnum, flagGroup, flagRemotePath)
	if err != nil {
		return nil, func() {}, fmt.Errorf("tacl: %w", err)
	}

	tc := &dirsync.TransferContext{
		Env:                cc.Env,
		Pnum:               pnum,
		DirPath:            localDir,
		Access:             sess.access,
		Refresh:            sess.refresh,
		RefreshTarget:      sess.refreshTarget,
		Group:              resolution.Group,
		RemotePath:         resolution.RemotePath,
		TargetDir:          localDir,
		CacheEnabled:       !flagNoCache,
		IgnorePrefixes:     flagIgnorePrefixes,
		IgnoreSuffixes:     flagIgnoreSuffixes,
		SyncMtime:          flagSyncMtime,
		KeepMissing:        flagKeepMissing,
		KeepUpdated:        flagKeepUpdated,
		ChunkSize:          flagChunkSize,
		ResumableThreshold: flagResumableThreshold,
		Logger:             cc.Logger,
		Client:             transferHTTPClient(),
		RefreshFn:          sess.refreshFn(cc, pnum, configuredAPIKey(cc, pnum)),
	}

	noop := func() {}

	if !tc.CacheEnabled {
		return tc, noop, nil
	}

	bundle, err := cache.OpenBundle(ctx, tacfg.CacheDir(), cc.Logger)
	if err != nil {
		return nil, noop, fmt.Errorf("tacl: opening cache: %w", err)
	}

	if forDownload {
		tc.TransferCache = bundle.Download
		tc.DeleteCache = bundle.DownloadDelete
	} else {
		tc.TransferCache = bundle.Upload
		tc.DeleteCache = bundle.UploadDelete
	}

	return tc, func() { _ = bundle.Close() }, nil
}
