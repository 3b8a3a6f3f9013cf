package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unioslo/tacl/internal/orchestrator"
	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/tacfg"
	"github.com/unioslo/tacl/internal/token"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagEnv        string
	flagConfigPath string
)

// httpClientTimeout bounds metadata calls (auth, list, resume discovery);
// transfers use transferHTTPClient's unbounded client instead, since a
// 50MB chunk on a slow link can legitimately take longer than a fixed
// request timeout.
const httpClientTimeout = 30 * time.Second

// CLIContext bundles everything a RunE needs, assembled once in
// PersistentPreRunE so subcommands don't each repeat config/session
// loading boilerplate (mirrors the teacher's root.go CLIContext).
type CLIContext struct {
	Env    tacenv.Environment
	Config *tacfg.Config
	Store  *token.Store
	Logger *slog.Logger
	Auth   *orchestrator.Authenticator
	Policy *token.Policy
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tacl <pnum>",
		Short:         "TSD/TACL file transfer client",
		Long:          "A resumable, encryption-capable file transfer client for the TSD file API.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagEnv, "env", "prod", "environment (prod, alt, test, ec-prod, ec-test, dev)")
	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: XDG config dir)")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newUploadSyncCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newDownloadSyncCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newResumeListCmd())
	cmd.AddCommand(newResumeDeleteCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newSessionCmd())

	return cmd
}

// loadCLIContext resolves the environment, opens the config and session
// stores, and stashes the result on the command's context.
func loadCLIContext(cmd *cobra.Command) error {
	env, err := tacenv.ParseEnvironment(flagEnv)
	if err != nil {
		return fmt.Errorf("tacl: %w", err)
	}

	logger := buildLogger()

	configPath := flagConfigPath
	if configPath == "" {
		configPath = tacfg.ConfigPath()
	}

	cfg, err := tacfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("tacl: loading config: %w", err)
	}

	store := token.NewStore(tacfg.SessionPath())

	client := metadataHTTPClient()
	auth := orchestrator.New(client, logger)
	policy := token.NewPolicy(store, auth, logger)

	cc := &CLIContext{
		Env:    env,
		Config: cfg,
		Store:  store,
		Logger: logger,
		Auth:   auth,
		Policy: policy,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger honors the DEBUG environment variable: unset means step
// logging is suppressed (warnings only), set means full debug trace.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// metadataHTTPClient is used for auth, listing, and resume-discovery
// calls, which are small and should not hang indefinitely.
func metadataHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// transferHTTPClient has no fixed timeout: chunked uploads/downloads are
// bounded by the retry wrapper's attempt counter and context cancellation,
// not by a wall-clock request timeout.
func transferHTTPClient() *http.Client {
	return &http.Client{}
}

// probeConnectivity dials the environment's host before starting a
// network operation, so a DNS/firewall problem surfaces as one clear
// error instead of five retry-wrapper attempts. Skipped when a proxy is
// configured: a proxy may make the target reachable in ways a direct
// dial can't observe.
func probeConnectivity(env tacenv.Environment) error {
	if os.Getenv("https_proxy") != "" || os.Getenv("HTTPS_PROXY") != "" {
		return nil
	}

	conn, err := net.DialTimeout("tcp", dialTarget(env), 5*time.Second)
	if err != nil {
		return fmt.Errorf("tacl: cannot reach %s: %w", env.Host(), err)
	}

	conn.Close()

	return nil
}

func dialTarget(env tacenv.Environment) string {
	host := env.Host()
	if strings.Contains(host, ":") {
		return host
	}

	if env.Scheme() == "https" {
		return host + ":443"
	}

	return host + ":80"
}
