// Gray Logic Node - connectivity supervisor for headless field devices.
//
// The node keeps one network link and one broker session alive, reports
// its state on a status indicator, accepts authenticated firmware uploads
// once the link is up, and lets the liveness watchdog restart it when the
// network goes quiet for too long.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/update/otahttp"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultTokenTTL   = 15 * time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Without a subcommand the supervisor runs.
func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graylogic-node",
		Short:         "Connectivity supervisor for a Gray Logic field node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $GRAYLOGIC_NODE_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(newVersionCommand(), newTokenCommand(&configPath))
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "graylogic-node %s (commit %s, built %s)\n", version, commit, date)
}

// newTokenCommand issues an upload token for a node's update listener.
func newTokenCommand(configPath *string) *cobra.Command {
	var (
		hostname string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a firmware upload token for a node",
		Long: `Issue a firmware upload token signed with the update secret.

The hostname must be the node's expanded update hostname, for example
node-ABCDEF. The secret is read from the config file or
GRAYLOGIC_NODE_UPDATE_SECRET.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return issueToken(cmd.OutOrStdout(), cfg.Update.Secret, hostname, ttl)
		},
	}
	cmd.Flags().StringVar(&hostname, "host", "", "node update hostname (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("host")
	return cmd
}

func issueToken(w io.Writer, secret, hostname string, ttl time.Duration) error {
	if secret == "" {
		return fmt.Errorf("update secret is not configured")
	}
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	token, err := otahttp.IssueToken(secret, hostname, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}

// resolveConfigPath picks the flag, then the environment, then the
// default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GRAYLOGIC_NODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
