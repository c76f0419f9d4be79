// Package main implements the decree CLI: the autonomous delivery
// engine's control plane entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, repoRoot string

	rootCmd := &cobra.Command{
		Use:     "decree",
		Short:   "Autonomous software-delivery control plane",
		Long:    "decree runs the event/command engine, agent dispatcher, and work-provider reconciler that drive an autonomous delivery pipeline end to end.",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "decree.yaml", "path to the decree config file")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo-root", ".", "path to the repository decree drives")

	rootCmd.AddCommand(
		newRunCommand(&configPath, &repoRoot),
		newValidateBashCommand(),
		newCacheCommand(&repoRoot),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func newRunCommand(configPath, repoRoot *string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine: reconciler, dispatcher, and event loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), *configPath, *repoRoot, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
	return cmd
}

func newValidateBashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-bash [command]",
		Short: "Check whether a shell command passes the implementor's bash-command validator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateBash(args[0])
		},
	}
}

func newCacheCommand(repoRoot *string) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the planner cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the planner cache's last-planned spec SHAs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheShow(*repoRoot)
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the planner cache file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(*repoRoot)
		},
	})
	return cacheCmd
}
