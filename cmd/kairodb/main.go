package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kairodb/internal/app"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kairodb",
		Short:         "KairoDB - pooled MySQL access service",
		Long:          "KairoDB runs a bounded MySQL connection pool with periodic health checks\nand exposes transactional sessions for parameterized SQL execution.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}} (" + GitCommit + ")\n")

	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newPingCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "monitor",
		Aliases: []string{"serve"},
		Short:   "Run the pool with scheduled health checks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New()
			if err != nil {
				return err
			}
			return application.Run()
		},
	}
}

func newPingCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check database connectivity and print pool stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.New()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			st, err := application.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: open=%d idle=%d in_use=%d max=%d\n",
				st.Open, st.Idle, st.InUse, st.MaxConns)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall ping timeout")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kairodb %s (%s)\n", Version, GitCommit)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
