// Command xk6-headless loads a page in a headless engine and captures it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/grafana/xk6-headless/osext"
)

func main() {
	// a .env file is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	// browsers left behind by an interrupted run
	osext.ForceProcessShutdown(context.Background())
	if err != nil {
		_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "xk6-headless [flags] URL",
		Short: "Load a page in a headless browser and capture it",
		Long: `xk6-headless opens URL in a headless browser engine, waits for it to load
and settle, then captures it: screenshot, HTML or the result of a script.

Settings are read from the config file, then from the XK6_HEADLESS_*
environment variables (a .env file is loaded first), then from the flags.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f, cmd.Flags(), os.LookupEnv)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	}
	f.register(cmd.Flags())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "xk6-headless", version)
		},
	})

	return cmd
}

const version = "0.1.0"
