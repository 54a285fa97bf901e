package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/selfpatch/sovdtui/internal/app"
)

var version = "dev"

func main() {
	opts := app.Options{}

	root := &cobra.Command{
		Use:     "sovdtui",
		Short:   "Terminal browser for an SOVD diagnostic gateway",
		Long:    "sovdtui connects to a service-oriented vehicle diagnostics gateway\nand browses its areas, components, apps and functions: live topic data,\nconfigurations, operations and fault memory.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, opts)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVarP(&opts.ServerURL, "server", "s", "", "gateway URL (overrides config and remembered server)")
	root.Flags().StringVar(&opts.BasePath, "base-path", "", "API base path (default /api/v1)")
	root.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ~/.config/sovdtui/config.toml)")
	root.Flags().IntVar(&opts.PollEvery, "poll", 0, "fault poll interval in seconds")
	root.Flags().StringVar(&opts.DebugLog, "debug-log", "", "write debug logs to this file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
