package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"polyscope/config"
	"polyscope/monitor"
)

func newMonitorCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "monitor [market-slugs...]",
		Short: "Subscribe to the live trade-event stream and score events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			d, err := buildDeps(cfg)
			if err != nil {
				return err
			}

			slugs := args
			if len(slugs) == 0 {
				slugs = cfg.Watchlist
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := monitor.New(d.st, d.accts, d.resolver, cfg, d.log)
			m.SetVerbose(verbose)
			return m.Run(ctx, slugs)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every scored event, not only alerts")
	return cmd
}
